// Package mailbox holds side-channel RPC requests until the push session with the
// matching correlation id picks them up. One slot per correlation id, last write wins.
package mailbox

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/JamesPrial/mcp-registry-gateway/internal/notify"
	"github.com/JamesPrial/mcp-registry-gateway/internal/storage"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

const (
	KeyPrefix  = "mailbox:"
	DefaultTTL = 60 * time.Second

	// MaxCorrelationIDLength bounds the caller-supplied key
	MaxCorrelationIDLength = 256
)

// Mailbox is the request hand-off between the side channel and a push session
type Mailbox interface {
	// Submit overwrites any pending request for correlationID
	Submit(ctx context.Context, correlationID string, raw []byte) error
	// Take removes and returns the pending request, or nil when there is none
	Take(ctx context.Context, correlationID string) ([]byte, error)
}

// Key is the store key of a correlation id's slot
func Key(correlationID string) string {
	return KeyPrefix + correlationID
}

// ValidateCorrelationID rejects empty, oversized or control-character ids
func ValidateCorrelationID(correlationID string) error {
	if strings.TrimSpace(correlationID) == "" {
		return errors.ValidationRequired("correlationId")
	}
	if len(correlationID) > MaxCorrelationIDLength {
		return errors.Newf(errors.ErrCodeValidationSize,
			"correlationId exceeds %d characters", MaxCorrelationIDLength)
	}
	if strings.IndexFunc(correlationID, unicode.IsControl) >= 0 {
		return errors.ValidationInvalid("correlationId", "contains control characters")
	}
	return nil
}

// StoreMailbox keeps slots in the record store with a short TTL
type StoreMailbox struct {
	store  storage.Backend
	bus    notify.Bus
	ttl    time.Duration
	logger *slog.Logger

	// serializes put against get+delete; a submit never lands between them
	mu sync.Mutex
}

func NewStoreMailbox(store storage.Backend, bus notify.Bus, ttl time.Duration) *StoreMailbox {
	if bus == nil {
		bus = notify.NopBus{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StoreMailbox{
		store:  store,
		bus:    bus,
		ttl:    ttl,
		logger: logging.GetGlobalLogger("mailbox"),
	}
}

func (m *StoreMailbox) Submit(ctx context.Context, correlationID string, raw []byte) error {
	metrics := logging.GetGlobalMetricsCollector()
	if err := ValidateCorrelationID(correlationID); err != nil {
		metrics.RecordMailbox("submit", "invalid")
		return err
	}

	m.mu.Lock()
	err := m.store.Put(ctx, Key(correlationID), raw, storage.PutOptions{TTL: m.ttl})
	m.mu.Unlock()
	if err != nil {
		metrics.RecordMailbox("submit", "error")
		metrics.RecordStoreFault("mailbox_submit")
		return errors.Wrap(err, errors.GetCode(err), "failed to queue request")
	}
	metrics.RecordMailbox("submit", "ok")

	m.bus.Notify(ctx, notify.MailboxTopic(correlationID), correlationID)
	m.logger.DebugContext(ctx, "Queued request",
		slog.String("correlation_id", correlationID),
		slog.Int("size", len(raw)),
	)
	return nil
}

func (m *StoreMailbox) Take(ctx context.Context, correlationID string) ([]byte, error) {
	if err := ValidateCorrelationID(correlationID); err != nil {
		return nil, err
	}
	metrics := logging.GetGlobalMetricsCollector()
	key := Key(correlationID)

	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.store.Get(ctx, key)
	if err != nil {
		metrics.RecordMailbox("take", "error")
		metrics.RecordStoreFault("mailbox_take")
		return nil, errors.Wrap(err, errors.GetCode(err), "failed to read mailbox")
	}
	if raw == nil {
		metrics.RecordMailbox("take", "empty")
		return nil, nil
	}
	// Undeleted entries are not handed out
	if err := m.store.Delete(ctx, key); err != nil {
		metrics.RecordMailbox("take", "error")
		metrics.RecordStoreFault("mailbox_take")
		return nil, errors.Wrap(err, errors.GetCode(err), "failed to clear mailbox")
	}

	metrics.RecordMailbox("take", "hit")
	m.logger.DebugContext(ctx, "Took request", slog.String("correlation_id", correlationID))
	return raw, nil
}
