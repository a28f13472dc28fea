// Package eventlog is the append-only log of registry change notifications.
// Entries live in the record store under day-bucketed keys that sort by time,
// and expire through the store's per-entry TTL after the retention window.
package eventlog

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JamesPrial/mcp-registry-gateway/internal/notify"
	"github.com/JamesPrial/mcp-registry-gateway/internal/storage"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

const (
	// KeyPrefix is shared by every event key
	KeyPrefix = "events:"

	// DefaultRetention is how long an event stays replayable
	DefaultRetention = 7 * 24 * time.Hour

	dayLayout = "2006-01-02"
)

// Publisher appends change notifications
type Publisher interface {
	Publish(ctx context.Context, eventType mcp.EventType, data mcp.EventData) (*mcp.ChangeEvent, error)
	// PublishStatusChange returns nil, nil when the status did not change
	PublishStatusChange(ctx context.Context, data mcp.EventData) (*mcp.ChangeEvent, error)
}

// Source is the read side of the log
type Source interface {
	// Replay returns events with timestamp >= since, oldest first; never nil
	Replay(ctx context.Context, since time.Time, filter TypeFilter) ([]mcp.ChangeEvent, error)
}

// Option configures a Log
type Option func(*Log)

// WithClock replaces time.Now; tests use it to place events at fixed instants
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func WithRetention(retention time.Duration) Option {
	return func(l *Log) {
		if retention > 0 {
			l.retention = retention
		}
	}
}

// WithBus wakes tailing sessions after each publish
func WithBus(bus notify.Bus) Option {
	return func(l *Log) {
		if bus != nil {
			l.bus = bus
		}
	}
}

// Log implements Publisher and Source over a storage.Backend
type Log struct {
	store     storage.Backend
	bus       notify.Bus
	retention time.Duration
	now       func() time.Time

	// held from timestamp assignment through Put so stored order matches time order
	publishMu sync.Mutex
	entropy   *ulid.MonotonicEntropy

	logger    *slog.Logger
	errLogger *errors.Logger
}

func New(store storage.Backend, opts ...Option) *Log {
	logger := logging.GetGlobalLogger("eventlog")
	l := &Log{
		store:     store,
		bus:       notify.NopBus{},
		retention: DefaultRetention,
		now:       time.Now,
		entropy:   ulid.Monotonic(rand.Reader, 0),
		logger:    logger,
		errLogger: errors.NewLoggerWithSlog(logger, "eventlog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EventKey is the store key of the event with the given timestamp and id
func EventKey(ts time.Time, id string) string {
	ts = ts.UTC()
	return fmt.Sprintf("%s%s:%013d:%s", KeyPrefix, ts.Format(dayLayout), ts.UnixMilli(), id)
}

func dayPrefix(day time.Time) string {
	return KeyPrefix + day.UTC().Format(dayLayout) + ":"
}

// keyMillis extracts the timestamp component of an event key
func keyMillis(key string) (int64, bool) {
	parts := strings.SplitN(strings.TrimPrefix(key, KeyPrefix), ":", 3)
	if len(parts) != 3 {
		return 0, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// newID requires publishMu
func (l *Log) newID(ts time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(ts), l.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Now is the log's notion of the current time
func (l *Log) Now() time.Time {
	return l.now().UTC()
}

func (l *Log) Publish(ctx context.Context, eventType mcp.EventType, data mcp.EventData) (*mcp.ChangeEvent, error) {
	ctx, span := logging.StartSpan(ctx, "eventlog.publish", logging.AttrEventType.String(string(eventType)))
	defer span.End()

	if !eventType.Valid() {
		err := errors.Newf(errors.ErrCodeEventType, "unknown event type %q", eventType)
		logging.RecordError(span, err)
		return nil, err
	}
	if strings.TrimSpace(data.Name) == "" {
		err := errors.ValidationRequired("data.name")
		logging.RecordError(span, err)
		return nil, err
	}

	event, err := l.append(ctx, eventType, data)
	if err != nil {
		logging.RecordError(span, err)
		return nil, err
	}
	id := event.ID

	l.bus.Notify(ctx, notify.TopicEvents, id)
	logging.GetGlobalMetricsCollector().RecordEventPublished(string(eventType))
	l.logger.InfoContext(ctx, "Published event",
		slog.String("id", id),
		slog.String("type", string(eventType)),
		slog.String("name", data.Name),
	)
	return event, nil
}

// append stamps and stores one event. A tailing reader that has seen timestamp T
// never later finds a newly stored event below T.
func (l *Log) append(ctx context.Context, eventType mcp.EventType, data mcp.EventData) (*mcp.ChangeEvent, error) {
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	ts := l.Now().Truncate(time.Millisecond)
	id, err := l.newID(ts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate event id")
	}
	event := mcp.ChangeEvent{ID: id, Type: eventType, Timestamp: ts, Data: data}

	raw, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageEncoding, "failed to encode event")
	}
	if err := l.store.Put(ctx, EventKey(ts, id), raw, storage.PutOptions{TTL: l.retention}); err != nil {
		logging.GetGlobalMetricsCollector().RecordStoreFault("event_publish")
		return nil, l.errLogger.LogAndWrap(ctx, err, errors.GetCode(err), "failed to append event", "publish")
	}
	return &event, nil
}

func (l *Log) PublishStatusChange(ctx context.Context, data mcp.EventData) (*mcp.ChangeEvent, error) {
	if data.PreviousStatus == data.CurrentStatus {
		l.logger.DebugContext(ctx, "Status unchanged, no event",
			slog.String("name", data.Name),
			slog.String("status", string(data.CurrentStatus)),
		)
		return nil, nil
	}
	return l.Publish(ctx, mcp.EventStatusChanged, data)
}

func (l *Log) Replay(ctx context.Context, since time.Time, filter TypeFilter) ([]mcp.ChangeEvent, error) {
	ctx, span := logging.StartSpan(ctx, "eventlog.replay")
	defer span.End()

	now := l.Now()
	if floor := now.Add(-l.retention); since.Before(floor) {
		since = floor
	}
	since = since.UTC()
	sinceMs := since.UnixMilli()

	events := make([]mcp.ChangeEvent, 0)
	start := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	for day := start; !day.After(now); day = day.AddDate(0, 0, 1) {
		keys, err := l.store.ListByPrefix(ctx, dayPrefix(day), storage.ListOptions{})
		if err != nil {
			logging.RecordError(span, err)
			logging.GetGlobalMetricsCollector().RecordStoreFault("event_replay")
			return nil, l.errLogger.LogAndWrap(ctx, err, errors.GetCode(err), "failed to list events", "replay")
		}

		for _, key := range keys {
			ms, ok := keyMillis(key)
			if !ok || ms < sinceMs {
				continue
			}
			raw, err := l.store.Get(ctx, key)
			if err != nil {
				logging.RecordError(span, err)
				logging.GetGlobalMetricsCollector().RecordStoreFault("event_replay")
				return nil, errors.Wrap(err, errors.GetCode(err), "failed to load event")
			}
			if raw == nil {
				// Expired between list and get
				continue
			}

			var event mcp.ChangeEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				l.logger.WarnContext(ctx, "Skipping undecodable event",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			if event.Timestamp.Before(since) || !filter.Allows(event.Type) {
				continue
			}
			events = append(events, event)
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })
	span.SetAttributes(logging.AttrResultCount.Int(len(events)))
	return events, nil
}
