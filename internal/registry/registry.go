// Package registry stores tool-server records and answers the read-only queries
// the dispatcher exposes as tools. Writes go through Register and UpdateStatus,
// which publish the matching change events.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JamesPrial/mcp-registry-gateway/internal/eventlog"
	"github.com/JamesPrial/mcp-registry-gateway/internal/storage"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

// KeyPrefix is the store prefix of server records
const KeyPrefix = "servers:"

// Querier is the read-only surface used by the dispatcher
type Querier interface {
	Search(ctx context.Context, filters Filters) ([]mcp.ServerRecord, error)
	// GetByName returns nil, nil when no record has exactly that name
	GetByName(ctx context.Context, name string) (*mcp.ServerRecord, error)
	Trending(ctx context.Context, limit int) ([]mcp.ServerRecord, error)
}

// StoreRegistry implements Querier over the record store
type StoreRegistry struct {
	store     storage.Backend
	publisher eventlog.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewStoreRegistry creates a registry; a nil publisher disables change events
func NewStoreRegistry(store storage.Backend, publisher eventlog.Publisher) *StoreRegistry {
	return &StoreRegistry{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		logger:    logging.GetGlobalLogger("registry"),
	}
}

func recordKey(name string) string {
	return KeyPrefix + name
}

func (r *StoreRegistry) load(ctx context.Context, key string) (*mcp.ServerRecord, error) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err), "failed to read server record")
	}
	if raw == nil {
		return nil, nil
	}
	var record mcp.ServerRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeStorageEncoding, "corrupt server record %s", key)
	}
	return &record, nil
}

func (r *StoreRegistry) save(ctx context.Context, record mcp.ServerRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageEncoding, "failed to encode server record")
	}
	if err := r.store.Put(ctx, recordKey(record.Name), raw, storage.PutOptions{}); err != nil {
		return errors.Wrap(err, errors.GetCode(err), "failed to write server record")
	}
	return nil
}

func (r *StoreRegistry) all(ctx context.Context) ([]mcp.ServerRecord, error) {
	keys, err := r.store.ListByPrefix(ctx, KeyPrefix, storage.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err), "failed to list server records")
	}

	records := make([]mcp.ServerRecord, 0, len(keys))
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		record, err := r.load(ctx, key)
		if err != nil {
			if errors.Is(err, errors.ErrCodeStorageEncoding) {
				r.logger.WarnContext(ctx, "Skipping corrupt record", slog.String("key", key))
				continue
			}
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	SortDefault(records)
	return records, nil
}

func (r *StoreRegistry) Search(ctx context.Context, filters Filters) ([]mcp.ServerRecord, error) {
	records, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]mcp.ServerRecord, 0)
	for _, record := range records {
		if !filters.Match(record) {
			continue
		}
		matches = append(matches, record)
		if filters.Limit > 0 && len(matches) == filters.Limit {
			break
		}
	}
	return matches, nil
}

// GetByName returns nil, nil when no record has exactly this name
func (r *StoreRegistry) GetByName(ctx context.Context, name string) (*mcp.ServerRecord, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	return r.load(ctx, recordKey(name))
}

func (r *StoreRegistry) Trending(ctx context.Context, limit int) ([]mcp.ServerRecord, error) {
	records, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func validStatus(s mcp.ServerStatus) bool {
	switch s {
	case mcp.StatusActive, mcp.StatusInactive, mcp.StatusDegraded, mcp.StatusUnknown:
		return true
	}
	return false
}

// changedFields lists the descriptive fields that differ; status is tracked separately
func changedFields(prev, next mcp.ServerRecord) []string {
	var changes []string
	if prev.Description != next.Description {
		changes = append(changes, "description")
	}
	if prev.URL != next.URL {
		changes = append(changes, "url")
	}
	if !slices.Equal(prev.Tags, next.Tags) {
		changes = append(changes, "tags")
	}
	if prev.Type != next.Type {
		changes = append(changes, "type")
	}
	if prev.Stars != next.Stars {
		changes = append(changes, "stars")
	}
	return changes
}

// Register creates or updates a record. A new record publishes registered, a changed
// one publishes updated with the changed fields, and a status difference publishes
// status_changed. An identical record is neither written nor announced.
func (r *StoreRegistry) Register(ctx context.Context, record mcp.ServerRecord) (*mcp.ServerRecord, error) {
	record.Name = strings.TrimSpace(record.Name)
	if record.Name == "" {
		return nil, errors.ValidationRequired("name")
	}
	if record.Status != "" && !validStatus(record.Status) {
		return nil, errors.ValidationInvalid("status", string(record.Status))
	}

	prev, err := r.load(ctx, recordKey(record.Name))
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()

	if prev == nil {
		if record.Status == "" {
			record.Status = mcp.StatusUnknown
		}
		if record.ID == "" {
			record.ID = uuid.New().String()
		}
		record.CreatedAt = now
		record.UpdatedAt = now
		if err := r.save(ctx, record); err != nil {
			return nil, err
		}
		data := mcp.DataFromRecord(record)
		data.CurrentStatus = record.Status
		if err := r.publish(ctx, mcp.EventRegistered, data); err != nil {
			return &record, err
		}
		r.logger.InfoContext(ctx, "Registered server", slog.String("name", record.Name))
		return &record, nil
	}

	record.ID = prev.ID
	record.CreatedAt = prev.CreatedAt
	// an update without a status keeps the health-checked one
	if record.Status == "" {
		record.Status = prev.Status
	}
	changes := changedFields(*prev, record)
	statusChanged := prev.Status != record.Status
	if len(changes) == 0 && !statusChanged {
		return prev, nil
	}

	record.UpdatedAt = now
	if err := r.save(ctx, record); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		data := mcp.DataFromRecord(record)
		data.Changes = changes
		if err := r.publish(ctx, mcp.EventUpdated, data); err != nil {
			return &record, err
		}
	}
	if statusChanged {
		if _, err := r.publishStatus(ctx, record, prev.Status); err != nil {
			return &record, err
		}
	}
	r.logger.InfoContext(ctx, "Updated server",
		slog.String("name", record.Name),
		slog.Any("changes", changes),
	)
	return &record, nil
}

// UpdateStatus records a health-check outcome. Only a real transition is written and
// announced; the returned event is nil otherwise.
func (r *StoreRegistry) UpdateStatus(ctx context.Context, name string, status mcp.ServerStatus) (*mcp.ChangeEvent, error) {
	if !validStatus(status) {
		return nil, errors.ValidationInvalid("status", string(status))
	}
	record, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.NotFound("server " + name)
	}
	if record.Status == status {
		return nil, nil
	}

	previous := record.Status
	record.Status = status
	record.UpdatedAt = r.now().UTC()
	if err := r.save(ctx, *record); err != nil {
		return nil, err
	}
	return r.publishStatus(ctx, *record, previous)
}

func (r *StoreRegistry) publish(ctx context.Context, eventType mcp.EventType, data mcp.EventData) error {
	if r.publisher == nil {
		return nil
	}
	_, err := r.publisher.Publish(ctx, eventType, data)
	return err
}

func (r *StoreRegistry) publishStatus(ctx context.Context, record mcp.ServerRecord, previous mcp.ServerStatus) (*mcp.ChangeEvent, error) {
	if r.publisher == nil {
		return nil, nil
	}
	data := mcp.DataFromRecord(record)
	data.PreviousStatus = previous
	data.CurrentStatus = record.Status
	return r.publisher.PublishStatusChange(ctx, data)
}
