package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

// Seed registers every record in a JSON array file. Records already present and
// unchanged are skipped without events. Returns the number of records processed.
func (r *StoreRegistry) Seed(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrCodeConfiguration, "failed to read seed file %s", path)
	}

	var records []mcp.ServerRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, errors.Wrapf(err, errors.ErrCodeValidationFormat, "seed file %s is not a JSON array of records", path)
	}

	for i, record := range records {
		if _, err := r.Register(ctx, record); err != nil {
			return i, errors.Wrapf(err, errors.GetCode(err), "failed to seed record %d (%s)", i, record.Name)
		}
	}

	r.logger.InfoContext(ctx, "Seeded registry",
		slog.String("path", path),
		slog.Int("count", len(records)),
	)
	return len(records), nil
}
