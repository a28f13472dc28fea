package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

// maxRecordBytes bounds a registration body
const maxRecordBytes = 64 << 10

// Registrar writes registry records and announces the changes on the event log
type Registrar interface {
	Register(ctx context.Context, record mcp.ServerRecord) (*mcp.ServerRecord, error)
	UpdateStatus(ctx context.Context, name string, status mcp.ServerStatus) (*mcp.ChangeEvent, error)
}

// WithRegistrar enables POST /admin/servers and POST /admin/servers/{name}/status
func (a *AdminServer) WithRegistrar(reg Registrar) *AdminServer {
	a.registrar = reg
	return a
}

// StatusRequest is the body of POST /admin/servers/{name}/status
type StatusRequest struct {
	Status mcp.ServerStatus `json:"status"`
}

// StatusResponse reports whether a status update produced a status_changed event
type StatusResponse struct {
	Success bool             `json:"success"`
	Name    string           `json:"name"`
	Status  mcp.ServerStatus `json:"status"`
	Changed bool             `json:"changed"`
	EventID string           `json:"eventId,omitempty"`
}

func (a *AdminServer) registerServer(w http.ResponseWriter, r *http.Request) {
	if a.registrar == nil {
		a.writeError(r.Context(), w, errors.New(errors.ErrCodeServiceUnavailable, "registry updates are disabled"))
		return
	}

	var record mcp.ServerRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBytes)).Decode(&record); err != nil {
		a.writeError(r.Context(), w, errors.Wrap(err, errors.ErrCodeValidationFormat, "invalid server record"))
		return
	}

	saved, err := a.registrar.Register(r.Context(), record)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}
	a.logger.InfoContext(r.Context(), "Server registered through admin",
		slog.String("name", saved.Name),
		slog.String("status", string(saved.Status)),
	)
	writeJSON(w, http.StatusOK, saved)
}

func (a *AdminServer) updateServerStatus(w http.ResponseWriter, r *http.Request) {
	if a.registrar == nil {
		a.writeError(r.Context(), w, errors.New(errors.ErrCodeServiceUnavailable, "registry updates are disabled"))
		return
	}

	name := chi.URLParam(r, "name")
	var req StatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		a.writeError(r.Context(), w, errors.Wrap(err, errors.ErrCodeValidationFormat, "invalid status request"))
		return
	}

	event, err := a.registrar.UpdateStatus(r.Context(), name, req.Status)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	resp := StatusResponse{Success: true, Name: name, Status: req.Status}
	if event != nil {
		resp.Changed = true
		resp.EventID = event.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *AdminServer) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	httpErr := errors.ToHTTPError(err)
	if httpErr.Status >= http.StatusInternalServerError {
		a.logger.ErrorContext(ctx, "Admin request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, httpErr.Status, httpErr)
}
