package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JamesPrial/mcp-registry-gateway/internal/eventlog"
	"github.com/JamesPrial/mcp-registry-gateway/internal/mailbox"
	"github.com/JamesPrial/mcp-registry-gateway/internal/notify"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

// Signal event names
const (
	EventOpen      = "open"
	EventMessage   = "message"
	EventHeartbeat = "heartbeat"
	EventClose     = "close"
)

// SSEEvent is one pushed unit. Event types from the log are sent under their own name.
type SSEEvent struct {
	ID    string
	Event string
	Data  interface{}
}

// WriteEvent frames e as "event: <name>\n[id: <id>\n]data: <json>\n\n"
func WriteEvent(w io.Writer, e SSEEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeProtocolMarshal, "failed to encode event data")
	}
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(e.Event)
	buf.WriteByte('\n')
	if e.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(e.ID)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	_, err = w.Write(buf.Bytes())
	return err
}

// sseWriter pushes frames to one streaming response
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &sseWriter{w: w, rc: http.NewResponseController(w)}
	if err := s.rc.Flush(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStreamUnsupported, "response does not support streaming")
	}
	return s, nil
}

func (s *sseWriter) Send(e SSEEvent) error {
	if err := WriteEvent(s.w, e); err != nil {
		return err
	}
	return s.rc.Flush()
}

type openPayload struct {
	SessionID     string `json:"sessionId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Since         string `json:"since"`
	QuotaMs       int64  `json:"quotaMs"`
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}

type closePayload struct {
	Reason string `json:"reason"`
	Cursor string `json:"cursor"`
}

// ParseSince reads a cursor given as unix milliseconds or RFC 3339. Empty means now minus lookback.
func ParseSince(raw string, now time.Time, lookback time.Duration) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Add(-lookback).UTC(), nil
	}
	if isDigits(raw) {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, errors.Wrap(err, errors.ErrCodeValidationRange, "since is out of range")
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeValidationFormat,
			"since must be RFC 3339 or unix milliseconds").WithDetails(raw)
	}
	return ts.UTC(), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// sessionRequest is the validated query of a stream request
type sessionRequest struct {
	correlationID string
	since         time.Time
	filter        eventlog.TypeFilter
	lastEventID   string
}

func (t *HTTPTransport) parseSessionRequest(r *http.Request, kind SessionKind) (*sessionRequest, error) {
	q := r.URL.Query()
	out := &sessionRequest{}

	if kind == KindGateway {
		out.correlationID = q.Get("correlationId")
		if out.correlationID != "" {
			if err := mailbox.ValidateCorrelationID(out.correlationID); err != nil {
				return nil, err
			}
		}
	}

	filter, err := eventlog.ParseTypeFilter(q.Get("types"))
	if err != nil {
		return nil, err
	}
	out.filter = filter

	rawSince := q.Get("since")
	if rawSince == "" {
		// A reconnecting browser EventSource resumes from its last id
		if id, err := ulid.ParseStrict(r.Header.Get("Last-Event-ID")); err == nil {
			out.lastEventID = id.String()
			out.since = ulid.Time(id.Time()).UTC()
			return out, nil
		}
	}
	out.since, err = ParseSince(rawSince, t.now(), t.lookback)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// handleGateway serves GET /sse
func (t *HTTPTransport) handleGateway(w http.ResponseWriter, r *http.Request) {
	t.serveStream(w, r, KindGateway)
}

// handleEvents serves GET /events
func (t *HTTPTransport) handleEvents(w http.ResponseWriter, r *http.Request) {
	t.serveStream(w, r, KindEvents)
}

func (t *HTTPTransport) serveStream(w http.ResponseWriter, r *http.Request, kind SessionKind) {
	ctx := r.Context()
	req, err := t.parseSessionRequest(r, kind)
	if err != nil {
		t.writeHTTPError(ctx, w, err)
		return
	}

	out, err := newSSEWriter(w)
	if err != nil {
		t.logger.ErrorContext(ctx, "Cannot stream to client", slog.String("error", err.Error()))
		return
	}

	sess := NewSession(kind, req.correlationID, req.since, req.filter)
	if req.lastEventID != "" {
		sess.delivered[req.lastEventID] = req.since
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	if sess.CorrelationID != "" {
		ctx = logging.WithCorrelationID(ctx, sess.CorrelationID)
	}
	t.sessions.Add(sess)
	defer t.sessions.RemoveSession(sess.ID)

	metrics := logging.GetGlobalMetricsCollector()
	metrics.SessionOpened(string(kind))

	quotaCtx, cancel := context.WithTimeout(ctx, t.settings.Quota)
	defer cancel()

	t.logger.InfoContext(ctx, "Session opened",
		slog.String("session_id", sess.ID),
		slog.String("kind", string(kind)),
		slog.String("correlation_id", sess.CorrelationID),
		slog.Time("since", req.since),
	)

	reason := t.runSession(quotaCtx, ctx, out, sess)
	sess.setState(StateClosed)
	metrics.SessionClosed(reason)

	t.logger.InfoContext(ctx, "Session closed",
		slog.String("session_id", sess.ID),
		slog.String("reason", reason),
		slog.Time("cursor", sess.Cursor()),
		slog.Duration("age", time.Since(sess.CreatedAt)),
	)
}

// runSession drives one connection from OPENING to CLOSING and returns the close reason.
// ctx carries the quota deadline; reqCtx ends when the client goes away.
func (t *HTTPTransport) runSession(ctx, reqCtx context.Context, out *sseWriter, sess *Session) string {
	sess.setState(StateOpening)
	open := openPayload{
		SessionID:     sess.ID,
		CorrelationID: sess.CorrelationID,
		Since:         sess.Cursor().Format(time.RFC3339Nano),
		QuotaMs:       t.settings.Quota.Milliseconds(),
	}
	if err := out.Send(SSEEvent{Event: EventOpen, Data: open}); err != nil {
		return t.writeFailure(reqCtx)
	}

	sess.setState(StateReplaying)
	if err := t.deliverEvents(ctx, out, sess); err != nil {
		return t.writeFailure(reqCtx)
	}

	sess.setState(StateLive)

	eventTicker := time.NewTicker(t.settings.EventPollInterval)
	defer eventTicker.Stop()
	heartbeat := time.NewTicker(t.settings.HeartbeatInterval)
	defer heartbeat.Stop()
	eventWake := t.subscribe(ctx, notify.TopicEvents)

	var mailboxTick <-chan time.Time
	var mailboxWake <-chan string
	if sess.CorrelationID != "" {
		mailboxTicker := time.NewTicker(t.settings.MailboxPollInterval)
		defer mailboxTicker.Stop()
		mailboxTick = mailboxTicker.C
		mailboxWake = t.subscribe(ctx, notify.MailboxTopic(sess.CorrelationID))

		// a request submitted before the connection opened is waiting already
		if err := t.pollMailbox(ctx, out, sess); err != nil {
			return t.writeFailure(reqCtx)
		}
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			if reqCtx.Err() != nil {
				return CloseReasonDisconnect
			}
			return t.closeSession(reqCtx, out, sess, CloseReasonQuota)

		case <-t.shutdown:
			return t.closeSession(reqCtx, out, sess, CloseReasonShutdown)

		case <-mailboxTick:
			err = t.pollMailbox(ctx, out, sess)

		case _, ok := <-mailboxWake:
			if !ok {
				mailboxWake = nil
				continue
			}
			err = t.pollMailbox(ctx, out, sess)

		case <-eventTicker.C:
			err = t.deliverEvents(ctx, out, sess)

		case _, ok := <-eventWake:
			if !ok {
				eventWake = nil
				continue
			}
			err = t.deliverEvents(ctx, out, sess)

		case now := <-heartbeat.C:
			err = out.Send(SSEEvent{
				Event: EventHeartbeat,
				Data:  heartbeatPayload{Timestamp: now.UTC().Format(time.RFC3339Nano)},
			})
		}
		if err != nil {
			return t.writeFailure(reqCtx)
		}
	}
}

func (t *HTTPTransport) closeSession(reqCtx context.Context, out *sseWriter, sess *Session, reason string) string {
	sess.setState(StateClosing)
	err := out.Send(SSEEvent{Event: EventClose, Data: closePayload{
		Reason: reason,
		Cursor: sess.Cursor().Format(time.RFC3339Nano),
	}})
	if err != nil {
		return t.writeFailure(reqCtx)
	}
	return reason
}

func (t *HTTPTransport) writeFailure(reqCtx context.Context) string {
	if reqCtx.Err() != nil {
		return CloseReasonDisconnect
	}
	return CloseReasonWriteError
}

// subscribe returns nil when wakeups are unavailable; polling still covers delivery
func (t *HTTPTransport) subscribe(ctx context.Context, topic string) <-chan string {
	ch, err := t.deps.Bus.Subscribe(ctx, topic)
	if err != nil {
		t.logger.WarnContext(ctx, "Wakeup subscription failed, relying on polling",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return ch
}

// pollMailbox takes the pending request for the session, dispatches it and pushes the
// response. Store faults skip the cycle. A response ready after the deadline is dropped.
func (t *HTTPTransport) pollMailbox(ctx context.Context, out *sseWriter, sess *Session) error {
	if ctx.Err() != nil {
		return nil
	}
	raw, err := t.deps.Mailbox.Take(ctx, sess.CorrelationID)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.WarnContext(ctx, "Mailbox poll failed",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	if raw == nil {
		return nil
	}

	resp := t.handler.HandleMessage(ctx, raw)
	if ctx.Err() != nil {
		t.logger.WarnContext(ctx, "Dropping response computed after session deadline",
			slog.String("session_id", sess.ID),
			slog.String("correlation_id", sess.CorrelationID),
		)
		return nil
	}
	if resp == nil {
		return nil
	}
	return out.Send(SSEEvent{Event: EventMessage, Data: resp})
}

// deliverEvents pushes log entries at or after the cursor that this session has not sent yet
func (t *HTTPTransport) deliverEvents(ctx context.Context, out *sseWriter, sess *Session) error {
	if ctx.Err() != nil {
		return nil
	}
	events, err := t.deps.Events.Replay(ctx, sess.Cursor(), sess.Filter)
	if err != nil {
		if ctx.Err() == nil {
			logging.GetGlobalMetricsCollector().RecordStoreFault("replay")
			t.logger.WarnContext(ctx, "Event poll failed, cursor unchanged",
				slog.String("session_id", sess.ID),
				slog.Time("cursor", sess.Cursor()),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	metrics := logging.GetGlobalMetricsCollector()
	for _, e := range events {
		if sess.seen(e.ID) {
			continue
		}
		if err := out.Send(eventFrame(e)); err != nil {
			return err
		}
		sess.markDelivered(e)
		metrics.RecordEventDelivered(string(e.Type))
	}
	sess.pruneDelivered()
	return nil
}

func eventFrame(e mcp.ChangeEvent) SSEEvent {
	return SSEEvent{ID: e.ID, Event: string(e.Type), Data: e}
}

func (t *HTTPTransport) writeHTTPError(ctx context.Context, w http.ResponseWriter, err error) {
	httpErr := errors.ToHTTPError(err)
	if httpErr.Status >= http.StatusInternalServerError {
		t.errLogger.LogError(ctx, err, "gateway")
	} else {
		t.logger.DebugContext(ctx, "Rejected request",
			slog.Int("status", httpErr.Status),
			slog.String("error", LoggableError(err).Error()),
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Status)
	if encErr := json.NewEncoder(w).Encode(httpErr); encErr != nil {
		t.logger.ErrorContext(ctx, "Failed to encode error response", slog.String("error", encErr.Error()))
	}
}
