// Package client subscribes to the gateway's push channel. It tracks the replay cursor,
// drops events already processed, and reconnects with capped exponential backoff whenever
// the server closes the stream at its connection quota or the connection fails.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/JamesPrial/mcp-registry-gateway/internal/transport"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMultiplier     = 2.0

	PathEvents  = "/events"
	PathGateway = "/sse"
)

// Options configure a Subscriber
type Options struct {
	// BaseURL of the gateway, e.g. http://localhost:8080
	BaseURL string
	// Path is /events by default, /sse when CorrelationID is set
	Path          string
	CorrelationID string
	Types         []mcp.EventType
	// Since is the initial cursor; zero leaves the default lookback to the server
	Since time.Time

	// OnEvent is called once per event id; an error ends the connection without
	// advancing the cursor, so the event is replayed after reconnecting
	OnEvent func(ctx context.Context, e mcp.ChangeEvent) error
	// OnMessage receives RPC responses pushed on a gateway stream
	OnMessage func(ctx context.Context, resp *transport.JSONRPCResponse)
	// OnClose receives the reason of every server-initiated close
	OnClose func(reason string)

	HTTPClient     *http.Client
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter is the backoff randomization factor, 0 for exact doubling
	Jitter float64
}

// Subscriber holds one logical subscription across many connections
type Subscriber struct {
	opts   Options
	client *http.Client
	logger *slog.Logger

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	cursor time.Time
	seen   map[string]time.Time
}

// NewSubscriber validates opts and applies defaults
func NewSubscriber(opts Options) (*Subscriber, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.ValidationRequired("baseURL")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFormat, "baseURL is not a valid URL")
	}
	if opts.Path == "" {
		opts.Path = PathEvents
		if opts.CorrelationID != "" {
			opts.Path = PathGateway
		}
	}
	for _, t := range opts.Types {
		if !t.Valid() {
			return nil, errors.Newf(errors.ErrCodeEventType, "unknown event type %q", t)
		}
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	client := opts.HTTPClient
	if client == nil {
		// no overall timeout: streams live for the server's quota
		client = &http.Client{}
	}

	return &Subscriber{
		opts:   opts,
		client: client,
		logger: logging.GetGlobalLogger("client"),
		sleep:  sleepContext,
		cursor: opts.Since.UTC(),
		seen:   make(map[string]time.Time),
	}, nil
}

// Cursor is the timestamp of the last event processed
func (s *Subscriber) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Subscriber) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff
	b.Multiplier = DefaultMultiplier
	b.RandomizationFactor = s.opts.Jitter
	b.Reset()
	return b
}

// Run connects and reconnects until ctx is done. A connection that received its open
// event resets the backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	b := s.newBackOff()
	for {
		opened, err := s.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opened {
			b.Reset()
		}

		wait := b.NextBackOff()
		attrs := []any{slog.Duration("backoff", wait), slog.Time("cursor", s.Cursor())}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			s.logger.WarnContext(ctx, "Subscription interrupted, reconnecting", attrs...)
		} else {
			s.logger.DebugContext(ctx, "Subscription closed by server, reconnecting", attrs...)
		}

		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Subscriber) streamURL() string {
	q := url.Values{}
	if cursor := s.Cursor(); !cursor.IsZero() {
		q.Set("since", cursor.Format(time.RFC3339Nano))
	}
	if len(s.opts.Types) > 0 {
		names := make([]string, 0, len(s.opts.Types))
		for _, t := range s.opts.Types {
			names = append(names, string(t))
		}
		q.Set("types", strings.Join(names, ","))
	}
	if s.opts.CorrelationID != "" {
		q.Set("correlationId", s.opts.CorrelationID)
	}

	u := strings.TrimRight(s.opts.BaseURL, "/") + s.opts.Path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// connect runs one connection until the server closes it. opened reports whether the
// open event arrived.
func (s *Subscriber) connect(ctx context.Context) (opened bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.streamURL(), nil)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeValidationFormat, "failed to build stream request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, errors.Newf(errors.ErrCodeServiceUnavailable,
			"stream rejected with status %d", resp.StatusCode).WithDetails(strings.TrimSpace(string(body)))
	}

	frames := NewFrameReader(resp.Body)
	for {
		f, err := frames.Next()
		if err != nil {
			if err == io.EOF {
				return opened, errors.New(errors.ErrCodeServiceUnavailable, "stream ended without close")
			}
			return opened, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "stream interrupted")
		}

		switch f.Event {
		case transport.EventOpen:
			opened = true
		case transport.EventHeartbeat:
		case transport.EventClose:
			var payload struct {
				Reason string `json:"reason"`
			}
			_ = json.Unmarshal([]byte(f.Data), &payload)
			if s.opts.OnClose != nil {
				s.opts.OnClose(payload.Reason)
			}
			return opened, nil
		case transport.EventMessage:
			var rpc transport.JSONRPCResponse
			if err := json.Unmarshal([]byte(f.Data), &rpc); err != nil {
				s.logger.WarnContext(ctx, "Skipping undecodable message", slog.String("error", err.Error()))
				continue
			}
			if s.opts.OnMessage != nil {
				s.opts.OnMessage(ctx, &rpc)
			}
		default:
			if err := s.handleEvent(ctx, f); err != nil {
				return opened, err
			}
		}
	}
}

func (s *Subscriber) handleEvent(ctx context.Context, f Frame) error {
	if !mcp.EventType(f.Event).Valid() {
		s.logger.DebugContext(ctx, "Ignoring unknown frame", slog.String("event", f.Event))
		return nil
	}
	var e mcp.ChangeEvent
	if err := json.Unmarshal([]byte(f.Data), &e); err != nil {
		s.logger.WarnContext(ctx, "Skipping undecodable event",
			slog.String("id", f.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.mu.Lock()
	_, dup := s.seen[e.ID]
	s.mu.Unlock()
	if dup {
		return nil
	}

	if s.opts.OnEvent != nil {
		if err := s.opts.OnEvent(ctx, e); err != nil {
			return errors.Wrapf(err, errors.ErrCodeInternal, "event %s not processed", e.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[e.ID] = e.Timestamp
	if e.Timestamp.After(s.cursor) {
		s.cursor = e.Timestamp.UTC()
		for id, ts := range s.seen {
			if ts.Before(s.cursor) {
				delete(s.seen, id)
			}
		}
	}
	return nil
}

// Submit posts raw to the side channel under the subscriber's correlation id. The response
// arrives on the stream through OnMessage.
func (s *Subscriber) Submit(ctx context.Context, raw []byte) error {
	if s.opts.CorrelationID == "" {
		return errors.ValidationRequired("correlationId")
	}
	target := strings.TrimRight(s.opts.BaseURL, "/") + "/message?correlationId=" + url.QueryEscape(s.opts.CorrelationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidationFormat, "failed to build submit request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to submit request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var body errors.HTTPError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil || body.Code == "" {
			return errors.Newf(errors.ErrCodeServiceUnavailable, "submit failed with status %d", resp.StatusCode)
		}
		return errors.New(body.Code, body.Error).WithDetails(body.Details)
	}
	return nil
}

// SubmitRequest encodes req and submits it
func (s *Subscriber) SubmitRequest(ctx context.Context, req *transport.JSONRPCRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeProtocolMarshal, "failed to encode request")
	}
	return s.Submit(ctx, raw)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Subscriber) String() string {
	return fmt.Sprintf("subscriber(%s)", s.streamURL())
}
