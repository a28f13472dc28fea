package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// maxStdioLine bounds one newline-delimited message
const maxStdioLine = 4 << 20

// StdioTransport serves newline-delimited JSON-RPC on a reader/writer pair, stdin/stdout by default
type StdioTransport struct {
	in      io.Reader
	out     io.Writer
	running atomic.Bool
	logger  *slog.Logger
}

// NewStdioTransport creates a transport over os.Stdin and os.Stdout
func NewStdioTransport() *StdioTransport {
	return NewStdioTransportWithIO(os.Stdin, os.Stdout)
}

// NewStdioTransportWithIO creates a transport over in and out
func NewStdioTransportWithIO(in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		in:     in,
		out:    out,
		logger: logging.GetGlobalLogger("transport.stdio"),
	}
}

// Start reads messages until EOF, Stop, or ctx cancellation
func (t *StdioTransport) Start(ctx context.Context, handler Handler) error {
	t.running.Store(true)
	t.logger.InfoContext(ctx, "StdIO transport starting", slog.String("transport", t.Name()))

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxStdioLine)

	for t.running.Load() && scanner.Scan() {
		select {
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "StdIO transport context cancelled")
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		requestCtx := logging.NewRequestContext(ctx, "HandleStdIORequest")
		startTime := time.Now()
		resp := handler.HandleMessage(requestCtx, line)
		if resp == nil {
			continue
		}

		if resp.Error != nil {
			t.logger.WarnContext(requestCtx, "Request completed with error",
				slog.String("id", string(resp.ID)),
				slog.Int("code", resp.Error.Code),
				slog.String("error", resp.Error.Message),
				slog.Duration("duration", time.Since(startTime)),
			)
		}
		t.sendResponse(requestCtx, resp)
	}

	if err := scanner.Err(); err != nil {
		t.logger.ErrorContext(ctx, "Error reading from stdin", slog.String("error", err.Error()))
		return errors.Wrap(err, errors.ErrCodeStreamWrite, "error reading from stdin")
	}

	t.logger.InfoContext(ctx, "StdIO transport stopped")
	return nil
}

// Stop ends the read loop after the current message
func (t *StdioTransport) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "StdIO transport stopping")
	t.running.Store(false)
	return nil
}

// Name returns the name of the transport
func (t *StdioTransport) Name() string {
	return "stdio"
}

func (t *StdioTransport) sendResponse(ctx context.Context, resp *JSONRPCResponse) {
	respBytes, err := SerializeResponse(resp)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to marshal response",
			slog.String("response_id", string(resp.ID)),
			slog.String("error", err.Error()),
		)
		respBytes, err = SerializeResponse(NewInternalError(resp.ID, "failed to serialize response"))
		if err != nil {
			return
		}
	}

	respBytes = append(respBytes, '\n')
	if _, err := t.out.Write(respBytes); err != nil {
		t.logger.ErrorContext(ctx, "Failed to write response", slog.String("error", err.Error()))
	}
}
