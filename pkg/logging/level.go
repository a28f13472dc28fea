package logging

import (
	"context"
	"log/slog"
)

// LevelHandler filters records below a per-component level that can change at runtime
type LevelHandler struct {
	handler slog.Handler
	level   slog.Leveler
}

// NewLevelHandler wraps handler so only records at or above level pass
func NewLevelHandler(handler slog.Handler, level slog.Leveler) *LevelHandler {
	// Avoid stacking level handlers
	if lh, ok := handler.(*LevelHandler); ok {
		handler = lh.handler
	}
	return &LevelHandler{handler: handler, level: level}
}

func (lh *LevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= lh.level.Level() && lh.handler.Enabled(ctx, level)
}

func (lh *LevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < lh.level.Level() {
		return nil
	}
	return lh.handler.Handle(ctx, record)
}

func (lh *LevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelHandler{handler: lh.handler.WithAttrs(attrs), level: lh.level}
}

func (lh *LevelHandler) WithGroup(name string) slog.Handler {
	return &LevelHandler{handler: lh.handler.WithGroup(name), level: lh.level}
}

// Handler returns the wrapped handler
func (lh *LevelHandler) Handler() slog.Handler {
	return lh.handler
}
