package logger

import (
	"context"
	"log/slog"
	"runtime"
)

// sourceHandler attaches the caller's source location to records at or above
// a minimum level. The wrapped handler must be built with AddSource: false;
// this wrapper supplies the source attribute itself so that cheap info-level
// records skip the runtime.Callers cost.
type sourceHandler struct {
	inner slog.Handler
	from  slog.Level
}

func newSourceHandler(inner slog.Handler, from slog.Level) slog.Handler {
	return &sourceHandler{inner: inner, from: from}
}

func (h *sourceHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.from {
		// Skip runtime.Callers, this frame, and the slog entry point.
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		frame, _ := runtime.CallersFrames(pcs[:]).Next()

		r.AddAttrs(slog.Attr{
			Key: slog.SourceKey,
			Value: slog.AnyValue(&slog.Source{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			}),
		})
	}
	return h.inner.Handle(ctx, r)
}

func (h *sourceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sourceHandler{inner: h.inner.WithAttrs(attrs), from: h.from}
}

func (h *sourceHandler) WithGroup(name string) slog.Handler {
	return &sourceHandler{inner: h.inner.WithGroup(name), from: h.from}
}

func (h *sourceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}
