// Package logging installs the process-wide slog logger and threads
// per-request attributes through context.Context.
//
// Middleware tags a request's context with its request ID, the auth guard
// adds the signed-in user and the live feed adds its connection ID. Any
// record logged with slog's *Context functions and that context carries
// the tags, so handlers never pass them around by hand.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Setup builds the default logger writing to w. level is any name slog
// understands ("debug", "info", "warn", "error", optionally with an offset
// like "info+2"); unknown names mean info. format "json" selects JSON,
// anything else text.
func Setup(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var base slog.Handler
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(contextHandler{base})
	slog.SetDefault(logger)
	return logger
}

type attrsKey struct{}

// With returns a child of ctx whose records also carry attrs.
func With(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev := attrsFrom(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

func attrsFrom(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

// contextHandler appends the attributes stored by With.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := attrsFrom(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func RequestID(id string) slog.Attr { return slog.String("request_id", id) }

func UserID(id uuid.UUID) slog.Attr { return slog.String("user_id", id.String()) }

func ConnectionID(id string) slog.Attr { return slog.String("connection_id", id) }

// Err is the attribute every failure is logged under.
func Err(err error) slog.Attr { return slog.Any("error", err) }
