package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey int

const (
	keyMeta ctxKey = iota
	keyLogger
)

// Meta identifies the update a log line belongs to. Fields fill in as the
// update moves from the router into the dispatcher.
type Meta struct {
	UpdateID int
	ChatID   int64
	UserID   int64
	Handler  string
	Command  string
	Category string
}

// RID is the correlation id of the update: update, chat and user ids in
// base36, dot separated. Empty when nothing is known yet.
func (m Meta) RID() string {
	if m.UpdateID == 0 && m.ChatID == 0 && m.UserID == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(m.UpdateID), 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(m.ChatID, 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(m.UserID, 36))
	return b.String()
}

func (m Meta) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 7)
	if rid := m.RID(); rid != "" {
		out = append(out, slog.String("rid", rid))
	}
	if m.UpdateID != 0 {
		out = append(out, slog.Int("update_id", m.UpdateID))
	}
	if m.UserID != 0 {
		out = append(out, slog.Int64("user_id", m.UserID))
	}
	if m.ChatID != 0 {
		out = append(out, slog.Int64("chat_id", m.ChatID))
	}
	if m.Handler != "" {
		out = append(out, slog.String("handler", m.Handler))
	}
	if m.Command != "" {
		out = append(out, slog.String("command", m.Command))
	}
	if m.Category != "" {
		out = append(out, slog.String("category", m.Category))
	}
	return out
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithMeta replaces the update metadata carried by ctx.
func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(orBackground(ctx), keyMeta, m)
}

// MetaFrom returns the update metadata carried by ctx, or the zero Meta.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(keyMeta).(Meta)
	return m
}

// WithHandler records the router branch handling the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return orBackground(ctx)
	}
	m := MetaFrom(ctx)
	m.Handler = handler
	return WithMeta(ctx, m)
}

// WithCommand records the resolved command and its help category.
func WithCommand(ctx context.Context, command, category string) context.Context {
	m := MetaFrom(ctx)
	m.Command = command
	m.Category = category
	return WithMeta(ctx, m)
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		return orBackground(ctx)
	}
	return context.WithValue(orBackground(ctx), keyLogger, log)
}

// FromContext returns the logger stored in ctx, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(keyLogger).(*slog.Logger); ok {
			return l
		}
	}
	return L
}
