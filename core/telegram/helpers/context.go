package helpers

import (
	"context"

	"github.com/m3rciful/kaoribot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "kaori.ctx"

// UpdateMeta returns the log metadata identifying the update behind c.
func UpdateMeta(c tele.Context) logger.Meta {
	m := logger.Meta{UpdateID: c.Update().ID}
	if chat := c.Chat(); chat != nil {
		m.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		m.UserID = user.ID
	}
	return m
}

// StoreContext keeps ctx on c so later stages log with the same metadata.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// BuildContext returns the context stored on c, creating one tagged with the
// update metadata and the tg logger on first use.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	ctx := logger.WithMeta(context.Background(), UpdateMeta(c))
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the stored context with the router branch name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	StoreContext(c, ctx)
	return ctx
}
