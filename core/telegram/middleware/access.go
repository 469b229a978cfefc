package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/kaoribot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// IgnoreBotsOptions defines which senders are dropped before routing.
type IgnoreBotsOptions struct {
	// SelfID is the bot's own user id; its updates are always dropped.
	SelfID int64
	// AllowServiceMessages keeps join and leave messages sent on behalf of bots.
	AllowServiceMessages bool
}

// IgnoreBotsMiddleware drops updates authored by bots, including the bot
// itself, so features never react to automated messages.
func IgnoreBotsMiddleware(opts IgnoreBotsOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			if opts.AllowServiceMessages && UpdateKind(c.Update()) == "chat_member" {
				return next(c)
			}
			if user.IsBot || (opts.SelfID != 0 && user.ID == opts.SelfID) {
				logger.TG.LogAttrs(context.Background(), slog.LevelDebug, "update.skip",
					slog.Int64("user_id", user.ID),
					slog.String("reason", "bot_sender"),
				)
				return nil
			}
			return next(c)
		}
	}
}
