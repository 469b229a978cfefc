package router

import (
	"context"
	"time"

	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	tghelpers "github.com/m3rciful/kaoribot/core/telegram/helpers"
	"github.com/m3rciful/kaoribot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// EventHandler consumes converted updates. It is implemented by the dispatcher.
type EventHandler interface {
	Handle(ctx context.Context, ev *commands.Event) error
}

// route converts the update and hands every resulting event to h.
func route(h EventHandler, name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		events := tg.Events(c.Update())
		if len(events) == 0 {
			logHandlerSummary(c, name, start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, name, start, "", "", func() error {
			ctx := tghelpers.BuildContext(c)
			var firstErr error
			for _, ev := range events {
				if err := h.Handle(ctx, ev); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		})
	}
}

// MessageRoutes routes text messages and captioned photos to h.
func MessageRoutes(h EventHandler) []tg.Route {
	handler := middleware.LoggerMiddleware(route(h, "message"))
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: handler},
		{Endpoint: tele.OnPhoto, Handler: handler},
	}
}

// MemberRoutes routes join and leave service messages to h.
func MemberRoutes(h EventHandler) []tg.Route {
	return []tg.Route{
		{Endpoint: tele.OnUserJoined, Handler: middleware.LoggerMiddleware(route(h, "member.join"))},
		{Endpoint: tele.OnUserLeft, Handler: middleware.LoggerMiddleware(route(h, "member.leave"))},
	}
}
