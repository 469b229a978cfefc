package router

import (
	"log/slog"
	"strings"
	"time"

	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute returns the generic callback endpoint. Data that does not
// encode a command is acknowledged and dropped; everything else goes to h,
// which is responsible for answering the query.
func CallbackRoute(h EventHandler) tg.Route {
	inner := route(h, "callback")
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		raw := callbacks.Raw(cb)
		if !strings.HasPrefix(raw, commands.CallbackMarker) {
			start := time.Now()
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			logHandlerSummary(c, "callback."+normalizeHandlerName(callbacks.Key(cb)), start, "skip", "unsupported", nil,
				slog.String("reason", "not_found"))
			return nil
		}
		return inner(c)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.LoggerMiddleware(handler),
	}
}
