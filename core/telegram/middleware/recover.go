package middleware

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	tghelpers "github.com/m3rciful/kaoribot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing.
// The recovered value is logged with the location of the panicking frame.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				file, line := PanicSite()
				perr := errs.Panic(r, file, line)
				logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "tg.panic",
					slog.String("err", perr.Error()),
					slog.String("err_code", errs.Code(perr)),
					slog.String("src", errs.Location(perr)),
					slog.String("stack", string(debug.Stack())),
				)
				err = nil
			}
		}()
		return next(c)
	}
}

// PanicSite returns the file and line of the frame that panicked. It must be
// called from the deferred function that recovered.
func PanicSite() (string, int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	afterPanic := false
	for {
		f, more := frames.Next()
		if afterPanic && !strings.HasPrefix(f.Function, "runtime.") {
			return f.File, f.Line
		}
		if f.Function == "runtime.gopanic" {
			afterPanic = true
		}
		if !more {
			break
		}
	}
	return "", 0
}
