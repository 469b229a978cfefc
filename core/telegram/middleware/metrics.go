package middleware

import (
	"github.com/m3rciful/kaoribot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

// UpdateMetricsMiddleware counts received updates by kind.
func UpdateMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		metrics.UpdatesReceived.WithLabelValues(UpdateKind(c.Update())).Inc()
		return next(c)
	}
}
