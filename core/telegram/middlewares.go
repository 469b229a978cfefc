package telegram

import (
	"strings"

	coreconfig "github.com/m3rciful/kaoribot/core/config"
	"github.com/m3rciful/kaoribot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared middleware chain for bots.
// selfID is the bot's own account id used to drop its echo updates.
func DefaultMiddlewares(cfg *coreconfig.Config, selfID int64, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "metrics", Use: middleware.UpdateMetricsMiddleware},
		{Name: "ignore_bots", Use: middleware.IgnoreBotsMiddleware(middleware.IgnoreBotsOptions{
			SelfID:               selfID,
			AllowServiceMessages: true,
		})},
	}

	if cfg != nil && cfg.RateLimit.PerSecond > 0 {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, t := range cfg.RateLimit.ExcludeUpdates {
			ex[strings.ToLower(t)] = struct{}{}
		}
		opts := middleware.RateLimitOptions{
			PerSecond: cfg.RateLimit.PerSecond,
			Burst:     cfg.RateLimit.Burst,
			Exclude:   ex,
		}
		if onLimited != nil {
			opts.OnLimited = onLimited
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use:  middleware.RateLimitMiddleware(opts),
		})
	}

	mws = append(mws, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
	return mws
}
