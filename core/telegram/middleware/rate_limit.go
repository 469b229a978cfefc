package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
	tghelpers "github.com/m3rciful/kaoribot/core/telegram/helpers"
	"golang.org/x/time/rate"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// PerSecond is the sustained per-user rate; 0 disables limiting.
	PerSecond float64
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// IdleTTL drops limiters of users not seen for this long.
	IdleTTL time.Duration
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterSet keeps one token bucket per user.
type limiterSet struct {
	mu      sync.Mutex
	users   map[int64]*userLimiter
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	lastGC  time.Time
}

func newLimiterSet(opts RateLimitOptions) *limiterSet {
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &limiterSet{
		users:   make(map[int64]*userLimiter),
		limit:   rate.Limit(opts.PerSecond),
		burst:   burst,
		idleTTL: ttl,
	}
}

func (s *limiterSet) allow(userID int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastGC) > s.idleTTL {
		for id, u := range s.users {
			if now.Sub(u.seen) > s.idleTTL {
				delete(s.users, id)
			}
		}
		s.lastGC = now
	}
	u, ok := s.users[userID]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(s.limit, s.burst)}
		s.users[userID] = u
	}
	u.seen = now
	return u.lim.AllowN(now, 1)
}

// UpdateKind classifies an update for rate-limit exclusions and metrics.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && (upd.Message.UserJoined != nil || len(upd.Message.UsersJoined) > 0 || upd.Message.UserLeft != nil):
		return "chat_member"
	case upd.ChatMember != nil:
		return "chat_member"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware returns a middleware that applies a per-user token
// bucket. Dropped updates are logged and counted.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	set := newLimiterSet(opts)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.PerSecond <= 0 {
				return next(c)
			}

			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if set.allow(user.ID, time.Now()) {
				return next(c)
			}

			metrics.RateLimited.WithLabelValues(kind).Inc()
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("kind", kind),
				slog.String("outcome", "rate_limited"),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
