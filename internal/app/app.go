// Package app assembles kaoribot: storage, transport, the dispatcher and
// every feature module.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kaoribot/core/bootstrap"
	corecmd "github.com/m3rciful/kaoribot/core/cmd"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
	"github.com/m3rciful/kaoribot/core/scheduler"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/router"
	tgsender "github.com/m3rciful/kaoribot/core/telegram/sender"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/internal/config"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/features/afk"
	"github.com/m3rciful/kaoribot/internal/features/captcha"
	"github.com/m3rciful/kaoribot/internal/features/devtools"
	"github.com/m3rciful/kaoribot/internal/features/general"
	"github.com/m3rciful/kaoribot/internal/features/greet"
	"github.com/m3rciful/kaoribot/internal/features/moderation"
	"github.com/m3rciful/kaoribot/internal/features/pokemon"
	"github.com/m3rciful/kaoribot/internal/features/tictactoe"
	"github.com/m3rciful/kaoribot/internal/store"
)

const sessionReportInterval = 15 * time.Minute

// module contributes commands to the registry.
type module interface {
	Commands() []commands.Command
}

// App holds the running bot's components.
type App struct {
	cfg *config.Config

	db       *sqlx.DB
	store    *store.Store
	bot      *tele.Bot
	sender   *tgsender.Queue
	registry *tg.Registry
	sessions *state.Store
	sched    *scheduler.Scheduler
	engine   *engine.Dispatcher
	pokemon  *pokemon.Module
}

// New connects storage, builds the bot and wires every feature.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:      cfg,
		db:       res.DB,
		store:    store.New(res.DB),
		registry: tg.NewRegistry(cfg.Bot.Prefix),
		sessions: state.NewStore(),
	}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	bot, err := tg.NewBot(&cfg.Config)
	if err != nil {
		return err
	}
	a.bot = bot
	if cfg.Bot.Username == "" && bot.Me != nil {
		cfg.Bot.Username = bot.Me.Username
	}
	var botID int64
	if bot.Me != nil {
		botID = bot.Me.ID
	}

	if a.sched, err = scheduler.New(); err != nil {
		return err
	}
	a.sender = tgsender.New(tgsender.Options{})
	msgr := tg.NewMessenger(bot, a.sender)

	a.engine = engine.New(engine.Options{
		Commands:    a.registry,
		Messenger:   msgr,
		Users:       a.store,
		Prefix:      cfg.Bot.Prefix,
		BotUsername: cfg.Bot.Username,
		IsDev:       cfg.Bot.IsDev,
	})

	verify := captcha.New(captcha.Options{
		Messenger:   msgr,
		Sessions:    a.sessions,
		JoinTimeout: cfg.Sessions.CaptchaJoin,
		Timeout:     cfg.Sessions.Captcha,
	})
	greeter := greet.New(greet.Options{
		Messenger: msgr,
		Chats:     a.store,
		Verifier:  verify,
		BotID:     botID,
		Prefix:    cfg.Bot.Prefix,
	})
	a.engine.OnJoin(greeter.OnJoin)
	a.engine.OnLeave(greeter.OnLeave)

	a.pokemon = pokemon.New(pokemon.Options{
		Messenger: msgr,
		Sessions:  a.sessions,
		Store:     a.store,
		Source: pokemon.NewClient(
			tg.BuildHTTPClient(tg.HTTPClientOptions{Timeout: 15 * time.Second}),
			cfg.Pokemon.APIURL, cfg.Pokemon.MaxID),
		Scheduler: a.sched,
		Delays:    cfg.Pokemon.Delays,
		Answer:    cfg.Pokemon.Answer,
		Reward:    cfg.Pokemon.Reward,
		Prefix:    cfg.Bot.Prefix,
	})
	a.engine.OnText(a.pokemon.Listen)

	modules := []module{
		general.New(general.Options{
			Messenger:   msgr,
			Catalog:     a.registry,
			Store:       a.store,
			BotUsername: func() string { return cfg.Bot.Username },
		}),
		afk.New(msgr, a.store, time.Now),
		verify,
		tictactoe.New(tictactoe.Options{
			Messenger:   msgr,
			Sessions:    a.sessions,
			XP:          a.store,
			TurnTimeout: cfg.Sessions.Turn,
		}),
		moderation.New(moderation.Options{
			Messenger: msgr,
			Store:     a.store,
			BotID:     botID,
		}),
		devtools.New(devtools.Options{
			Messenger: msgr,
			Commands:  a.registry,
			Store:     a.store,
			Sessions:  a.sessions,
			IsDev:     cfg.Bot.IsDev,
		}),
		a.pokemon,
	}
	for _, m := range modules {
		for _, c := range m.Commands() {
			a.registry.Register(c)
		}
	}

	if err := store.CommandSeeder(a.registry.Names).Seed(ctx, a.db); err != nil {
		return fmt.Errorf("app: seeding commands failed: %w", err)
	}
	logger.TWire.Info("modules wired",
		slog.String("event", "app.wire"),
		slog.Int("count", len(a.registry.Names())),
	)
	return nil
}

// TelegramRunOptions describes how the core runtime drives the bot.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := append(router.MessageRoutes(a.engine), router.MemberRoutes(a.engine)...)
	routes = append(routes, router.CallbackRoute(a.engine))

	var selfID int64
	if a.bot.Me != nil {
		selfID = a.bot.Me.ID
	}
	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Bot:         a.bot,
		Sender:      a.sender,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, selfID, nil),
		Routes:      routes,
		OnStart: func(context.Context, tg.Runtime) error {
			if err := a.sched.Every("sessions.report", sessionReportInterval, a.reportSessions); err != nil {
				return err
			}
			a.sched.Start()
			if a.cfg.Pokemon.Enabled {
				return a.pokemon.Schedule()
			}
			return nil
		},
		OnStop: func(_ context.Context, rt tg.Runtime) error {
			a.sessions.Close()
			logger.TG.Info("outbound queue summary",
				slog.String("event", "sender.summary"),
				slog.Uint64("failed", rt.Sender.Failed()),
			)
			return a.sched.Stop()
		},
	}, nil
}

// reportSessions logs the live interactions per feature.
func (a *App) reportSessions(ctx context.Context) error {
	counts := a.sessions.Counts()
	attrs := make([]any, 0, len(counts)+2)
	attrs = append(attrs, slog.String("event", "sessions.report"), slog.Int("count", a.sessions.Len()))
	for feature, n := range counts {
		attrs = append(attrs, slog.Int(feature, n))
	}
	logger.SESS.InfoContext(ctx, "live sessions", attrs...)
	return nil
}

// Services returns the processes run beside the bot.
func (a *App) Services() []corecmd.Service {
	return []corecmd.Service{
		func(ctx context.Context) error { return metrics.Serve(ctx, a.cfg.Metrics) },
	}
}

// Close releases the database.
func (a *App) Close() error {
	a.sessions.Close()
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
