package engine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/store"
)

// sideChannel runs before dispatch. A returning sender is welcomed back and
// away users referenced by the message are announced.
func (d *Dispatcher) sideChannel(ctx context.Context, ev *commands.Event, in commands.Input, sender store.User) {
	if sender.AFK && in.Command != AFKCommand {
		d.welcomeBack(ctx, ev, sender)
	}
	if ev.IsCallback() {
		return
	}
	for _, target := range d.referenced(ctx, ev) {
		if !target.AFK {
			continue
		}
		if err := d.users.AddMention(ctx, target.ID, ev.ChatID, ev.MessageID); err != nil {
			logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "afk.mention.fail", slog.String("err", err.Error()))
		}
		reason := target.AFKReason
		if reason == "" {
			reason = "Not specified"
		}
		text := card("User AFK", "💤",
			"User: "+format.Mention(target.ID, d.displayName(ev, target)),
			"Reason: "+format.Escape(reason),
		)
		if err := Reply(ctx, d.messenger, ev, text); err != nil {
			logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "afk.notice.fail", slog.String("err", err.Error()))
		}
	}
}

func (d *Dispatcher) welcomeBack(ctx context.Context, ev *commands.Event, sender store.User) {
	mentions, err := d.users.ClearAFK(ctx, sender.ID)
	if err != nil {
		logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "afk.clear.fail", slog.String("err", err.Error()))
		return
	}
	c := ui.NewCard("Welcome Back", "👋").
		Line("User: %s", format.Mention(ev.Sender.ID, ev.Sender.FullName())).
		Line("Away For: %s", format.Since(sender.AFKSince, d.now()))
	if len(mentions) > 0 {
		c.Section("Tagged While Away", "🔗")
		for i, m := range mentions {
			c.Line("%d. %s", i+1, format.Link(format.MessageLink(m.ChatID, m.MessageID), "Jump to message"))
		}
	}
	if err := Reply(ctx, d.messenger, ev, c.String()); err != nil {
		logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "afk.welcome.fail", slog.String("err", err.Error()))
	}
	logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "afk.cleared",
		slog.Int("count", len(mentions)),
	)
}

// referenced returns the stored records of the replied-to and mentioned
// users, without the sender and without duplicates.
func (d *Dispatcher) referenced(ctx context.Context, ev *commands.Event) []store.User {
	seen := map[int64]bool{ev.Sender.ID: true}
	var out []store.User
	add := func(id int64) {
		if id == 0 || seen[id] {
			return
		}
		seen[id] = true
		u, err := d.users.User(ctx, id)
		if err != nil {
			logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "afk.lookup.fail", slog.String("err", err.Error()))
			return
		}
		out = append(out, u)
	}
	if ev.ReplyTo != nil {
		add(ev.ReplyTo.ID)
	}
	for _, m := range ev.Mentions {
		add(m.ID)
	}
	for _, name := range ev.Usernames {
		u, err := d.users.UserByUsername(ctx, name)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "afk.lookup.fail", slog.String("err", err.Error()))
			}
			continue
		}
		if !seen[u.ID] {
			seen[u.ID] = true
			out = append(out, u)
		}
	}
	return out
}

// displayName prefers the name Telegram sent with the event.
func (d *Dispatcher) displayName(ev *commands.Event, u store.User) string {
	if ev.ReplyTo != nil && ev.ReplyTo.ID == u.ID {
		return ev.ReplyTo.FullName()
	}
	for _, m := range ev.Mentions {
		if m.ID == u.ID {
			return m.FullName()
		}
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "user " + strconv.FormatInt(u.ID, 10)
}
