package moderation

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/helpers"
	"github.com/m3rciful/kaoribot/internal/engine"
)

func (m *Module) mute(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	d := time.Duration(m.muteMinutes()) * time.Minute
	if raw, ok := req.Input.Flag("time"); ok {
		if d, ok = helpers.ParseMinutes(raw); !ok {
			return errs.User(engine.Card("Invalid Time", "❌", "Use time:&lt;minutes&gt;"))
		}
	}
	until := m.now().Add(d)
	for _, u := range users {
		if member, err := m.messenger.Member(ctx, ev.ChatID, u.ID); err == nil && member.IsAdmin() {
			text := engine.Card("Action Denied", "❌", "Cannot mute an admin: "+engine.MentionUser(u))
			if err := engine.Reply(ctx, m.messenger, ev, text); err != nil {
				return err
			}
			continue
		}
		if err := m.messenger.Restrict(ctx, ev.ChatID, u.ID, until); err != nil {
			return err
		}
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "mute",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("user_id", u.ID),
			slog.Duration("duration", d),
		)
		text := engine.Card("User Muted", "🔇",
			"<i>User</i>: "+engine.MentionUser(u),
			"<i>Duration</i>: "+format.Duration(d),
		)
		if err := engine.Reply(ctx, m.messenger, ev, text); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) unmute(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := m.messenger.Lift(ctx, ev.ChatID, u.ID); err != nil {
			return err
		}
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "unmute",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("user_id", u.ID),
		)
		if err := engine.Reply(ctx, m.messenger, ev, engine.Card("User Unmuted", "🔊", "<i>User</i>: "+engine.MentionUser(u))); err != nil {
			return err
		}
	}
	return nil
}
