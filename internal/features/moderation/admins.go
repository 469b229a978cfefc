package moderation

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/internal/engine"
)

const (
	purgeDefault = 10
	purgeMax     = 1000
)

func (m *Module) promote(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	rights := tg.AdminLimited
	for _, arg := range req.Input.Args() {
		if strings.EqualFold(arg, "full") {
			rights = tg.AdminFull
		}
	}
	u := users[0]
	if member, err := m.messenger.Member(ctx, ev.ChatID, u.ID); err == nil && member.Role == tg.RoleCreator {
		return errs.User(engine.Card("Action Denied", "❌", "Cannot promote the group owner: "+engine.MentionUser(u)))
	}
	if err := m.messenger.SetAdmin(ctx, ev.ChatID, u.ID, rights); err != nil {
		return errs.WrapCode(errs.CodeTransport, "promote", err)
	}
	logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "promote",
		slog.Int64("target_id", u.ID),
		slog.String("mode", rights.String()),
	)
	return engine.Reply(ctx, m.messenger, ev, engine.Card("User Promoted", "📈",
		"<i>User</i>: "+engine.MentionUser(u),
		"<i>Mode</i>: "+rights.String(),
	))
}

func (m *Module) demote(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	for _, u := range users {
		var denied string
		switch member, err := m.messenger.Member(ctx, ev.ChatID, u.ID); {
		case u.ID == ev.Sender.ID:
			denied = "You cannot demote yourself"
		case err == nil && member.Role == tg.RoleCreator:
			denied = "Cannot demote the group owner"
		}
		if denied != "" {
			if err := engine.Reply(ctx, m.messenger, ev, engine.Card("Action Denied", "❌", "<i>Reason</i>: "+denied)); err != nil {
				return err
			}
			continue
		}
		if err := m.messenger.SetAdmin(ctx, ev.ChatID, u.ID, tg.AdminNone); err != nil {
			return errs.WrapCode(errs.CodeTransport, "demote", err)
		}
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "demote", slog.Int64("target_id", u.ID))
		if err := engine.Reply(ctx, m.messenger, ev, engine.Card("User Demoted", "📉", "<i>User</i>: "+engine.MentionUser(u))); err != nil {
			return err
		}
	}
	return nil
}

// purge deletes the command message and the ones sent before it, newest
// first. Gaps in the id range are skipped by Telegram.
func (m *Module) purge(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	count := purgeDefault
	if args := req.Input.Args(); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return errs.User(engine.Card("Invalid Usage", "❗", "Usage: purge [count]"))
		}
		count = min(n, purgeMax)
	}
	ids := make([]int, 0, count)
	for id := ev.MessageID; id > 0 && len(ids) < count; id-- {
		ids = append(ids, id)
	}
	if err := m.messenger.DeleteMany(ctx, ev.ChatID, ids); err != nil {
		return errs.WrapCode(errs.CodeTransport, "purge", err)
	}
	logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "purge", slog.Int("count", len(ids)))
	_, err := m.messenger.SendText(ctx, ev.ChatID,
		engine.Card("Chat Purged", "🧹", "<i>Messages Cleared</i>: "+strconv.Itoa(len(ids))),
		tg.SendOptions{Silent: true})
	return err
}
