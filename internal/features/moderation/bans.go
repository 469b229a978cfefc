package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/kaoribot/core/logger"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/store"
)

func (m *Module) ban(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	reason := engine.StripMentions(req.Input.Text)
	for _, u := range users {
		if member, err := m.messenger.Member(ctx, ev.ChatID, u.ID); err == nil && member.Role == tg.RoleCreator {
			text := engine.Card("Action Denied", "❌", "Cannot ban the group owner: "+engine.MentionUser(u))
			if err := engine.Reply(ctx, m.messenger, ev, text); err != nil {
				return err
			}
			continue
		}
		if err := m.messenger.Ban(ctx, ev.ChatID, u.ID); err != nil {
			return err
		}
		if err := m.store.AddChatBan(ctx, store.ChatBan{
			ChatID:   ev.ChatID,
			UserID:   u.ID,
			UserName: u.FullName(),
			Reason:   reason,
			ByUserID: ev.Sender.ID,
		}); err != nil {
			return err
		}
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "ban.add",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("user_id", u.ID),
		)
		text := engine.Card("User Banned", "✅",
			"<i>User</i>: "+engine.MentionUser(u),
			fmt.Sprintf("<i>ID</i>: <code>%d</code>", u.ID),
			"<i>Reason</i>: "+format.Escape(reasonOrDefault(reason)),
		)
		if err := engine.Reply(ctx, m.messenger, ev, text); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) unban(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := m.messenger.Unban(ctx, ev.ChatID, u.ID); err != nil {
			return err
		}
		if _, err := m.store.RemoveChatBan(ctx, ev.ChatID, u.ID); err != nil {
			return err
		}
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "ban.remove",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("user_id", u.ID),
		)
		text := engine.Card("User Unbanned", "♻️",
			"<i>User</i>: "+engine.MentionUser(u),
			fmt.Sprintf("<i>ID</i>: <code>%d</code>", u.ID),
		)
		if err := engine.Reply(ctx, m.messenger, ev, text); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) banList(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	bans, err := m.store.ChatBans(ctx, ev.ChatID)
	if err != nil {
		return err
	}
	if len(bans) == 0 {
		return engine.Reply(ctx, m.messenger, ev, engine.Card("Banned Users", "ℹ️", "No users are banned in this chat"))
	}
	c := ui.NewCard("Banned Users", "🚫")
	for i, b := range bans {
		c.Line("#%d %s <code>%d</code>", i+1, format.Mention(b.UserID, b.UserName), b.UserID)
		c.Line("<i>Reason</i>: %s", format.Escape(reasonOrDefault(b.Reason)))
		c.Line("<i>Banned By</i>: %s", format.Mention(b.ByUserID, fmt.Sprintf("user %d", b.ByUserID)))
	}
	return engine.Reply(ctx, m.messenger, ev, c.String())
}
