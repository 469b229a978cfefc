package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/store"
)

const warnsPerPage = 10

func (m *Module) warn(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	reason := engine.StripMentions(req.Input.Text)
	for _, u := range users {
		count, err := m.store.AddWarn(ctx, store.Warning{
			ChatID:   ev.ChatID,
			UserID:   u.ID,
			UserName: u.FullName(),
			Reason:   reason,
			ByUserID: ev.Sender.ID,
		})
		if err != nil {
			return err
		}

		title, icon := "User Warned", "⚠️"
		if count >= store.MaxWarns {
			if err := engine.Kick(ctx, m.messenger, ev.ChatID, u.ID); err != nil {
				return err
			}
			if err := m.store.ResetWarns(ctx, ev.ChatID, u.ID); err != nil {
				return err
			}
			title, icon = "User Kicked", "🚫"
		}
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "warn.add",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("user_id", u.ID),
			slog.Int("count", count),
		)
		text := engine.Card(title, icon,
			"<i>User</i>: "+engine.MentionUser(u),
			"<i>By</i>: "+engine.MentionUser(ev.Sender),
			fmt.Sprintf("<i>Warns</i>: %d/%d", count, store.MaxWarns),
			"<i>Reason</i>: "+format.Escape(reasonOrDefault(reason)),
		)
		if err := engine.Reply(ctx, m.messenger, ev, text); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) removeWarn(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	users, err := m.targets(ctx, ev)
	if err != nil {
		return err
	}
	all := false
	for _, a := range req.Input.Args() {
		if strings.EqualFold(a, "all") {
			all = true
		}
	}
	for _, u := range users {
		remaining, err := m.store.RemoveWarn(ctx, ev.ChatID, u.ID, all)
		var text string
		switch {
		case errors.Is(err, store.ErrNotFound):
			text = engine.Card("No Warnings", "ℹ️", "<i>User</i>: "+engine.MentionUser(u))
		case err != nil:
			return err
		case remaining == 0:
			text = engine.Card("Warnings Removed", "✅",
				"<i>User</i>: "+engine.MentionUser(u),
				"<i>By</i>: "+engine.MentionUser(ev.Sender),
				"<i>Warns</i>: 0/"+fmt.Sprint(store.MaxWarns),
			)
		default:
			text = engine.Card("Warning Removed", "✅",
				"<i>User</i>: "+engine.MentionUser(u),
				"<i>By</i>: "+engine.MentionUser(ev.Sender),
				fmt.Sprintf("<i>Warns</i>: %d/%d", remaining, store.MaxWarns),
			)
		}
		if err := engine.Reply(ctx, m.messenger, ev, text); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) warnInfo(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	if !ev.IsCallback() {
		if users := engine.Targets(ctx, m.store, ev); len(users) > 0 {
			return m.memberWarns(ctx, ev, users[0])
		}
	}

	page, _ := req.Input.Int("page")
	page = max(page, 1)
	warns, total, err := m.store.Warns(ctx, ev.ChatID, (page-1)*warnsPerPage, warnsPerPage)
	if err != nil {
		return err
	}
	if total == 0 {
		return engine.Reply(ctx, m.messenger, ev, engine.Card("Warned Users", "ℹ️", "No warned users in this chat"))
	}
	pages := (total + warnsPerPage - 1) / warnsPerPage
	if page > pages {
		page = pages
		if warns, _, err = m.store.Warns(ctx, ev.ChatID, (page-1)*warnsPerPage, warnsPerPage); err != nil {
			return err
		}
	}

	c := ui.NewCard("Warned Users", "⚠️")
	for i, w := range warns {
		c.Line("%d. %s: %d/%d", (page-1)*warnsPerPage+i+1,
			format.Mention(w.UserID, w.UserName), w.Count, store.MaxWarns)
	}
	c.Line("<i>Page</i>: %d/%d", page, pages)

	var nav []keyboard.Button
	if page > 1 {
		nav = append(nav, keyboard.Cmd("‹", "warninfo", callbacks.F("page", page-1)))
	}
	if page < pages {
		nav = append(nav, keyboard.Cmd("›", "warninfo", callbacks.F("page", page+1)))
	}
	var kb keyboard.Markup
	if len(nav) > 0 {
		kb = keyboard.Row(nav...)
	}
	if ev.IsCallback() {
		return m.messenger.EditText(ctx, ev.ChatID, ev.MessageID, c.String(), kb)
	}
	_, err = engine.ReplyKeyboard(ctx, m.messenger, ev, c.String(), kb)
	return err
}

func (m *Module) memberWarns(ctx context.Context, ev *commands.Event, u commands.User) error {
	w, err := m.store.Warn(ctx, ev.ChatID, u.ID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.Reply(ctx, m.messenger, ev, engine.Card("No Warnings", "ℹ️", "<i>User</i>: "+engine.MentionUser(u)))
	}
	if err != nil {
		return err
	}
	c := ui.NewCard("Warnings", "⚠️").
		Line("<i>User</i>: %s", engine.MentionUser(u)).
		Line("<i>Warns</i>: %d/%d", w.Count, store.MaxWarns)
	if len(w.Reasons) > 0 {
		c.Section("Reasons", "📝")
		for i, r := range w.Reasons {
			c.Line("%d. %s", i+1, format.Escape(reasonOrDefault(r)))
		}
	}
	return engine.Reply(ctx, m.messenger, ev, c.String())
}
