// Package greet announces members joining and leaving a chat and hands
// self-joining members to verification when the chat asks for it.
package greet

import (
	"context"
	"log/slog"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/store"
)

// Chats reads per-chat feature flags.
type Chats interface {
	Chat(ctx context.Context, id int64) (store.Chat, error)
}

// Verifier starts a join verification for member.
type Verifier interface {
	Start(ctx context.Context, chatID int64, member commands.User) error
}

// Options configure the module.
type Options struct {
	Messenger engine.Messenger
	Chats     Chats
	// Verifier is optional; without it captcha-enabled chats only get notices.
	Verifier Verifier
	BotID    int64
	Prefix   string
}

// Module reacts to membership changes.
type Module struct {
	messenger engine.Messenger
	chats     Chats
	verifier  Verifier
	botID     int64
	prefix    string
}

// New builds the module.
func New(opts Options) *Module {
	m := &Module{
		messenger: opts.Messenger,
		chats:     opts.Chats,
		verifier:  opts.Verifier,
		botID:     opts.BotID,
		prefix:    opts.Prefix,
	}
	if m.prefix == "" {
		m.prefix = "/"
	}
	return m
}

// OnJoin handles a member joining or being added.
func (m *Module) OnJoin(ctx context.Context, ev *commands.Event) error {
	if ev.Member == nil {
		return nil
	}
	if ev.Member.ID == m.botID {
		return m.introduce(ctx, ev)
	}
	if ev.Member.IsBot {
		return nil
	}
	chat, err := m.chats.Chat(ctx, ev.ChatID)
	if err != nil {
		return errs.Wrap("load chat", err)
	}

	if chat.Captcha && ev.Actor == nil && m.verifier != nil {
		m.dropServiceMessage(ctx, ev, chat)
		return m.verifier.Start(ctx, ev.ChatID, *ev.Member)
	}
	if !chat.Events {
		return nil
	}
	m.dropServiceMessage(ctx, ev, chat)

	c := ui.NewCard("User Joined", "👋").Line("<i>User</i>: %s", engine.MentionUser(*ev.Member))
	if ev.Actor != nil {
		c = ui.NewCard("User Added", "👋").
			Line("<i>User</i>: %s", engine.MentionUser(*ev.Member)).
			Line("<i>Added By</i>: %s", engine.MentionUser(*ev.Actor))
	}
	_, err = m.messenger.SendText(ctx, ev.ChatID, c.String(), tg.SendOptions{Silent: true})
	return err
}

// OnLeave handles a member leaving or being removed.
func (m *Module) OnLeave(ctx context.Context, ev *commands.Event) error {
	if ev.Member == nil || ev.Member.ID == m.botID {
		return nil
	}
	chat, err := m.chats.Chat(ctx, ev.ChatID)
	if err != nil {
		return errs.Wrap("load chat", err)
	}
	if !chat.Events {
		return nil
	}
	m.dropServiceMessage(ctx, ev, chat)

	c := ui.NewCard("User Left", "🚪").Line("<i>User</i>: %s", engine.MentionUser(*ev.Member))
	if ev.Actor != nil {
		c = ui.NewCard("User Removed", "❌").
			Line("<i>User</i>: %s", engine.MentionUser(*ev.Member)).
			Line("<i>Removed By</i>: %s", engine.MentionUser(*ev.Actor))
	}
	_, err = m.messenger.SendText(ctx, ev.ChatID, c.String(), tg.SendOptions{Silent: true})
	return err
}

func (m *Module) introduce(ctx context.Context, ev *commands.Event) error {
	c := ui.NewCard("Thanks for adding me", "🌸").
		Line("Use %shelp to see my commands", m.prefix).
		Line("Admins can turn on verification and notices with %ssettings", m.prefix).
		Line("Make me an admin so I can restrict and remove members")
	_, err := m.messenger.SendText(ctx, ev.ChatID, c.String(), tg.SendOptions{})
	return err
}

// dropServiceMessage removes Telegram's own join/leave line when the chat
// replaces it with a notice.
func (m *Module) dropServiceMessage(ctx context.Context, ev *commands.Event, chat store.Chat) {
	if !chat.Events || ev.MessageID == 0 {
		return
	}
	if err := m.messenger.Delete(ctx, ev.ChatID, ev.MessageID); err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "service.delete.fail",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("err", err.Error()),
		)
	}
}
