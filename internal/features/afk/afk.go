// Package afk lets members mark themselves away. Returning and mention
// notices are handled by the dispatcher.
package afk

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/internal/engine"
)

// Store persists away status.
type Store interface {
	SetAFK(ctx context.Context, id int64, reason string, since time.Time) error
}

// Module provides the afk command.
type Module struct {
	messenger engine.Messenger
	store     Store
	now       func() time.Time
}

// New builds the module. now defaults to time.Now.
func New(m engine.Messenger, s Store, now func() time.Time) *Module {
	if now == nil {
		now = time.Now
	}
	return &Module{messenger: m, store: s, now: now}
}

// Commands returns the afk command.
func (m *Module) Commands() []commands.Command {
	return []commands.Command{{
		Name:        engine.AFKCommand,
		Category:    "Chat",
		Description: "Set yourself as away; mentions are answered for you",
		Usage:       "[reason]",
		ChatOnly:    true,
		XP:          1,
		Handler:     commands.HandlerFunc(m.set),
	}}
}

func (m *Module) set(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	reason := engine.StripMentions(req.Input.Text)
	if err := m.store.SetAFK(ctx, ev.Sender.ID, reason, m.now()); err != nil {
		return err
	}
	shown := reason
	if shown == "" {
		shown = "No reason provided"
	}
	logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "afk.set", slog.Int64("user_id", ev.Sender.ID))
	return engine.Reply(ctx, m.messenger, ev, engine.Card("AFK Enabled", "💤",
		"<i>User</i>: "+engine.MentionUser(ev.Sender),
		"<i>Reason</i>: "+format.Escape(shown),
	))
}
