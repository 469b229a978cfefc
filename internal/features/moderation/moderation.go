// Package moderation holds the admin commands: warns, bans, mutes, admin
// rights, purges and the per-chat settings.
package moderation

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/store"
)

// Store is the persistence the module needs. *store.Store implements it.
type Store interface {
	engine.UsernameResolver
	AddWarn(ctx context.Context, w store.Warning) (int, error)
	RemoveWarn(ctx context.Context, chatID, userID int64, all bool) (int, error)
	ResetWarns(ctx context.Context, chatID, userID int64) error
	Warn(ctx context.Context, chatID, userID int64) (store.Warn, error)
	Warns(ctx context.Context, chatID int64, offset, limit int) ([]store.Warn, int, error)
	AddChatBan(ctx context.Context, b store.ChatBan) error
	RemoveChatBan(ctx context.Context, chatID, userID int64) (bool, error)
	ChatBans(ctx context.Context, chatID int64) ([]store.ChatBan, error)
	Chat(ctx context.Context, id int64) (store.Chat, error)
	SetChatFlag(ctx context.Context, id int64, flag string, on bool) error
}

// Options configure the module.
type Options struct {
	Messenger engine.Messenger
	Store     Store
	// BotID is the bot's own account, which is never acted on.
	BotID int64
	Now   func() time.Time
	// MuteMinutes picks the duration of a mute without time:N.
	MuteMinutes func() int
}

// Module provides the moderation commands.
type Module struct {
	messenger   engine.Messenger
	store       Store
	botID       int64
	now         func() time.Time
	muteMinutes func() int
}

// New builds the module.
func New(opts Options) *Module {
	m := &Module{
		messenger:   opts.Messenger,
		store:       opts.Store,
		botID:       opts.BotID,
		now:         opts.Now,
		muteMinutes: opts.MuteMinutes,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.muteMinutes == nil {
		m.muteMinutes = func() int { return 5 + rand.IntN(51) }
	}
	return m
}

// Commands returns the moderation commands.
func (m *Module) Commands() []commands.Command {
	restrict := []string{commands.PermRestrictMembers}
	return []commands.Command{
		{
			Name: "warn", Category: "Moderation", Usage: "<reply | @user> [reason]",
			Description: "Warn a member; the third warn removes them",
			ChatOnly:    true, AdminOnly: true,
			Handler: commands.HandlerFunc(m.warn),
		},
		{
			Name: "removewarn", Aliases: []string{"unwarn"}, Category: "Moderation", Usage: "<reply | @user> [all]",
			Description: "Remove the latest warn or all warns",
			ChatOnly:    true, AdminOnly: true,
			Handler: commands.HandlerFunc(m.removeWarn),
		},
		{
			Name: "warninfo", Aliases: []string{"warns"}, Category: "Moderation", Usage: "[reply | @user] [page:N]",
			Description: "Show a member's warns or every warned member",
			ChatOnly:    true, AdminOnly: true,
			Handler: commands.HandlerFunc(m.warnInfo),
		},
		{
			Name: "ban", Category: "Moderation", Usage: "<reply | @user> [reason]",
			Description: "Ban members from the chat",
			ChatOnly:    true, AdminOnly: true, Permissions: restrict,
			Handler: commands.HandlerFunc(m.ban),
		},
		{
			Name: "unban", Category: "Moderation", Usage: "<reply | @user>",
			Description: "Lift a ban",
			ChatOnly:    true, AdminOnly: true, Permissions: restrict,
			Handler: commands.HandlerFunc(m.unban),
		},
		{
			Name: "banlist", Category: "Moderation",
			Description: "List banned members",
			ChatOnly:    true, AdminOnly: true,
			Handler: commands.HandlerFunc(m.banList),
		},
		{
			Name: "mute", Category: "Moderation", Usage: "<reply | @user> [time:minutes]",
			Description: "Stop members from sending messages",
			ChatOnly:    true, AdminOnly: true, Permissions: restrict,
			Handler: commands.HandlerFunc(m.mute),
		},
		{
			Name: "unmute", Category: "Moderation", Usage: "<reply | @user>",
			Description: "Restore a member's rights",
			ChatOnly:    true, AdminOnly: true, Permissions: restrict,
			Handler: commands.HandlerFunc(m.unmute),
		},
		{
			Name: "promote", Category: "Moderation", Usage: "<reply | @user> [full]",
			Description: "Make a member admin with limited or full rights",
			ChatOnly:    true, AdminOnly: true, Permissions: []string{commands.PermPromoteMembers},
			Handler: commands.HandlerFunc(m.promote),
		},
		{
			Name: "demote", Category: "Moderation", Usage: "<reply | @user>",
			Description: "Take admin rights away",
			ChatOnly:    true, AdminOnly: true, Permissions: []string{commands.PermPromoteMembers},
			Handler: commands.HandlerFunc(m.demote),
		},
		{
			Name: "purge", Aliases: []string{"clear", "clean"}, Category: "Moderation", Usage: "[count]",
			Description: "Delete recent messages",
			ChatOnly:    true, AdminOnly: true, Permissions: []string{commands.PermDeleteMessages},
			Handler: commands.HandlerFunc(m.purge),
		},
		{
			Name: "settings", Category: "Moderation", Usage: "[captcha:on|off] [events:on|off]",
			Description: "Show or change the chat settings",
			ChatOnly:    true, AdminOnly: true, Permissions: []string{commands.PermChangeInfo},
			Handler: commands.HandlerFunc(m.settings),
		},
	}
}

var errNoTarget = errs.User(engine.Card("Invalid Usage", "❗", "Reply to a user or mention at least one user"))

// targets resolves the command's subjects. The bot itself is dropped.
func (m *Module) targets(ctx context.Context, ev *commands.Event) ([]commands.User, error) {
	var out []commands.User
	for _, u := range engine.Targets(ctx, m.store, ev) {
		if u.ID != m.botID {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, errNoTarget
	}
	return out, nil
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "No reason provided"
	}
	return reason
}
