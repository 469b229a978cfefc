package engine

import (
	"context"
	"time"

	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/internal/store"
)

// Messenger is the chat transport used by the dispatcher and the features.
// *telegram.Messenger implements it.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, opts tg.SendOptions) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photo tg.Photo, caption string, opts tg.SendOptions) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, kb keyboard.Markup) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string, kb keyboard.Markup) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	DeleteMany(ctx context.Context, chatID int64, messageIDs []int) error
	Answer(ctx context.Context, callbackID, text string, alert bool) error
	Restrict(ctx context.Context, chatID, userID int64, until time.Time) error
	Lift(ctx context.Context, chatID, userID int64) error
	Ban(ctx context.Context, chatID, userID int64) error
	Unban(ctx context.Context, chatID, userID int64) error
	Member(ctx context.Context, chatID, userID int64) (tg.Member, error)
	SetAdmin(ctx context.Context, chatID, userID int64, rights tg.AdminRights) error
	Bio(ctx context.Context, userID int64) (string, error)
}

// Notifier sends messages nobody waits on. *telegram.Messenger implements it
// through its outbound queue.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string)
}

// Resolver looks commands up by name or alias.
type Resolver interface {
	Resolve(name string) (*commands.Command, bool)
}

// Users is the part of the store the dispatcher needs.
type Users interface {
	User(ctx context.Context, id int64) (store.User, error)
	SeenUser(ctx context.Context, id int64, username string) error
	UserByUsername(ctx context.Context, username string) (store.User, error)
	AddXP(ctx context.Context, id, delta int64) (before, after int64, err error)
	ClearAFK(ctx context.Context, id int64) ([]store.Mention, error)
	AddMention(ctx context.Context, userID, chatID int64, messageID int) error
	CommandState(ctx context.Context, name string) (store.CommandState, error)
}

// TextListener receives plain, non-command messages after the AFK side
// channel ran.
type TextListener func(ctx context.Context, ev *commands.Event) error

// MemberHook receives join and leave events.
type MemberHook func(ctx context.Context, ev *commands.Event) error
