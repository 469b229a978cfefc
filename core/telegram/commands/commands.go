package commands

import (
	"context"
	"strings"
)

// Admin capability names checked by Command.Permissions.
const (
	PermChangeInfo      = "can_change_info"
	PermDeleteMessages  = "can_delete_messages"
	PermInviteUsers     = "can_invite_users"
	PermPinMessages     = "can_pin_messages"
	PermPromoteMembers  = "can_promote_members"
	PermRestrictMembers = "can_restrict_members"
)

// Command represents a bot command with its handler, description, and access metadata.
// It must not be modified after registration.
type Command struct {
	Name        string
	Aliases     []string
	Category    string
	Description string
	Usage       string

	ChatOnly    bool
	AdminOnly   bool
	DevOnly     bool
	Permissions []string

	// XP is granted to the sender after a successful run.
	XP     int
	Hidden bool

	Handler Handler
}

// Handler is the single entry point every command implements.
type Handler interface {
	Execute(ctx context.Context, req *Request) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, req *Request) error { return f(ctx, req) }

// Request is what a handler receives for one invocation.
type Request struct {
	Event   *Event
	Input   Input
	Command *Command

	answer string
}

// SetAnswer sets the toast shown when a callback query is acknowledged.
func (r *Request) SetAnswer(text string) { r.answer = text }

// Answer returns the toast set by the handler.
func (r *Request) Answer() string { return r.answer }

// Kind enumerates inbound event sources.
type Kind string

const (
	KindMessage  Kind = "message"
	KindCallback Kind = "callback"
	KindJoin     Kind = "join"
	KindLeave    Kind = "leave"
)

// ChatPrivate is the Telegram chat type of one-to-one chats.
const ChatPrivate = "private"

// User identifies a Telegram account.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// Event is a transport-neutral view of an inbound update.
type Event struct {
	Kind      Kind
	UpdateID  int
	ChatID    int64
	ChatType  string
	ChatTitle string
	MessageID int
	Sender    User
	// Text is the message text or caption, or the callback data.
	Text string

	ReplyTo *User
	// Mentions holds users referenced by text mentions that carry an id.
	Mentions []User
	// Usernames holds lower-cased @username mentions without the at sign.
	Usernames []string

	CallbackID string

	// Member and Actor describe join and leave events. Actor is nil when the
	// member acted on their own.
	Member *User
	Actor  *User
}

// Private reports whether the event comes from a one-to-one chat.
func (e *Event) Private() bool { return e.ChatType == ChatPrivate }

// IsCallback reports whether the event is an inline button press.
func (e *Event) IsCallback() bool { return e.Kind == KindCallback }

// Target returns the replied-to user or, failing that, the first mention.
func (e *Event) Target() (User, bool) {
	if e.ReplyTo != nil {
		return *e.ReplyTo, true
	}
	if len(e.Mentions) > 0 {
		return e.Mentions[0], true
	}
	return User{}, false
}
