// Package enginetest provides in-memory fakes of the dispatcher's ports.
package enginetest

import (
	"context"
	"strings"
	"sync"
	"time"

	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/internal/store"
)

// Call is one recorded Messenger invocation.
type Call struct {
	Op        string
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	ReplyTo   int
	Keyboard  keyboard.Markup
	Photo     tg.Photo
	Alert     bool
	Spoiler   bool
	Until     time.Time
	IDs       []int
}

// Messenger records every call. Sends return increasing message ids.
type Messenger struct {
	mu      sync.Mutex
	calls   []Call
	nextID  int
	Members map[int64]tg.Member
	Bios    map[int64]string
	// Err, when set, is returned by every send and edit.
	Err error
}

// NewMessenger returns an empty recorder.
func NewMessenger() *Messenger {
	return &Messenger{nextID: 1000, Members: map[int64]tg.Member{}, Bios: map[int64]string{}}
}

func (m *Messenger) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *Messenger) id() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

// SetMember sets the role returned for userID.
func (m *Messenger) SetMember(userID int64, member tg.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Members[userID] = member
}

func (m *Messenger) SendText(_ context.Context, chatID int64, text string, opts tg.SendOptions) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	id := m.id()
	m.record(Call{Op: "send", ChatID: chatID, MessageID: id, Text: text, ReplyTo: opts.ReplyTo, Keyboard: opts.Keyboard})
	return id, nil
}

func (m *Messenger) SendPhoto(_ context.Context, chatID int64, photo tg.Photo, caption string, opts tg.SendOptions) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	id := m.id()
	m.record(Call{Op: "photo", ChatID: chatID, MessageID: id, Text: caption, ReplyTo: opts.ReplyTo, Keyboard: opts.Keyboard, Photo: photo, Spoiler: opts.Spoiler})
	return id, nil
}

func (m *Messenger) EditText(_ context.Context, chatID int64, messageID int, text string, kb keyboard.Markup) error {
	if m.Err != nil {
		return m.Err
	}
	m.record(Call{Op: "edit", ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (m *Messenger) EditCaption(_ context.Context, chatID int64, messageID int, caption string, kb keyboard.Markup) error {
	if m.Err != nil {
		return m.Err
	}
	m.record(Call{Op: "caption", ChatID: chatID, MessageID: messageID, Text: caption, Keyboard: kb})
	return nil
}

func (m *Messenger) Delete(_ context.Context, chatID int64, messageID int) error {
	m.record(Call{Op: "delete", ChatID: chatID, MessageID: messageID})
	return nil
}

func (m *Messenger) DeleteMany(_ context.Context, chatID int64, messageIDs []int) error {
	m.record(Call{Op: "delete_many", ChatID: chatID, IDs: append([]int(nil), messageIDs...)})
	return nil
}

func (m *Messenger) SetAdmin(_ context.Context, chatID, userID int64, rights tg.AdminRights) error {
	m.record(Call{Op: "promote", ChatID: chatID, UserID: userID, Text: rights.String()})
	return nil
}

func (m *Messenger) Bio(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Bios[userID], nil
}

func (m *Messenger) Answer(_ context.Context, callbackID, text string, alert bool) error {
	m.record(Call{Op: "answer", Text: text, Alert: alert})
	return nil
}

func (m *Messenger) Restrict(_ context.Context, chatID, userID int64, until time.Time) error {
	m.record(Call{Op: "restrict", ChatID: chatID, UserID: userID, Until: until})
	return nil
}

func (m *Messenger) Lift(_ context.Context, chatID, userID int64) error {
	m.record(Call{Op: "lift", ChatID: chatID, UserID: userID})
	return nil
}

func (m *Messenger) Ban(_ context.Context, chatID, userID int64) error {
	m.record(Call{Op: "ban", ChatID: chatID, UserID: userID})
	return nil
}

func (m *Messenger) Unban(_ context.Context, chatID, userID int64) error {
	m.record(Call{Op: "unban", ChatID: chatID, UserID: userID})
	return nil
}

func (m *Messenger) Member(_ context.Context, _, userID int64) (tg.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.Members[userID]; ok {
		return mem, nil
	}
	return tg.Member{Role: tg.RoleMember}, nil
}

// Calls returns the recorded calls, optionally filtered by op.
func (m *Messenger) Calls(ops ...string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if len(ops) == 0 || contains(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the latest call with op.
func (m *Messenger) Last(op string) (Call, bool) {
	calls := m.Calls(op)
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

// Find returns the first call with op whose text contains substr.
func (m *Messenger) Find(op, substr string) (Call, bool) {
	for _, c := range m.Calls(op) {
		if strings.Contains(c.Text, substr) {
			return c, true
		}
	}
	return Call{}, false
}

// Reset drops the recorded calls.
func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Users is an in-memory user and command store.
type Users struct {
	mu       sync.Mutex
	users    map[int64]store.User
	mentions map[int64][]store.Mention
	states   map[string]store.CommandState
	// Err, when set, fails every lookup.
	Err error
}

// NewUsers returns an empty store.
func NewUsers() *Users {
	return &Users{
		users:    map[int64]store.User{},
		mentions: map[int64][]store.Mention{},
		states:   map[string]store.CommandState{},
	}
}

// Put replaces a user record.
func (u *Users) Put(user store.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[user.ID] = user
}

// Get returns a user record without error handling.
func (u *Users) Get(id int64) store.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		return user
	}
	return store.User{ID: id}
}

// Mentions returns the recorded mentions of id.
func (u *Users) Mentions(id int64) []store.Mention {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]store.Mention(nil), u.mentions[id]...)
}

func (u *Users) User(_ context.Context, id int64) (store.User, error) {
	if u.Err != nil {
		return store.User{}, u.Err
	}
	return u.Get(id), nil
}

func (u *Users) SeenUser(_ context.Context, id int64, username string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[id]
	user.ID = id
	user.Username = strings.ToLower(username)
	u.users[id] = user
	return nil
}

func (u *Users) UserByUsername(_ context.Context, username string) (store.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	name := strings.ToLower(strings.TrimPrefix(username, "@"))
	for _, user := range u.users {
		if name != "" && user.Username == name {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (u *Users) AddXP(_ context.Context, id, delta int64) (int64, int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[id]
	user.ID = id
	before := user.XP
	user.XP = max(before+delta, 0)
	u.users[id] = user
	return before, user.XP, nil
}

func (u *Users) TransferXP(_ context.Context, from, to, limit int64) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	giver, taker := u.users[from], u.users[to]
	giver.ID, taker.ID = from, to
	moved := max(min(limit, giver.XP), 0)
	giver.XP -= moved
	taker.XP += moved
	u.users[from], u.users[to] = giver, taker
	return moved, nil
}

func (u *Users) SetAFK(_ context.Context, id int64, reason string, since time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[id]
	user.ID = id
	user.AFK, user.AFKReason, user.AFKSince = true, reason, since.Unix()
	u.users[id] = user
	delete(u.mentions, id)
	return nil
}

func (u *Users) ClearAFK(_ context.Context, id int64) ([]store.Mention, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[id]
	user.AFK, user.AFKReason, user.AFKSince = false, "", 0
	u.users[id] = user
	out := u.mentions[id]
	delete(u.mentions, id)
	return out, nil
}

func (u *Users) AddMention(_ context.Context, userID, chatID int64, messageID int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mentions[userID] = append(u.mentions[userID], store.Mention{ChatID: chatID, MessageID: messageID})
	return nil
}

func (u *Users) SetBan(_ context.Context, id int64, banned bool, reason string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	user := u.users[id]
	user.ID = id
	user.Banned, user.BanReason = banned, reason
	if banned {
		user.BannedAt = time.Now().Unix()
	} else {
		user.BanReason, user.BannedAt = "", 0
	}
	u.users[id] = user
	return nil
}

func (u *Users) CommandState(_ context.Context, name string) (store.CommandState, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if st, ok := u.states[name]; ok {
		return st, nil
	}
	return store.CommandState{Name: name, Enabled: true}, nil
}

func (u *Users) SetCommandState(_ context.Context, name string, enabled bool, reason string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.states[name] = store.CommandState{Name: name, Enabled: enabled, Reason: reason}
	return nil
}
