package state

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrSessionExists is returned when a live session already uses the key.
	ErrSessionExists = errors.New("state: session already exists")
	// ErrConflict is returned when an overlapping session blocks creation.
	ErrConflict = errors.New("state: conflicting session exists")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("state: store closed")
)

// Status is the lifecycle step of a session. Features may define sub-states.
type Status string

const (
	// StatusPending marks a session awaiting its first real interaction.
	StatusPending Status = "pending"
	// StatusActive marks an established session accepting events.
	StatusActive Status = "active"
)

// Key addresses one session: a feature tag, a chat and zero or more participants.
type Key struct {
	Feature      string
	ChatID       int64
	Participants []int64
}

// NewKey builds a key.
func NewKey(feature string, chatID int64, participants ...int64) Key {
	return Key{Feature: feature, ChatID: chatID, Participants: participants}
}

// String returns the stable map form "feature:chat[:p1[:p2...]]".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Feature)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(k.ChatID, 10))
	for _, p := range k.Participants {
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(p, 10))
	}
	return b.String()
}

// Involves reports whether userID is one of the key's participants.
func (k Key) Involves(userID int64) bool {
	for _, p := range k.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Session is the view of a stored entry handed to callers.
// Changes made inside Update are committed when the callback returns.
type Session struct {
	Key      Key
	Status   Status
	Data     any
	Created  time.Time
	Deadline time.Time

	extend time.Duration
	ended  bool
}

// Extend cancels the pending deadline and schedules a new one ttl from now.
func (s *Session) Extend(ttl time.Duration) {
	if ttl > 0 {
		s.extend = ttl
	}
}

// End removes the session when the Update callback returns. The timeout
// action does not run.
func (s *Session) End() { s.ended = true }

// Data returns the session payload as T.
func Data[T any](s Session) (T, bool) {
	v, ok := s.Data.(T)
	return v, ok
}

// ExpireFunc is the timeout action. It receives the final session snapshot
// after the entry has been removed from the store.
type ExpireFunc func(ctx context.Context, s Session)

// Options configure a new session.
type Options struct {
	Status Status
	Data   any
	TTL    time.Duration
	// OnExpire runs once when the deadline passes without a reschedule.
	OnExpire ExpireFunc
	// Conflict, when set, is evaluated against every live key and creation
	// fails with ErrConflict if it returns true for any of them.
	Conflict func(Key) bool
}
