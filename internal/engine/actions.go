package engine

import (
	"context"
	"strings"

	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/internal/store"
)

// UsernameResolver maps @usernames to known users.
type UsernameResolver interface {
	UserByUsername(ctx context.Context, username string) (store.User, error)
}

// Targets returns the users a moderation command acts on: the replied-to
// user, or else every mentioned user. Plain @username mentions are resolved
// through r and skipped when unknown.
func Targets(ctx context.Context, r UsernameResolver, ev *commands.Event) []commands.User {
	if ev.ReplyTo != nil {
		return []commands.User{*ev.ReplyTo}
	}
	seen := map[int64]bool{}
	var out []commands.User
	for _, u := range ev.Mentions {
		if !seen[u.ID] {
			seen[u.ID] = true
			out = append(out, u)
		}
	}
	if r == nil {
		return out
	}
	for _, name := range ev.Usernames {
		u, err := r.UserByUsername(ctx, name)
		if err != nil || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, commands.User{ID: u.ID, Username: u.Username})
	}
	return out
}

// Kick removes a member without blocking a later rejoin.
func Kick(ctx context.Context, m Messenger, chatID, userID int64) error {
	if err := m.Ban(ctx, chatID, userID); err != nil {
		return err
	}
	return m.Unban(ctx, chatID, userID)
}

// Can reports whether userID holds perm in the chat. Lookup failures count
// as no.
func Can(ctx context.Context, m Messenger, chatID, userID int64, perm string) bool {
	member, err := m.Member(ctx, chatID, userID)
	if err != nil {
		return false
	}
	return member.Can(perm)
}

// MentionUser renders a clickable mention of u.
func MentionUser(u commands.User) string {
	return format.Mention(u.ID, u.FullName())
}

// Card renders a single-section card from preformatted lines.
func Card(title, icon string, lines ...string) string {
	return card(title, icon, lines...)
}

// StripMentions drops words starting with "@" from text.
func StripMentions(text string) string {
	words := strings.Fields(text)
	out := words[:0]
	for _, w := range words {
		if !strings.HasPrefix(w, "@") {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}
