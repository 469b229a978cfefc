package telegram

import (
	"strings"
	"unicode/utf16"

	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func toUser(u *tele.User) commands.User {
	if u == nil {
		return commands.User{}
	}
	return commands.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
	}
}

func userPtr(u *tele.User) *commands.User {
	if u == nil {
		return nil
	}
	cu := toUser(u)
	return &cu
}

// Events converts an update into transport-neutral events. A message that
// adds several members yields one join event per member.
func Events(upd tele.Update) []*commands.Event {
	if cb := upd.Callback; cb != nil {
		return []*commands.Event{callbackEvent(upd.ID, cb)}
	}
	m := upd.Message
	if m == nil {
		return nil
	}
	base := commands.Event{
		UpdateID:  upd.ID,
		MessageID: m.ID,
		Sender:    toUser(m.Sender),
	}
	if m.Chat != nil {
		base.ChatID = m.Chat.ID
		base.ChatType = string(m.Chat.Type)
		base.ChatTitle = m.Chat.Title
	}

	// Telebot fans multi-member joins out and sets UserJoined per handler call.
	joined := m.UsersJoined
	if m.UserJoined != nil {
		joined = []tele.User{*m.UserJoined}
	}
	if len(joined) > 0 {
		out := make([]*commands.Event, 0, len(joined))
		for i := range joined {
			ev := base
			ev.Kind = commands.KindJoin
			ev.Member = userPtr(&joined[i])
			if m.Sender != nil && m.Sender.ID != joined[i].ID {
				ev.Actor = userPtr(m.Sender)
			}
			out = append(out, &ev)
		}
		return out
	}
	if m.UserLeft != nil {
		ev := base
		ev.Kind = commands.KindLeave
		ev.Member = userPtr(m.UserLeft)
		if m.Sender != nil && m.Sender.ID != m.UserLeft.ID {
			ev.Actor = userPtr(m.Sender)
		}
		return []*commands.Event{&ev}
	}

	ev := base
	ev.Kind = commands.KindMessage
	ev.Text = m.Text
	entities := m.Entities
	if ev.Text == "" {
		ev.Text = m.Caption
		entities = m.CaptionEntities
	}
	if r := m.ReplyTo; r != nil && r.Sender != nil && r.Sender.ID != ev.Sender.ID {
		ev.ReplyTo = userPtr(r.Sender)
	}
	for _, e := range entities {
		switch e.Type {
		case tele.EntityTMention:
			if e.User != nil {
				ev.Mentions = append(ev.Mentions, toUser(e.User))
			}
		case tele.EntityMention:
			name := strings.ToLower(strings.TrimPrefix(entityText(ev.Text, e), "@"))
			if name != "" {
				ev.Usernames = append(ev.Usernames, name)
			}
		}
	}
	return []*commands.Event{&ev}
}

func callbackEvent(updateID int, cb *tele.Callback) *commands.Event {
	ev := &commands.Event{
		Kind:       commands.KindCallback,
		UpdateID:   updateID,
		Sender:     toUser(cb.Sender),
		Text:       callbacks.Raw(cb),
		CallbackID: cb.ID,
	}
	if cb.Message != nil {
		ev.MessageID = cb.Message.ID
		if cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
			ev.ChatType = string(cb.Message.Chat.Type)
			ev.ChatTitle = cb.Message.Chat.Title
		}
	}
	if ev.ChatID == 0 {
		ev.ChatID = ev.Sender.ID
		ev.ChatType = commands.ChatPrivate
	}
	return ev
}

// entityText slices an entity out of text. Telegram offsets count UTF-16
// code units.
func entityText(text string, e tele.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	end := e.Offset + e.Length
	if e.Offset < 0 || end > len(units) {
		return ""
	}
	return string(utf16.Decode(units[e.Offset:end]))
}
