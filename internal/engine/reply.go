package engine

import (
	"context"
	"html"
	"regexp"
	"strings"

	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
)

// Reply sends text to the event's chat, quoting the triggering message
// unless the event is a button press.
func Reply(ctx context.Context, m Messenger, ev *commands.Event, text string) error {
	_, err := m.SendText(ctx, ev.ChatID, text, tg.SendOptions{ReplyTo: replyTo(ev)})
	return err
}

// ReplyKeyboard is Reply with an inline keyboard. It returns the message id.
func ReplyKeyboard(ctx context.Context, m Messenger, ev *commands.Event, text string, kb keyboard.Markup) (int, error) {
	return m.SendText(ctx, ev.ChatID, text, tg.SendOptions{ReplyTo: replyTo(ev), Keyboard: kb})
}

func replyTo(ev *commands.Event) int {
	if ev.IsCallback() {
		return 0
	}
	return ev.MessageID
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Plain strips HTML from text for surfaces that do not render it, such as
// callback alerts. Card tree glyphs are dropped and lines are kept.
func Plain(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimLeft(l, "├└ "))
		l = strings.NewReplacer("『", "", "』", "").Replace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func card(title, icon string, lines ...string) string {
	c := ui.NewCard(title, icon)
	for _, l := range lines {
		c.Text(l)
	}
	return c.String()
}
