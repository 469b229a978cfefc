package format

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Escape escapes text for Telegram HTML parse mode.
func Escape(text string) string {
	return html.EscapeString(text)
}

// Mention renders a clickable user mention.
func Mention(userID int64, name string) string {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("user %d", userID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, Escape(name))
}

// Link renders an anchor.
func Link(url, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, Escape(url), Escape(text))
}

// Spoiler hides text behind a spoiler.
func Spoiler(text string) string {
	return "<tg-spoiler>" + Escape(text) + "</tg-spoiler>"
}

// Blockquote wraps already formatted HTML in a quote block.
func Blockquote(inner string) string {
	return "<blockquote>" + inner + "</blockquote>"
}

// Duration renders d as "1d 2h 3m 4s", dropping zero units.
func Duration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Truncate(time.Second)
	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	var parts []string
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.name))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}

// Since renders the time elapsed from the Unix timestamp ts until now.
func Since(ts int64, now time.Time) string {
	if ts <= 0 {
		return "unknown"
	}
	return Duration(now.Sub(time.Unix(ts, 0)))
}

// MessageLink builds a t.me link to a message in a supergroup.
func MessageLink(chatID int64, messageID int) string {
	id := strings.TrimPrefix(fmt.Sprint(chatID), "-100")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, messageID)
}
