package callbacks

import (
	"fmt"
	"strings"

	"github.com/m3rciful/kaoribot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// MaxDataLen is the Telegram limit for inline button data.
const MaxDataLen = 64

// Flag is one key:value pair of encoded callback data.
type Flag struct {
	Key   string
	Value string
}

// F formats v as a flag value.
func F(key string, v any) Flag {
	return Flag{Key: key, Value: fmt.Sprint(v)}
}

// Data encodes a command invocation as "cmd:<command> k:v ...", the form the
// input parser recognises for callbacks. Values containing spaces are quoted.
func Data(command string, flags ...Flag) string {
	var b strings.Builder
	b.WriteString(commands.CallbackMarker)
	b.WriteString(command)
	for _, f := range flags {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte(':')
		if strings.ContainsAny(f.Value, " \t") {
			b.WriteByte('"')
			b.WriteString(f.Value)
			b.WriteByte('"')
			continue
		}
		b.WriteString(f.Value)
	}
	return b.String()
}

// Raw returns callback data with Telebot's unique-endpoint framing removed.
func Raw(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	if cb.Unique != "" {
		raw = strings.TrimPrefix(raw, cb.Unique+"|")
	}
	return strings.TrimSpace(raw)
}

// Key returns the command name encoded in callback data, for logging.
func Key(cb *tele.Callback) string {
	raw := Raw(cb)
	if !strings.HasPrefix(raw, commands.CallbackMarker) {
		return raw
	}
	raw = raw[len(commands.CallbackMarker):]
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
