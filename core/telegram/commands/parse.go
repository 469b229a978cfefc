package commands

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// CallbackMarker prefixes inline button data that encodes a command.
const CallbackMarker = "cmd:"

var flagPattern = regexp.MustCompile(`(\w+):([\w\-/]+|'[^']+'|"[^"]+")`)

// Input is the parsed form of a message or callback.
type Input struct {
	// Command is the lower-cased command name; empty for plain text.
	Command string
	// Text is the free text left after the command token and flags.
	Text  string
	Flags map[string]string
	Raw   string

	IsCommand bool
}

// Parse splits message text into command, flags and free text. A token is a
// command when it starts with prefix. A "@bot" suffix is stripped; commands
// addressed to another bot are treated as plain text. Parse never fails:
// malformed flags are left in the text.
func Parse(raw, prefix, botUsername string) Input {
	return parse(raw, prefix, botUsername, false)
}

// ParseCallback is Parse for inline button data, which may also start with
// CallbackMarker.
func ParseCallback(data, prefix, botUsername string) Input {
	return parse(data, prefix, botUsername, true)
}

// ParseEvent parses the event text. CallbackMarker is honoured only for
// callback events, so a chat message reading "cmd:warn" stays plain text.
func ParseEvent(ev *Event, prefix, botUsername string) Input {
	if ev.IsCallback() {
		return ParseCallback(ev.Text, prefix, botUsername)
	}
	return Parse(ev.Text, prefix, botUsername)
}

func parse(raw, prefix, botUsername string, marker bool) Input {
	in := Input{Raw: raw, Flags: map[string]string{}}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return in
	}

	first := strings.ToLower(fields[0])
	name := ""
	switch {
	case prefix != "" && strings.HasPrefix(first, prefix):
		name = first[len(prefix):]
	case marker && strings.HasPrefix(first, CallbackMarker):
		name = first[len(CallbackMarker):]
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if botUsername != "" && !strings.EqualFold(target, botUsername) {
			name = ""
		}
	}
	if name == "" {
		in.Text = strings.TrimSpace(raw)
		return in
	}

	in.Command = name
	in.IsCommand = true

	rest := strings.TrimLeftFunc(raw, unicode.IsSpace)[len(fields[0]):]
	for _, m := range flagPattern.FindAllStringSubmatch(rest, -1) {
		in.Flags[m[1]] = strings.Trim(m[2], `'"`)
	}
	rest = flagPattern.ReplaceAllString(rest, "")
	in.Text = strings.Join(strings.Fields(rest), " ")
	return in
}

// Flag returns a flag value.
func (in Input) Flag(key string) (string, bool) {
	v, ok := in.Flags[key]
	return v, ok
}

// Int64 parses a numeric flag.
func (in Input) Int64(key string) (int64, bool) {
	v, ok := in.Flags[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Int parses a numeric flag as int.
func (in Input) Int(key string) (int, bool) {
	n, ok := in.Int64(key)
	return int(n), ok
}

// Switch reads on/off style flags. It reports ok=false for other values.
func (in Input) Switch(key string) (on, ok bool) {
	v, found := in.Flags[key]
	if !found {
		return false, false
	}
	return ParseSwitch(v)
}

// ParseSwitch interprets on/off, true/false, yes/no and 1/0.
func ParseSwitch(v string) (on, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, true
	case "off", "false", "no", "0", "disable", "disabled":
		return false, true
	}
	return false, false
}

// Args returns the free text split on whitespace.
func (in Input) Args() []string { return strings.Fields(in.Text) }
