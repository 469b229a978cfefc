package keyboard

import (
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// Button is a transport-neutral inline button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Markup is an inline keyboard as rows of buttons.
type Markup [][]Button

// Cmd returns a button that invokes command with flags when pressed.
func Cmd(text, command string, flags ...callbacks.Flag) Button {
	return Button{Text: text, Data: callbacks.Data(command, flags...)}
}

// Link returns a URL button.
func Link(text, url string) Button {
	return Button{Text: text, URL: url}
}

// Row builds a single-row keyboard.
func Row(buttons ...Button) Markup {
	return Markup{buttons}
}

// Column places each button on its own row.
func Column(buttons ...Button) Markup {
	rows := make(Markup, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []Button{b})
	}
	return rows
}

// Grid splits a flat list of buttons into rows with up to n buttons per row.
// If n <= 1, it behaves like Column.
func Grid(buttons []Button, n int) Markup {
	if n <= 1 {
		return Column(buttons...)
	}
	var rows Markup
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// Inline converts the markup into a Telebot inline keyboard. Raw data is
// sent as-is so presses reach the generic callback endpoint.
func (m Markup) Inline() *tele.ReplyMarkup {
	if len(m) == 0 {
		return nil
	}
	inline := make([][]tele.InlineButton, len(m))
	for i, row := range m {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = tele.InlineButton{Text: btn.Text, Data: btn.Data, URL: btn.URL}
		}
		inline[i] = r
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}
