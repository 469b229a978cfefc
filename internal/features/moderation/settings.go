package moderation

import (
	"context"
	"log/slog"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/store"
)

// settingFlags are the chat toggles /settings manages.
var settingFlags = []string{store.FlagCaptcha, store.FlagEvents}

func (m *Module) settings(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	changed := false
	for _, flag := range settingFlags {
		raw, present := req.Input.Flag(flag)
		if !present {
			continue
		}
		on, ok := commands.ParseSwitch(raw)
		if !ok {
			return errs.Userf("Invalid value for %s: use on or off", flag)
		}
		if err := m.store.SetChatFlag(ctx, ev.ChatID, flag, on); err != nil {
			return err
		}
		changed = true
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "settings.set",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("flag", flag),
			slog.Bool("on", on),
		)
	}

	chat, err := m.store.Chat(ctx, ev.ChatID)
	if err != nil {
		return err
	}
	text, kb := settingsView(chat)
	if ev.IsCallback() {
		if changed {
			req.SetAnswer("Saved")
		}
		return m.messenger.EditText(ctx, ev.ChatID, ev.MessageID, text, kb)
	}
	_, err = engine.ReplyKeyboard(ctx, m.messenger, ev, text, kb)
	return err
}

func settingsView(chat store.Chat) (string, keyboard.Markup) {
	state := map[string]bool{store.FlagCaptcha: chat.Captcha, store.FlagEvents: chat.Events}
	labels := map[string]string{store.FlagCaptcha: "Captcha", store.FlagEvents: "Events"}

	c := ui.NewCard("Chat Settings", "⚙️")
	buttons := make([]keyboard.Button, 0, len(settingFlags))
	for _, flag := range settingFlags {
		on := state[flag]
		c.Field("<i>"+labels[flag]+"</i>", onOff(on))
		buttons = append(buttons, keyboard.Cmd("Turn "+labels[flag]+" "+onOff(!on), "settings", callbacks.F(flag, onOff(!on))))
	}
	return c.String(), keyboard.Column(buttons...)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
