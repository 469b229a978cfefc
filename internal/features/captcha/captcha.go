// Package captcha verifies new chat members with an image challenge. A member
// who fails twice or lets the challenge time out is removed from the chat.
package captcha

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/internal/engine"
)

// Feature tags captcha sessions.
const Feature = "captcha"

const (
	maxAttempts  = 2
	codeLength   = 6
	optionCount  = 4
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// challenge is the session payload. Code is empty while no image is shown
// or after a wrong answer invalidated it.
type challenge struct {
	Name      string
	Attempt   int
	Code      string
	MessageID int
}

// Options configure the module.
type Options struct {
	Messenger   engine.Messenger
	Sessions    *state.Store
	JoinTimeout time.Duration
	Timeout     time.Duration
}

// Module runs member verification.
type Module struct {
	messenger   engine.Messenger
	sessions    *state.Store
	joinTimeout time.Duration
	timeout     time.Duration
}

// New builds the module.
func New(opts Options) *Module {
	m := &Module{
		messenger:   opts.Messenger,
		sessions:    opts.Sessions,
		joinTimeout: opts.JoinTimeout,
		timeout:     opts.Timeout,
	}
	if m.joinTimeout <= 0 {
		m.joinTimeout = 3 * time.Minute
	}
	if m.timeout <= 0 {
		m.timeout = 3 * time.Minute
	}
	return m
}

// Commands returns the button endpoints of the challenge.
func (m *Module) Commands() []commands.Command {
	return []commands.Command{
		{
			Name:        "captcha",
			Category:    "Chat",
			Description: "Show the captcha for a new member",
			ChatOnly:    true,
			Hidden:      true,
			Handler:     commands.HandlerFunc(m.show),
		},
		{
			Name:        "verify",
			Category:    "Chat",
			Description: "Answer a captcha",
			ChatOnly:    true,
			Hidden:      true,
			Handler:     commands.HandlerFunc(m.verify),
		},
	}
}

// Start restricts member and posts the verification prompt. A member who
// already has a running challenge is left alone.
func (m *Module) Start(ctx context.Context, chatID int64, member commands.User) error {
	key := state.NewKey(Feature, chatID, member.ID)
	err := m.sessions.Create(key, state.Options{
		Status:   state.StatusPending,
		Data:     challenge{Name: member.FullName(), Attempt: 1},
		TTL:      m.joinTimeout,
		OnExpire: m.expire,
	})
	if errors.Is(err, state.ErrSessionExists) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.messenger.Restrict(ctx, chatID, member.ID, time.Time{}); err != nil {
		logger.LogEvent(ctx, logger.MOD, slog.LevelWarn, "captcha.restrict.fail",
			slog.Int64("user_id", member.ID),
			slog.String("err", err.Error()),
		)
	}

	text := engine.Card("Verification Required", "🔐",
		"<i>User</i>: "+engine.MentionUser(member),
		"<i>Action</i>: Please verify within "+format.Duration(m.joinTimeout)+" to stay.",
	)
	kb := keyboard.Row(keyboard.Cmd("『Verify Captcha』", "captcha", callbacks.F("user_id", member.ID)))
	id, err := m.messenger.SendText(ctx, chatID, text, tg.SendOptions{Keyboard: kb})
	if err != nil {
		return err
	}
	m.setMessage(key, id)
	logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "captcha.start",
		slog.Int64("chat_id", chatID),
		slog.Int64("user_id", member.ID),
	)
	return nil
}

func (m *Module) show(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	userID, ok := req.Input.Int64("user_id")
	if !ok {
		return errs.User("Invalid captcha")
	}
	if err := m.checkSolver(ctx, ev, userID); err != nil {
		return err
	}

	key := state.NewKey(Feature, ev.ChatID, userID)
	code := newCode()
	var prev int
	found, err := m.sessions.Update(key, func(s *state.Session) error {
		c, _ := state.Data[challenge](*s)
		prev = c.MessageID
		c.Code = code
		s.Data = c
		s.Status = state.StatusActive
		s.Extend(m.timeout)
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.User("Captcha Expired: no pending verification")
	}
	if prev != 0 {
		_ = m.messenger.Delete(ctx, ev.ChatID, prev)
	}

	img, err := Render(code)
	if err != nil {
		return errs.Wrap("captcha render", err)
	}
	opts := options(code)
	buttons := make([]keyboard.Button, 0, len(opts))
	for _, opt := range opts {
		buttons = append(buttons, keyboard.Cmd(opt, "verify",
			callbacks.F("val", opt),
			callbacks.F("user_id", userID),
		))
	}
	caption := engine.Card("Captcha Verification", "🔐",
		"<i>Action</i>: Solve the captcha within "+format.Duration(m.timeout),
	)
	id, err := m.messenger.SendPhoto(ctx, ev.ChatID, tg.Photo{Data: img, Name: "captcha.png"}, caption,
		tg.SendOptions{Keyboard: keyboard.Grid(buttons, 2)})
	if err != nil {
		return err
	}
	m.setMessage(key, id)
	return nil
}

type outcome int

const (
	passed outcome = iota
	failed
	retry
)

func (m *Module) verify(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	userID, ok := req.Input.Int64("user_id")
	val, hasVal := req.Input.Flag("val")
	if !ok || !hasVal {
		return errs.User("Invalid captcha")
	}
	if err := m.checkSolver(ctx, ev, userID); err != nil {
		return err
	}

	key := state.NewKey(Feature, ev.ChatID, userID)
	var (
		res outcome
		c   challenge
	)
	found, err := m.sessions.Update(key, func(s *state.Session) error {
		c, _ = state.Data[challenge](*s)
		switch {
		case c.Code == "":
			return errs.User("Captcha Expired: press Retry for a new one")
		case strings.EqualFold(val, c.Code):
			res = passed
			s.End()
		case c.Attempt >= maxAttempts:
			res = failed
			s.End()
		default:
			res = retry
			c.Attempt++
			c.Code = ""
			s.Data = c
			s.Extend(m.timeout)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.User("Captcha Expired: no pending verification")
	}

	mention := format.Mention(userID, c.Name)
	switch res {
	case passed:
		if err := m.messenger.Lift(ctx, ev.ChatID, userID); err != nil {
			return err
		}
		_ = m.messenger.Delete(ctx, ev.ChatID, ev.MessageID)
		text := engine.Card("Verified", "✅", "<i>User</i>: "+mention)
		if _, err := m.messenger.SendText(ctx, ev.ChatID, text, tg.SendOptions{}); err != nil {
			return err
		}
		req.SetAnswer("Verified")
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "captcha.passed",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("user_id", userID),
		)
	case failed:
		if err := engine.Kick(ctx, m.messenger, ev.ChatID, userID); err != nil {
			return err
		}
		text := engine.Card("Captcha Failed", "❌", "<i>User</i>: "+mention, "<i>Status</i>: User kicked")
		_ = m.messenger.EditCaption(ctx, ev.ChatID, ev.MessageID, text, nil)
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "captcha.failed",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("user_id", userID),
		)
	case retry:
		text := engine.Card("Incorrect Captcha", "❌",
			"<i>Action</i>: Retry within "+format.Duration(m.timeout),
		)
		if err := m.messenger.EditCaption(ctx, ev.ChatID, ev.MessageID, text, retryKeyboard(userID)); err != nil {
			return err
		}
		req.SetAnswer("Incorrect, one attempt left")
	}
	return nil
}

// expire handles a deadline. A member who never opened the challenge or
// already used the retry is removed; otherwise the retry is offered.
func (m *Module) expire(ctx context.Context, s state.Session) {
	c, _ := state.Data[challenge](s)
	chatID, userID := s.Key.ChatID, s.Key.Participants[0]
	mention := format.Mention(userID, c.Name)

	if c.MessageID != 0 {
		_ = m.messenger.Delete(ctx, chatID, c.MessageID)
	}
	if s.Status == state.StatusPending || c.Attempt >= maxAttempts {
		if err := engine.Kick(ctx, m.messenger, chatID, userID); err != nil {
			logger.LogEvent(ctx, logger.MOD, slog.LevelWarn, "captcha.kick.fail",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
		text := engine.Card("Captcha Expired", "⏳", "<i>User</i>: "+mention, "<i>Status</i>: User kicked")
		_, _ = m.messenger.SendText(ctx, chatID, text, tg.SendOptions{})
		logger.LogEvent(ctx, logger.MOD, slog.LevelInfo, "captcha.expired",
			slog.Int64("chat_id", chatID),
			slog.Int64("user_id", userID),
			slog.String("outcome", "kicked"),
		)
		return
	}

	c.Attempt++
	c.Code = ""
	c.MessageID = 0
	key := s.Key
	if err := m.sessions.Create(key, state.Options{
		Status:   state.StatusActive,
		Data:     c,
		TTL:      m.timeout,
		OnExpire: m.expire,
	}); err != nil {
		logger.LogEvent(ctx, logger.MOD, slog.LevelWarn, "captcha.retry.fail", slog.String("err", err.Error()))
		return
	}
	text := engine.Card("Captcha Expired", "⏳",
		"<i>User</i>: "+mention,
		"<i>Action</i>: Retry within "+format.Duration(m.timeout),
	)
	id, err := m.messenger.SendText(ctx, chatID, text, tg.SendOptions{Keyboard: retryKeyboard(userID)})
	if err != nil {
		logger.LogEvent(ctx, logger.MOD, slog.LevelWarn, "captcha.retry.fail", slog.String("err", err.Error()))
		return
	}
	m.setMessage(key, id)
}

// checkSolver allows the challenged member and moderators who may restrict
// members.
func (m *Module) checkSolver(ctx context.Context, ev *commands.Event, userID int64) error {
	if ev.Sender.ID == userID {
		return nil
	}
	if engine.Can(ctx, m.messenger, ev.ChatID, ev.Sender.ID, commands.PermRestrictMembers) {
		return nil
	}
	return errs.User("This captcha is not for you")
}

func (m *Module) setMessage(key state.Key, id int) {
	_, _ = m.sessions.Update(key, func(s *state.Session) error {
		c, _ := state.Data[challenge](*s)
		c.MessageID = id
		s.Data = c
		return nil
	})
}

func retryKeyboard(userID int64) keyboard.Markup {
	return keyboard.Row(keyboard.Cmd("『Retry Captcha』", "captcha", callbacks.F("user_id", userID)))
}

func newCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// options returns code and three distinct decoys in random order.
func options(code string) []string {
	seen := map[string]bool{code: true}
	out := []string{code}
	for len(out) < optionCount {
		c := newCode()
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
