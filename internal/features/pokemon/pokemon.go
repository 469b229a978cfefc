// Package pokemon runs "Who's That Pokémon": a recurring job posts a hidden
// Pokémon to one opted-in chat at a time and the first correct answer, via
// /guess or a plain message, wins XP.
package pokemon

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/scheduler"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/store"
)

// Feature names the guessing sessions.
const Feature = "pokemon"

const (
	jobName      = "pokemon.round"
	fetchRetries = 3
)

// Source supplies random Pokémon. *Client implements it.
type Source interface {
	Random(ctx context.Context) (Pokemon, error)
}

// Scheduler runs one-off jobs. *scheduler.Scheduler implements it.
type Scheduler interface {
	After(name string, delay time.Duration, job scheduler.Job) error
	Pending(name string) bool
}

// Store holds the per-chat opt-in and the XP ledger.
type Store interface {
	Chat(ctx context.Context, id int64) (store.Chat, error)
	SetChatFlag(ctx context.Context, id int64, flag string, on bool) error
	ChatsWith(ctx context.Context, flag string) ([]int64, error)
	AddXP(ctx context.Context, id, delta int64) (before, after int64, err error)
}

type round struct {
	Pokemon   Pokemon
	MessageID int
}

// Options configure the module.
type Options struct {
	Messenger engine.Messenger
	Sessions  *state.Store
	Store     Store
	Source    Source
	Scheduler Scheduler
	// Delays are the candidate gaps between rounds; one is drawn per round.
	Delays []time.Duration
	// Answer is how long a round stays open.
	Answer time.Duration
	Reward int64
	Prefix string
}

// Module runs the game.
type Module struct {
	messenger engine.Messenger
	sessions  *state.Store
	store     Store
	source    Source
	sched     Scheduler
	delays    []time.Duration
	answer    time.Duration
	reward    int64
	prefix    string
	pick      func(n int) int

	next atomic.Uint64
}

// New builds the module.
func New(opts Options) *Module {
	m := &Module{
		messenger: opts.Messenger,
		sessions:  opts.Sessions,
		store:     opts.Store,
		source:    opts.Source,
		sched:     opts.Scheduler,
		delays:    opts.Delays,
		answer:    opts.Answer,
		reward:    opts.Reward,
		prefix:    opts.Prefix,
		pick:      rand.IntN,
	}
	if len(m.delays) == 0 {
		m.delays = []time.Duration{20 * time.Minute, 30 * time.Minute, 40 * time.Minute}
	}
	if m.answer <= 0 {
		m.answer = time.Minute
	}
	if m.reward <= 0 {
		m.reward = 50
	}
	if m.prefix == "" {
		m.prefix = "/"
	}
	return m
}

// Commands returns /guess and the per-chat toggle.
func (m *Module) Commands() []commands.Command {
	return []commands.Command{
		{
			Name: "guess", Category: "Game", Usage: "<pokemon name>",
			Description: "Guess the Pokémon in Who's That Pokémon",
			ChatOnly:    true,
			Handler:     commands.HandlerFunc(m.guess),
		},
		{
			Name: "pokemon", Aliases: []string{"guesspoke", "whosthatpokemon"}, Category: "Game", Usage: "on | off",
			Description: "Enable or disable Who's That Pokémon in this chat",
			ChatOnly:    true, AdminOnly: true,
			Handler: commands.HandlerFunc(m.toggle),
		},
	}
}

// Schedule queues the next round unless one is already pending.
func (m *Module) Schedule() error {
	if m.sched == nil || m.sched.Pending(jobName) {
		return nil
	}
	return m.scheduleNext()
}

func (m *Module) scheduleNext() error {
	if m.sched == nil {
		return nil
	}
	return m.sched.After(jobName, m.delays[m.pick(len(m.delays))], m.round)
}

// round posts one Pokémon to the next opted-in chat and queues the
// following round.
func (m *Module) round(ctx context.Context) error {
	defer func() {
		if err := m.scheduleNext(); err != nil {
			logger.LogEvent(ctx, logger.GAME, slog.LevelError, "pokemon.schedule.fail", slog.String("err", err.Error()))
		}
	}()
	return m.play(ctx)
}

func (m *Module) play(ctx context.Context) error {
	chats, err := m.store.ChatsWith(ctx, store.FlagPokemon)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return nil
	}
	chatID := chats[int((m.next.Add(1)-1)%uint64(len(chats)))]
	key := state.NewKey(Feature, chatID)
	if _, busy := m.sessions.Get(key); busy {
		return nil
	}

	var p Pokemon
	for attempt := 1; attempt <= fetchRetries; attempt++ {
		p, err = m.source.Random(ctx)
		if err == nil {
			break
		}
		logger.LogEvent(ctx, logger.GAME, slog.LevelWarn, "pokemon.fetch.fail",
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
	}
	if err != nil {
		return err
	}

	err = m.sessions.Create(key, state.Options{
		Status:   state.StatusActive,
		Data:     round{Pokemon: p},
		TTL:      m.answer,
		OnExpire: m.expire,
	})
	if errors.Is(err, state.ErrSessionExists) {
		return nil
	}
	if err != nil {
		return err
	}

	caption := ui.NewCard("Who's That Pokémon?", "❓").
		Line("<i>Time</i>: %s", format.Duration(m.answer)).
		Line("<i>Use</i>: %sguess &lt;pokemon name&gt;", m.prefix).
		String()
	id, err := m.messenger.SendPhoto(ctx, chatID, tg.Photo{URL: p.Artwork}, caption, tg.SendOptions{Spoiler: true})
	if err != nil {
		m.sessions.Delete(key)
		return err
	}
	_, _ = m.sessions.Update(key, func(s *state.Session) error {
		r, _ := state.Data[round](*s)
		r.MessageID = id
		s.Data = r
		return nil
	})
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "pokemon.round",
		slog.Int64("chat_id", chatID),
		slog.Int("pokemon", p.ID),
	)
	return nil
}

func (m *Module) expire(ctx context.Context, s state.Session) {
	r, _ := state.Data[round](s)
	text := ui.NewCard("Time Over", "⏰").
		Line("<i>Pokémon</i>: %s", format.Escape(displayName(r.Pokemon.Name))).
		Line("<i>Status</i>: Nobody guessed it").
		String()
	if _, err := m.messenger.SendText(ctx, s.Key.ChatID, text, tg.SendOptions{ReplyTo: r.MessageID}); err != nil {
		logger.LogEvent(ctx, logger.GAME, slog.LevelWarn, "pokemon.expire.fail", slog.String("err", err.Error()))
	}
}

func (m *Module) guess(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	answer := normalize(req.Input.Text)
	if answer == "" {
		return errs.User(engine.Card("Invalid Input", "❌", "<i>Action</i>: Provide a Pokémon name"))
	}

	r, found, correct, err := m.claim(ev.ChatID, answer)
	if err != nil {
		return err
	}
	if !found {
		return errs.User(engine.Card("No Active Game", "❌", "<i>Status</i>: No Pokémon quiz running"))
	}
	if !correct {
		return engine.Reply(ctx, m.messenger, ev, engine.Card("Wrong Guess", "❌",
			"<i>Hint</i>: "+format.Spoiler(hint(r.Pokemon.Name)),
			"<i>Action</i>: Try again before time runs out"))
	}
	return m.win(ctx, ev, r)
}

// Listen takes plain chat messages as guesses. Only a correct answer gets a
// reply so ordinary conversation is left alone.
func (m *Module) Listen(ctx context.Context, ev *commands.Event) error {
	if ev.Private() || ev.Sender.IsBot {
		return nil
	}
	answer := normalize(ev.Text)
	if answer == "" {
		return nil
	}
	if _, ok := m.sessions.Get(state.NewKey(Feature, ev.ChatID)); !ok {
		return nil
	}
	r, _, correct, err := m.claim(ev.ChatID, answer)
	if err != nil || !correct {
		return err
	}
	return m.win(ctx, ev, r)
}

// claim ends the chat's round when answer matches it.
func (m *Module) claim(chatID int64, answer string) (r round, found, correct bool, err error) {
	found, err = m.sessions.Update(state.NewKey(Feature, chatID), func(s *state.Session) error {
		r, _ = state.Data[round](*s)
		if normalize(r.Pokemon.Name) == answer {
			correct = true
			s.End()
		}
		return nil
	})
	return r, found, correct, err
}

func (m *Module) win(ctx context.Context, ev *commands.Event, r round) error {
	if _, _, err := m.store.AddXP(ctx, ev.Sender.ID, m.reward); err != nil {
		return errs.Wrap("award pokemon xp", err)
	}
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "pokemon.won",
		slog.Int64("chat_id", ev.ChatID),
		slog.Int64("user_id", ev.Sender.ID),
	)
	caption := ui.NewCard("Correct", "🎉").
		Line("<i>Pokémon</i>: %s", format.Escape(displayName(r.Pokemon.Name))).
		Line("<i>Guessed By</i>: %s", engine.MentionUser(ev.Sender)).
		Line("<i>Reward</i>: +%d XP", m.reward).
		String()
	_, err := m.messenger.SendPhoto(ctx, ev.ChatID, tg.Photo{URL: r.Pokemon.Artwork}, caption, tg.SendOptions{ReplyTo: ev.MessageID})
	return err
}

func (m *Module) toggle(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	raw, ok := req.Input.Flag("state")
	if !ok {
		raw = req.Input.Text
	}
	if raw != "" {
		on, valid := commands.ParseSwitch(raw)
		if !valid {
			return errs.User(engine.Card("Invalid Input", "❌", "<i>Usage</i>: "+m.prefix+"pokemon on | off"))
		}
		if err := m.store.SetChatFlag(ctx, ev.ChatID, store.FlagPokemon, on); err != nil {
			return err
		}
		if on {
			if err := m.Schedule(); err != nil {
				return err
			}
		}
		if ev.IsCallback() {
			req.SetAnswer("Saved")
		}
	}

	chat, err := m.store.Chat(ctx, ev.ChatID)
	if err != nil {
		return err
	}
	status := "Disabled ❌"
	if chat.Pokemon {
		status = "Enabled ✅"
	}
	text := format.Blockquote(ui.NewCard("Who's That Pokémon", "🎮").Line("<i>Status</i>: %s", status).String())
	kb := keyboard.Row(
		keyboard.Cmd("✅ Enable", "pokemon", callbacks.F("state", "on")),
		keyboard.Cmd("❌ Disable", "pokemon", callbacks.F("state", "off")),
	)
	if ev.IsCallback() {
		return m.messenger.EditText(ctx, ev.ChatID, ev.MessageID, text, kb)
	}
	_, err = engine.ReplyKeyboard(ctx, m.messenger, ev, text, kb)
	return err
}

// normalize folds case and drops everything but letters and digits, so
// "Mr. Mime" matches "mr-mime".
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func displayName(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, "-")
}

// hint reveals the first letter and the length.
func hint(name string) string {
	n := []rune(normalize(name))
	if len(n) == 0 {
		return "no hint available"
	}
	return "starts with " + strings.ToUpper(string(n[0])) + ", " + strconv.Itoa(len(n)) + " letters"
}
