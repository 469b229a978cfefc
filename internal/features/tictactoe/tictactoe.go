// Package tictactoe implements best-of-rounds Tic-Tac-Toe on an inline
// keyboard: duels between two chat members and single-player games against
// the bot.
package tictactoe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/internal/engine"
)

// Session feature tags.
const (
	Feature        = "ttt"
	PendingFeature = "ttt_pending"
)

const (
	command   = "ttt"
	maxRounds = 3
	maxStake  = 3
)

// XP moves experience between players and settles games against the bot.
type XP interface {
	TransferXP(ctx context.Context, from, to, limit int64) (int64, error)
	AddXP(ctx context.Context, id, delta int64) (before, after int64, err error)
}

// Options configure the module.
type Options struct {
	Messenger engine.Messenger
	Sessions  *state.Store
	XP        XP
	// TurnTimeout bounds each move and the pending challenge.
	TurnTimeout time.Duration
}

// Module runs duels.
type Module struct {
	messenger engine.Messenger
	sessions  *state.Store
	xp        XP
	timeout   time.Duration
	roll      func(n int) int
}

// challenge is the payload of a pending invitation.
type challenge struct {
	Challenger commands.User
	Opponent   commands.User
	MessageID  int
	Accepted   bool
}

// game is the payload of a running duel.
type game struct {
	Player1   commands.User
	Player2   commands.User
	Turn      int64
	Rounds    int
	Round     int
	Score1    int
	Score2    int
	Board     Board
	MessageID int
}

func (g *game) mark(userID int64) int {
	if userID == g.Player1.ID {
		return cross
	}
	return nought
}

func (g *game) other(userID int64) commands.User {
	if userID == g.Player1.ID {
		return g.Player2
	}
	return g.Player1
}

func (g *game) player(userID int64) commands.User {
	if userID == g.Player1.ID {
		return g.Player1
	}
	return g.Player2
}

// New builds the module.
func New(opts Options) *Module {
	m := &Module{
		messenger: opts.Messenger,
		sessions:  opts.Sessions,
		xp:        opts.XP,
		timeout:   opts.TurnTimeout,
		roll:      rand.IntN,
	}
	if m.timeout <= 0 {
		m.timeout = time.Minute
	}
	return m
}

// Commands returns the duel and single-player commands. Button presses reach
// the handler of the command that drew them.
func (m *Module) Commands() []commands.Command {
	return []commands.Command{
		{
			Name:        "tttduel",
			Aliases:     []string{command},
			Category:    "Game",
			Description: "Challenge a member to Tic Tac Toe",
			Usage:       "<reply | @user>",
			ChatOnly:    true,
			Handler:     commands.HandlerFunc(m.handle),
		},
		{
			Name:        BotFeature,
			Category:    "Game",
			Description: "Play Tic Tac Toe against the bot",
			ChatOnly:    true,
			Handler:     commands.HandlerFunc(m.handleSolo),
		},
	}
}

func (m *Module) handle(ctx context.Context, req *commands.Request) error {
	if !req.Event.IsCallback() {
		return m.challenge(ctx, req)
	}
	in := req.Input
	switch {
	case in.Flags["action"] != "":
		return m.respond(ctx, req, in.Flags["action"])
	case in.Flags["rounds"] != "":
		n, _ := in.Int("rounds")
		return m.begin(ctx, req, n)
	case in.Flags["defeat"] == "true":
		return m.surrender(ctx, req)
	}
	r, okR := in.Int("r")
	c, okC := in.Int("c")
	if !okR || !okC {
		return errs.User("Unsupported action")
	}
	return m.move(ctx, req, r, c)
}

func (m *Module) challenge(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	target, ok := ev.Target()
	if !ok {
		return errs.User(engine.Card("Invalid Challenge", "❌", "Reply to or mention the member to challenge"))
	}
	if target.ID == ev.Sender.ID {
		return errs.User(engine.Card("Invalid Challenge", "❌", "You cannot challenge yourself"))
	}
	if target.IsBot {
		return errs.User(engine.Card("Invalid Challenge", "❌", "You cannot challenge a bot"))
	}

	chatID, p1, p2 := ev.ChatID, ev.Sender.ID, target.ID
	key := state.NewKey(PendingFeature, chatID)
	err := m.sessions.CreateExclusive(key, func(k state.Key) bool {
		if k.ChatID == chatID && (k.Feature == Feature || k.Feature == PendingFeature) {
			return true
		}
		return (k.Feature == Feature || k.Feature == BotFeature) && (k.Involves(p1) || k.Involves(p2))
	}, state.Options{
		Status:   state.StatusPending,
		Data:     challenge{Challenger: ev.Sender, Opponent: target},
		TTL:      m.timeout,
		OnExpire: m.expireChallenge,
	})
	if errors.Is(err, state.ErrConflict) || errors.Is(err, state.ErrSessionExists) {
		return errs.User(engine.Card("Game In Progress", "🎮", "Finish the running game first"))
	}
	if err != nil {
		return err
	}

	text := engine.Card("Tic Tac Toe Challenge", "🎮",
		"<i>Challenger</i>: "+engine.MentionUser(ev.Sender),
		"<i>Opponent</i>: "+engine.MentionUser(target),
		"Accept or Reject",
	)
	kb := keyboard.Row(
		keyboard.Cmd("『Accept』", command, callbacks.F("action", "accept")),
		keyboard.Cmd("『Reject』", command, callbacks.F("action", "reject")),
	)
	id, err := engine.ReplyKeyboard(ctx, m.messenger, ev, text, kb)
	if err != nil {
		m.sessions.Delete(key)
		return err
	}
	_, _ = m.sessions.Update(key, func(s *state.Session) error {
		c, _ := state.Data[challenge](*s)
		c.MessageID = id
		s.Data = c
		return nil
	})
	return nil
}

func (m *Module) respond(ctx context.Context, req *commands.Request, action string) error {
	ev := req.Event
	key := state.NewKey(PendingFeature, ev.ChatID)
	accept := action == "accept"
	found, err := m.sessions.Update(key, func(s *state.Session) error {
		c, _ := state.Data[challenge](*s)
		if ev.Sender.ID != c.Opponent.ID {
			return errs.User(engine.Card("Access Denied", "❌", "This game is not for you"))
		}
		if !accept {
			s.End()
			return nil
		}
		c.Accepted = true
		s.Data = c
		s.Status = state.StatusActive
		s.Extend(m.timeout)
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.User("No pending challenge")
	}
	if !accept {
		req.SetAnswer("Challenge rejected")
		return m.messenger.EditText(ctx, ev.ChatID, ev.MessageID, engine.Card("Challenge Rejected", "❌"), nil)
	}
	buttons := make([]keyboard.Button, 0, maxRounds)
	for n := 1; n <= maxRounds; n++ {
		buttons = append(buttons, keyboard.Cmd("『"+strconv.Itoa(n)+"』", command, callbacks.F("rounds", n)))
	}
	return m.messenger.EditText(ctx, ev.ChatID, ev.MessageID, engine.Card("Select Rounds", "🎮"), keyboard.Row(buttons...))
}

func (m *Module) begin(ctx context.Context, req *commands.Request, rounds int) error {
	ev := req.Event
	rounds = min(max(rounds, 1), maxRounds)

	var c challenge
	found, err := m.sessions.Update(state.NewKey(PendingFeature, ev.ChatID), func(s *state.Session) error {
		c, _ = state.Data[challenge](*s)
		if !c.Accepted {
			return errs.User("The challenge has not been accepted yet")
		}
		if ev.Sender.ID != c.Challenger.ID && ev.Sender.ID != c.Opponent.ID {
			return errs.User(engine.Card("Access Denied", "❌", "This game is not for you"))
		}
		s.End()
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.User("No pending challenge")
	}

	g := game{
		Player1:   c.Challenger,
		Player2:   c.Opponent,
		Turn:      c.Challenger.ID,
		Rounds:    rounds,
		Round:     1,
		MessageID: ev.MessageID,
	}
	key := state.NewKey(Feature, ev.ChatID, g.Player1.ID, g.Player2.ID)
	err = m.sessions.CreateExclusive(key, func(k state.Key) bool {
		if k.Feature == BotFeature {
			return k.Involves(g.Player1.ID) || k.Involves(g.Player2.ID)
		}
		return k.Feature == Feature && (k.ChatID == ev.ChatID || k.Involves(g.Player1.ID) || k.Involves(g.Player2.ID))
	}, state.Options{
		Status:   state.StatusActive,
		Data:     g,
		TTL:      m.timeout,
		OnExpire: m.expireGame,
	})
	if errors.Is(err, state.ErrConflict) || errors.Is(err, state.ErrSessionExists) {
		return errs.User(engine.Card("Game In Progress", "🎮", "Finish the running game first"))
	}
	if err != nil {
		return err
	}
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "ttt.start",
		slog.Int64("chat_id", ev.ChatID),
		slog.Int("rounds", rounds),
	)
	return m.render(ctx, ev.ChatID, g)
}

// find returns the running game in the chat that userID plays in.
func (m *Module) find(chatID, userID int64) (state.Key, bool) {
	keys := m.sessions.Find(func(k state.Key) bool {
		return k.Feature == Feature && k.ChatID == chatID && k.Involves(userID)
	})
	if len(keys) == 0 {
		return state.Key{}, false
	}
	return keys[0], true
}

func (m *Module) move(ctx context.Context, req *commands.Request, r, c int) error {
	ev := req.Event
	key, ok := m.find(ev.ChatID, ev.Sender.ID)
	if !ok {
		return errs.User("No active game")
	}
	if !inBounds(r, c) {
		return errs.User("Invalid Move: unknown position")
	}

	var (
		g        game
		finished bool
	)
	found, err := m.sessions.Update(key, func(s *state.Session) error {
		g, _ = state.Data[game](*s)
		if ev.Sender.ID != g.Turn {
			return errs.User(engine.Card("Invalid Turn", "❌", "Not your turn"))
		}
		if g.Board[r][c] != empty {
			return errs.User(engine.Card("Invalid Move", "❌", "Position already occupied"))
		}
		g.Board[r][c] = g.mark(ev.Sender.ID)

		switch winner := g.Board.Winner(); {
		case winner == cross:
			g.Score1++
			finished = g.nextRound()
		case winner == nought:
			g.Score2++
			finished = g.nextRound()
		case g.Board.Full():
			finished = g.nextRound()
		default:
			g.Turn = g.other(ev.Sender.ID).ID
		}
		s.Data = g
		if finished {
			s.End()
		} else {
			s.Extend(m.timeout)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.User("No active game")
	}
	if finished {
		return m.finish(ctx, key.ChatID, g)
	}
	return m.render(ctx, key.ChatID, g)
}

// nextRound clears the board after a decided or drawn round and reports
// whether the match is over.
func (g *game) nextRound() bool {
	g.Round++
	if g.Round > g.Rounds {
		return true
	}
	g.Board = Board{}
	g.Turn = g.Player1.ID
	return false
}

func (m *Module) surrender(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	key, ok := m.find(ev.ChatID, ev.Sender.ID)
	if !ok {
		return errs.User("No active game")
	}
	var g game
	found, _ := m.sessions.Update(key, func(s *state.Session) error {
		g, _ = state.Data[game](*s)
		s.End()
		return nil
	})
	if !found {
		return errs.User("No active game")
	}

	loser, winner := g.player(ev.Sender.ID), g.other(ev.Sender.ID)
	moved, err := m.xp.TransferXP(ctx, loser.ID, winner.ID, int64(m.roll(maxStake)+1))
	if err != nil {
		logger.LogEvent(ctx, logger.GAME, slog.LevelWarn, "ttt.stake.fail", slog.String("err", err.Error()))
	}
	text := engine.Card("Surrender", "🏳",
		fmt.Sprintf("<i>Loser</i>: %s (-%d XP)", engine.MentionUser(loser), moved),
		fmt.Sprintf("<i>Winner</i>: %s (+%d XP)", engine.MentionUser(winner), moved),
	)
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "ttt.surrender",
		slog.Int64("chat_id", key.ChatID),
		slog.Int64("xp", moved),
	)
	return m.messenger.EditText(ctx, key.ChatID, g.MessageID, text, nil)
}

func (m *Module) finish(ctx context.Context, chatID int64, g game) error {
	text := engine.Card("Final Result", "🏆",
		fmt.Sprintf("%s: %d", engine.MentionUser(g.Player1), g.Score1),
		fmt.Sprintf("%s: %d", engine.MentionUser(g.Player2), g.Score2),
	)
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "ttt.finish",
		slog.Int64("chat_id", chatID),
		slog.String("outcome", fmt.Sprintf("%d-%d", g.Score1, g.Score2)),
	)
	return m.messenger.EditText(ctx, chatID, g.MessageID, text, nil)
}

func (m *Module) render(ctx context.Context, chatID int64, g game) error {
	rows := make(keyboard.Markup, 0, 4)
	for r := range 3 {
		row := make([]keyboard.Button, 0, 3)
		for c := range 3 {
			row = append(row, keyboard.Cmd(symbol(g.Board[r][c]), command, callbacks.F("r", r), callbacks.F("c", c)))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []keyboard.Button{keyboard.Cmd("『Defeated』", command, callbacks.F("defeat", true))})

	text := engine.Card("Tic Tac Toe", "🎮",
		fmt.Sprintf("<i>Round</i>: %d/%d", g.Round, g.Rounds),
		fmt.Sprintf("<i>Score</i>: %d - %d", g.Score1, g.Score2),
		"<i>Turn</i>: "+engine.MentionUser(g.player(g.Turn)),
	)
	return m.messenger.EditText(ctx, chatID, g.MessageID, text, rows)
}

func (m *Module) expireChallenge(ctx context.Context, s state.Session) {
	c, _ := state.Data[challenge](s)
	if c.MessageID == 0 {
		return
	}
	_ = m.messenger.EditText(ctx, s.Key.ChatID, c.MessageID, engine.Card("Challenge Expired", "⏰"), nil)
}

func (m *Module) expireGame(ctx context.Context, s state.Session) {
	g, _ := state.Data[game](s)
	text := engine.Card("Turn Expired", "⏰", "<i>Missed By</i>: "+engine.MentionUser(g.player(g.Turn)))
	if err := m.messenger.EditText(ctx, s.Key.ChatID, g.MessageID, text, nil); err != nil {
		logger.LogEvent(ctx, logger.GAME, slog.LevelDebug, "ttt.expire.fail", slog.String("err", err.Error()))
	}
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "ttt.expired", slog.Int64("chat_id", s.Key.ChatID))
}
