package tictactoe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/callbacks"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/internal/engine"
)

// BotFeature tags single-player games against the bot.
const BotFeature = "tttbot"

// The player marks nought, the bot marks cross.
const (
	playerMark = nought
	botMark    = cross
)

// soloGame is the payload of a game against the bot.
type soloGame struct {
	Player    commands.User
	Rounds    int
	Round     int
	Score     int
	BotScore  int
	Board     Board
	MessageID int
}

// busy reports sessions that keep userID from starting a game in chatID:
// another game against the bot in the same chat, or any game userID plays.
func busy(chatID, userID int64) func(state.Key) bool {
	return func(k state.Key) bool {
		switch k.Feature {
		case BotFeature:
			return k.ChatID == chatID || k.Involves(userID)
		case Feature:
			return k.Involves(userID)
		}
		return false
	}
}

func (m *Module) handleSolo(ctx context.Context, req *commands.Request) error {
	ev, in := req.Event, req.Input
	if !ev.IsCallback() {
		return m.offerSolo(ctx, req)
	}
	switch {
	case in.Flags["rounds"] != "":
		n, _ := in.Int("rounds")
		owner, _ := in.Int64("for")
		return m.beginSolo(ctx, req, n, owner)
	case in.Flags["defeat"] == "true":
		return m.endSolo(ctx, req.Event.ChatID, req.Event.Sender.ID, true)
	}
	r, okR := in.Int("r")
	c, okC := in.Int("c")
	if !okR || !okC {
		return errs.User("Unsupported action")
	}
	return m.moveSolo(ctx, req, r, c)
}

func (m *Module) offerSolo(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	if len(m.sessions.Find(busy(ev.ChatID, ev.Sender.ID))) > 0 {
		return errs.User(engine.Card("Game In Progress", "🎮", "Finish the running game first"))
	}
	buttons := make([]keyboard.Button, 0, maxRounds)
	for n := 1; n <= maxRounds; n++ {
		buttons = append(buttons, keyboard.Cmd(fmt.Sprintf("『%d』", n), BotFeature,
			callbacks.F("rounds", n), callbacks.F("for", ev.Sender.ID)))
	}
	_, err := engine.ReplyKeyboard(ctx, m.messenger, ev, engine.Card("Select Rounds", "🎮"), keyboard.Row(buttons...))
	return err
}

func (m *Module) beginSolo(ctx context.Context, req *commands.Request, rounds int, owner int64) error {
	ev := req.Event
	if owner != ev.Sender.ID {
		return errs.User(engine.Card("Access Denied", "❌", "This game is not for you"))
	}
	g := soloGame{
		Player:    ev.Sender,
		Rounds:    min(max(rounds, 1), maxRounds),
		Round:     1,
		MessageID: ev.MessageID,
	}
	err := m.sessions.CreateExclusive(state.NewKey(BotFeature, ev.ChatID, ev.Sender.ID), busy(ev.ChatID, ev.Sender.ID), state.Options{
		Status:   state.StatusActive,
		Data:     g,
		TTL:      m.timeout,
		OnExpire: m.expireSolo,
	})
	if errors.Is(err, state.ErrConflict) || errors.Is(err, state.ErrSessionExists) {
		return errs.User(engine.Card("Game In Progress", "🎮", "Finish the running game first"))
	}
	if err != nil {
		return err
	}
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "tttbot.start", slog.Int("rounds", g.Rounds))
	return m.renderSolo(ctx, ev.ChatID, g)
}

func (m *Module) moveSolo(ctx context.Context, req *commands.Request, r, c int) error {
	ev := req.Event
	if !inBounds(r, c) {
		return errs.User("Invalid Move: unknown position")
	}
	key := state.NewKey(BotFeature, ev.ChatID, ev.Sender.ID)
	var (
		g        soloGame
		finished bool
	)
	found, err := m.sessions.Update(key, func(s *state.Session) error {
		g, _ = state.Data[soloGame](*s)
		if g.Board[r][c] != empty {
			return errs.User(engine.Card("Invalid Move", "❌", "Position already occupied"))
		}
		g.Board[r][c] = playerMark
		if !g.settle() {
			br, bc, _ := g.Board.BotMove()
			g.Board[br][bc] = botMark
			g.settle()
		}
		finished = g.Round > g.Rounds
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
		return m.finishSolo(ctx, ev.ChatID, g, false)
	}
	return m.renderSolo(ctx, ev.ChatID, g)
}

// settle scores a decided or drawn board and starts the next round. It
// reports whether the round ended.
func (g *soloGame) settle() bool {
	switch g.Board.Winner() {
	case playerMark:
		g.Score++
	case botMark:
		g.BotScore++
	default:
		if !g.Board.Full() {
			return false
		}
	}
	g.Round++
	g.Board = Board{}
	return true
}

func (m *Module) endSolo(ctx context.Context, chatID, userID int64, defeated bool) error {
	s, ok := m.sessions.Delete(state.NewKey(BotFeature, chatID, userID))
	if !ok {
		return errs.User("No active game")
	}
	g, _ := state.Data[soloGame](s)
	return m.finishSolo(ctx, chatID, g, defeated)
}

// finishSolo settles XP: a win earns a random stake, a loss, draw or
// surrender costs one, never more than the player holds.
func (m *Module) finishSolo(ctx context.Context, chatID int64, g soloGame, defeated bool) error {
	stake := int64(m.roll(maxStake) + 1)
	won := !defeated && g.Score > g.BotScore
	if !won {
		stake = -stake
	}
	before, after, err := m.xp.AddXP(ctx, g.Player.ID, stake)
	if err != nil {
		logger.LogEvent(ctx, logger.GAME, slog.LevelWarn, "tttbot.xp.fail",
			slog.String("err", err.Error()),
			slog.String("err_code", errs.Code(err)),
		)
	}
	change := after - before

	var text string
	if defeated {
		text = engine.Card("Surrender", "🏳", fmt.Sprintf("You lost %d XP", -change))
	} else {
		text = engine.Card("Final Result", "🏆",
			fmt.Sprintf("<i>You</i>: %d", g.Score),
			fmt.Sprintf("<i>Bot</i>: %d", g.BotScore),
			fmt.Sprintf("<i>XP</i>: %+d", change),
		)
	}
	logger.LogEvent(ctx, logger.GAME, slog.LevelInfo, "tttbot.finish",
		slog.Int64("chat_id", chatID),
		slog.Int64("user_id", g.Player.ID),
		slog.Bool("surrendered", defeated),
		slog.Int64("xp", change),
	)
	return m.messenger.EditText(ctx, chatID, g.MessageID, text, nil)
}

func (m *Module) renderSolo(ctx context.Context, chatID int64, g soloGame) error {
	rows := make(keyboard.Markup, 0, 4)
	for r := range 3 {
		row := make([]keyboard.Button, 0, 3)
		for c := range 3 {
			row = append(row, keyboard.Cmd(symbol(g.Board[r][c]), BotFeature, callbacks.F("r", r), callbacks.F("c", c)))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []keyboard.Button{keyboard.Cmd("『Defeated』", BotFeature, callbacks.F("defeat", true))})

	text := engine.Card("Tic Tac Toe vs Bot", "🎮",
		fmt.Sprintf("<i>Round</i>: %d/%d", g.Round, g.Rounds),
		fmt.Sprintf("<i>Score</i>: You %d - %d Bot", g.Score, g.BotScore),
		"You are "+symbol(playerMark)+" | Bot is "+symbol(botMark),
	)
	return m.messenger.EditText(ctx, chatID, g.MessageID, text, rows)
}

// expireSolo closes a game whose player stopped moving. Scores stand as they
// are, so an idle player who is not ahead loses XP.
func (m *Module) expireSolo(ctx context.Context, s state.Session) {
	g, _ := state.Data[soloGame](s)
	if err := m.finishSolo(ctx, s.Key.ChatID, g, false); err != nil {
		logger.LogEvent(ctx, logger.GAME, slog.LevelDebug, "tttbot.expire.fail", slog.String("err", err.Error()))
	}
}
