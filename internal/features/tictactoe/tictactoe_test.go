package tictactoe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/internal/engine/enginetest"
)

const chatID = int64(-100900)

var (
	alice = commands.User{ID: 1, FirstName: "Alice"}
	bob   = commands.User{ID: 2, FirstName: "Bob"}
	carol = commands.User{ID: 3, FirstName: "Carol"}
)

type fixture struct {
	m        *Module
	msgr     *enginetest.Messenger
	users    *enginetest.Users
	sessions *state.Store
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		msgr:     enginetest.NewMessenger(),
		users:    enginetest.NewUsers(),
		sessions: state.NewStore(),
	}
	t.Cleanup(f.sessions.Close)
	f.m = New(Options{Messenger: f.msgr, Sessions: f.sessions, XP: f.users, TurnTimeout: timeout})
	return f
}

func (f *fixture) send(t *testing.T, from commands.User, target *commands.User, chat int64) error {
	t.Helper()
	ev := &commands.Event{
		Kind:      commands.KindMessage,
		ChatID:    chat,
		ChatType:  "supergroup",
		MessageID: 10,
		Sender:    from,
		Text:      "/ttt",
		ReplyTo:   target,
	}
	return f.m.handle(context.Background(), &commands.Request{Event: ev, Input: commands.Parse(ev.Text, "/", "")})
}

func (f *fixture) press(t *testing.T, from commands.User, data string) error {
	t.Helper()
	ev := &commands.Event{
		Kind:       commands.KindCallback,
		ChatID:     chatID,
		ChatType:   "supergroup",
		MessageID:  1001,
		Sender:     from,
		Text:       data,
		CallbackID: "cb",
	}
	return f.m.handle(context.Background(), &commands.Request{Event: ev, Input: commands.ParseCallback(data, "/", "")})
}

func (f *fixture) mustPress(t *testing.T, from commands.User, data string) {
	t.Helper()
	if err := f.press(t, from, data); err != nil {
		t.Fatalf("press %q: %v", data, err)
	}
}

func (f *fixture) start(t *testing.T, rounds string) {
	t.Helper()
	if err := f.send(t, alice, &bob, chatID); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	f.mustPress(t, bob, "cmd:ttt action:accept")
	f.mustPress(t, alice, "cmd:ttt rounds:"+rounds)
}

func (f *fixture) game(t *testing.T) game {
	t.Helper()
	sess, ok := f.sessions.Get(state.NewKey(Feature, chatID, alice.ID, bob.ID))
	if !ok {
		t.Fatalf("no game session")
	}
	g, _ := state.Data[game](sess)
	return g
}

func TestBoardWinner(t *testing.T) {
	cases := []struct {
		name  string
		board Board
		want  int
	}{
		{"row", Board{{1, 1, 1}, {-1, -1, 0}, {0, 0, 0}}, cross},
		{"column", Board{{-1, 1, 0}, {-1, 1, 0}, {-1, 0, 1}}, nought},
		{"diagonal", Board{{1, -1, 0}, {-1, 1, 0}, {0, 0, 1}}, cross},
		{"anti diagonal", Board{{1, 1, -1}, {0, -1, 0}, {-1, 0, 1}}, nought},
		{"open", Board{{1, -1, 1}, {0, 0, 0}, {0, 0, 0}}, empty},
	}
	for _, tc := range cases {
		if got := tc.board.Winner(); got != tc.want {
			t.Fatalf("%s: winner = %d, want %d", tc.name, got, tc.want)
		}
	}
	if (Board{{1, -1, 1}, {1, -1, -1}, {-1, 1, 1}}).Full() != true {
		t.Fatalf("full board not detected")
	}
}

func TestChallengeRules(t *testing.T) {
	f := newFixture(t, time.Minute)
	if err := f.send(t, alice, nil, chatID); !errs.IsUser(err) {
		t.Fatalf("missing target: %v", err)
	}
	if err := f.send(t, alice, &alice, chatID); !errs.IsUser(err) {
		t.Fatalf("self challenge: %v", err)
	}
	if err := f.send(t, alice, &bob, chatID); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if _, ok := f.msgr.Find("send", "Tic Tac Toe Challenge"); !ok {
		t.Fatalf("no challenge message")
	}
	if err := f.send(t, carol, &alice, chatID); !errs.IsUser(err) {
		t.Fatalf("second challenge in chat: %v", err)
	}
	if err := f.press(t, carol, "cmd:ttt action:accept"); !errs.IsUser(err) {
		t.Fatalf("stranger accepted: %v", err)
	}
}

func TestSecondGameInChatRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.start(t, "1")
	err := f.send(t, carol, &commands.User{ID: 4, FirstName: "Dan"}, chatID)
	if !errs.IsUser(err) {
		t.Fatalf("second game: %v", err)
	}
	if err := f.send(t, bob, &carol, -100901); !errs.IsUser(err) {
		t.Fatalf("busy player in another chat: %v", err)
	}
}

func TestRejectEndsChallenge(t *testing.T) {
	f := newFixture(t, time.Minute)
	_ = f.send(t, alice, &bob, chatID)
	f.mustPress(t, bob, "cmd:ttt action:reject")
	if _, ok := f.msgr.Find("edit", "Challenge Rejected"); !ok {
		t.Fatalf("no rejection notice")
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("sessions = %d", f.sessions.Len())
	}
}

func TestRoundsClamped(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.start(t, "9")
	if g := f.game(t); g.Rounds != 3 || g.Turn != alice.ID || g.Round != 1 {
		t.Fatalf("game = %+v", g)
	}
}

func TestTurnsAndOccupiedCells(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.start(t, "1")
	if err := f.press(t, bob, "cmd:ttt r:0 c:0"); !errs.IsUser(err) {
		t.Fatalf("out of turn move: %v", err)
	}
	f.mustPress(t, alice, "cmd:ttt r:0 c:0")
	if err := f.press(t, bob, "cmd:ttt r:0 c:0"); !errs.IsUser(err) {
		t.Fatalf("occupied cell: %v", err)
	}
	if g := f.game(t); g.Board[0][0] != cross || g.Turn != bob.ID {
		t.Fatalf("game = %+v", g)
	}
}

func TestWinningMatch(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.start(t, "1")
	moves := []struct {
		who  commands.User
		data string
	}{
		{alice, "cmd:ttt r:0 c:0"},
		{bob, "cmd:ttt r:1 c:0"},
		{alice, "cmd:ttt r:0 c:1"},
		{bob, "cmd:ttt r:1 c:1"},
		{alice, "cmd:ttt r:0 c:2"},
	}
	for _, mv := range moves {
		f.mustPress(t, mv.who, mv.data)
	}
	call, ok := f.msgr.Find("edit", "Final Result")
	if !ok {
		t.Fatalf("no final result")
	}
	if !strings.Contains(call.Text, "Alice</a>: 1") || !strings.Contains(call.Text, "Bob</a>: 0") {
		t.Fatalf("result = %q", call.Text)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("game not removed")
	}
}

func TestRoundWinResetsBoard(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.start(t, "2")
	for _, mv := range []struct {
		who  commands.User
		data string
	}{
		{alice, "cmd:ttt r:0 c:0"},
		{bob, "cmd:ttt r:1 c:0"},
		{alice, "cmd:ttt r:0 c:1"},
		{bob, "cmd:ttt r:1 c:1"},
		{alice, "cmd:ttt r:0 c:2"},
	} {
		f.mustPress(t, mv.who, mv.data)
	}
	g := f.game(t)
	if g.Round != 2 || g.Score1 != 1 || g.Board != (Board{}) || g.Turn != alice.ID {
		t.Fatalf("game = %+v", g)
	}
}

func TestSurrenderTransfersXP(t *testing.T) {
	f := newFixture(t, time.Minute)
	_, _, _ = f.users.AddXP(context.Background(), bob.ID, 2)
	f.start(t, "3")

	f.mustPress(t, bob, "cmd:ttt defeat:true")
	call, ok := f.msgr.Find("edit", "Surrender")
	if !ok {
		t.Fatalf("no surrender notice")
	}
	moved := 2 - f.users.Get(bob.ID).XP
	if moved < 1 || moved > 2 || f.users.Get(alice.ID).XP != moved {
		t.Fatalf("moved = %d, alice = %d", moved, f.users.Get(alice.ID).XP)
	}
	if !strings.Contains(call.Text, "Loser</i>: ") || f.sessions.Len() != 0 {
		t.Fatalf("text = %q", call.Text)
	}
}

func TestSurrenderWithoutXP(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.start(t, "1")
	f.mustPress(t, alice, "cmd:ttt defeat:true")
	if f.users.Get(alice.ID).XP != 0 || f.users.Get(bob.ID).XP != 0 {
		t.Fatalf("xp moved from an empty balance")
	}
	if _, ok := f.msgr.Find("edit", "(-0 XP)"); !ok {
		t.Fatalf("no zero stake notice")
	}
}

func TestTurnTimeoutEndsGame(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	f.start(t, "1")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.msgr.Find("edit", "Turn Expired"); ok {
			if f.sessions.Len() != 0 {
				t.Fatalf("game not removed")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("turn did not expire")
}
