package captcha

import (
	"bytes"
	"context"
	"image/png"
	"regexp"
	"testing"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/internal/engine/enginetest"
)

const (
	chatID   = int64(-100777)
	memberID = int64(42)
)

func newModule(t *testing.T, join, timeout time.Duration) (*Module, *enginetest.Messenger, *state.Store) {
	t.Helper()
	msgr := enginetest.NewMessenger()
	sessions := state.NewStore()
	t.Cleanup(sessions.Close)
	m := New(Options{Messenger: msgr, Sessions: sessions, JoinTimeout: join, Timeout: timeout})
	return m, msgr, sessions
}

func press(from int64, data string) *commands.Request {
	ev := &commands.Event{
		Kind:       commands.KindCallback,
		ChatID:     chatID,
		ChatType:   "supergroup",
		MessageID:  500,
		Sender:     commands.User{ID: from, FirstName: "Member"},
		Text:       data,
		CallbackID: "cb",
	}
	return &commands.Request{Event: ev, Input: commands.ParseCallback(data, "/", "")}
}

func current(t *testing.T, s *state.Store) (state.Session, challenge) {
	t.Helper()
	sess, ok := s.Get(state.NewKey(Feature, chatID, memberID))
	if !ok {
		t.Fatalf("no captcha session")
	}
	c, _ := state.Data[challenge](sess)
	return sess, c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

func start(t *testing.T, m *Module) {
	t.Helper()
	if err := m.Start(context.Background(), chatID, commands.User{ID: memberID, FirstName: "Newbie"}); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestStartRestrictsAndPrompts(t *testing.T) {
	m, msgr, sessions := newModule(t, time.Minute, time.Minute)
	start(t, m)

	if len(msgr.Calls("restrict")) != 1 {
		t.Fatalf("member not restricted")
	}
	call, ok := msgr.Find("send", "Verification Required")
	if !ok {
		t.Fatalf("no prompt")
	}
	if got := call.Keyboard[0][0].Data; got != "cmd:captcha user_id:42" {
		t.Fatalf("button data = %q", got)
	}
	sess, c := current(t, sessions)
	if sess.Status != state.StatusPending || c.Attempt != 1 || c.MessageID != call.MessageID {
		t.Fatalf("session = %+v %+v", sess, c)
	}

	start(t, m)
	if len(msgr.Calls("send")) != 1 {
		t.Fatalf("second join prompted again")
	}
}

func TestCorrectAnswerLiftsRestriction(t *testing.T) {
	m, msgr, sessions := newModule(t, time.Minute, time.Minute)
	start(t, m)
	if err := m.show(context.Background(), press(memberID, "cmd:captcha user_id:42")); err != nil {
		t.Fatalf("show: %v", err)
	}
	photo, ok := msgr.Last("photo")
	if !ok || len(photo.Photo.Data) == 0 {
		t.Fatalf("no captcha image")
	}
	if rows := photo.Keyboard; len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 2 {
		t.Fatalf("keyboard = %+v", rows)
	}
	sess, c := current(t, sessions)
	if sess.Status != state.StatusActive || c.Code == "" {
		t.Fatalf("session = %+v %+v", sess, c)
	}

	req := press(memberID, "cmd:verify val:"+c.Code+" user_id:42")
	if err := m.verify(context.Background(), req); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(msgr.Calls("lift")) != 1 {
		t.Fatalf("restriction not lifted")
	}
	if _, ok := msgr.Find("send", "Verified"); !ok {
		t.Fatalf("no verified notice")
	}
	if req.Answer() != "Verified" {
		t.Fatalf("answer = %q", req.Answer())
	}
	if sessions.Len() != 0 {
		t.Fatalf("session left behind")
	}
}

func TestWrongAnswersKick(t *testing.T) {
	m, msgr, sessions := newModule(t, time.Minute, time.Minute)
	start(t, m)
	_ = m.show(context.Background(), press(memberID, "cmd:captcha user_id:42"))
	_, first := current(t, sessions)

	if err := m.verify(context.Background(), press(memberID, "cmd:verify val:WRONG1 user_id:42")); err != nil {
		t.Fatalf("verify: %v", err)
	}
	_, c := current(t, sessions)
	if c.Attempt != 2 || c.Code != "" {
		t.Fatalf("after first miss = %+v", c)
	}
	if _, ok := msgr.Find("caption", "Incorrect Captcha"); !ok {
		t.Fatalf("no retry prompt")
	}

	err := m.verify(context.Background(), press(memberID, "cmd:verify val:"+first.Code+" user_id:42"))
	if !errs.IsUser(err) {
		t.Fatalf("stale code accepted: %v", err)
	}

	_ = m.show(context.Background(), press(memberID, "cmd:captcha user_id:42"))
	_, second := current(t, sessions)
	if second.Code == "" || second.Attempt != 2 {
		t.Fatalf("retry challenge = %+v", second)
	}
	if err := m.verify(context.Background(), press(memberID, "cmd:verify val:WRONG2 user_id:42")); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(msgr.Calls("ban")) != 1 || len(msgr.Calls("unban")) != 1 {
		t.Fatalf("member not kicked: %+v", msgr.Calls())
	}
	if sessions.Len() != 0 {
		t.Fatalf("session left behind")
	}
}

func TestStrangerCannotSolve(t *testing.T) {
	m, msgr, _ := newModule(t, time.Minute, time.Minute)
	start(t, m)
	err := m.show(context.Background(), press(7, "cmd:captcha user_id:42"))
	if !errs.IsUser(err) {
		t.Fatalf("err = %v", err)
	}

	msgr.SetMember(8, tg.Member{Role: tg.RoleAdministrator, Perms: map[string]bool{commands.PermRestrictMembers: true}})
	if err := m.show(context.Background(), press(8, "cmd:captcha user_id:42")); err != nil {
		t.Fatalf("moderator rejected: %v", err)
	}
}

func TestJoinTimeoutKicks(t *testing.T) {
	m, msgr, sessions := newModule(t, 20*time.Millisecond, time.Minute)
	start(t, m)
	waitFor(t, func() bool { return len(msgr.Calls("unban")) == 1 })
	if sessions.Len() != 0 {
		t.Fatalf("session left behind")
	}
}

func TestActiveTimeoutOffersRetryOnce(t *testing.T) {
	m, msgr, sessions := newModule(t, time.Minute, 150*time.Millisecond)
	start(t, m)
	_ = m.show(context.Background(), press(memberID, "cmd:captcha user_id:42"))

	waitFor(t, func() bool {
		_, ok := msgr.Find("send", "Retry within")
		return ok
	})
	if len(msgr.Calls("ban")) != 0 {
		t.Fatalf("kicked on first timeout")
	}
	_, c := current(t, sessions)
	if c.Attempt != 2 {
		t.Fatalf("attempt = %d", c.Attempt)
	}

	waitFor(t, func() bool { return len(msgr.Calls("unban")) == 1 })
	if sessions.Len() != 0 {
		t.Fatalf("session left behind")
	}
}

func TestOptions(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	code := newCode()
	if !pattern.MatchString(code) {
		t.Fatalf("code = %q", code)
	}
	opts := options(code)
	if len(opts) != 4 {
		t.Fatalf("options = %v", opts)
	}
	seen := map[string]bool{}
	for _, o := range opts {
		if seen[o] || !pattern.MatchString(o) {
			t.Fatalf("options = %v", opts)
		}
		seen[o] = true
	}
	if !seen[code] {
		t.Fatalf("answer missing from %v", opts)
	}
}

func TestRenderPNG(t *testing.T) {
	data, err := Render("AB12CD")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() < 200 || b.Dy() < 60 {
		t.Fatalf("bounds = %v", b)
	}
}
