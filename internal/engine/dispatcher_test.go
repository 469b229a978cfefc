package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/internal/engine/enginetest"
	"github.com/m3rciful/kaoribot/internal/store"
)

const (
	chatID = int64(-100500)
	alice  = int64(1)
	bob    = int64(2)
)

type harness struct {
	d     *Dispatcher
	reg   *tg.Registry
	msgr  *enginetest.Messenger
	users *enginetest.Users
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		reg:   tg.NewRegistry("/"),
		msgr:  enginetest.NewMessenger(),
		users: enginetest.NewUsers(),
		now:   time.Unix(1_700_000_000, 0),
	}
	h.d = New(Options{
		Commands:  h.reg,
		Messenger: h.msgr,
		Users:     h.users,
		Prefix:    "/",
		IsDev:     func(id int64) bool { return id == 99 },
		Now:       func() time.Time { return h.now },
	})
	return h
}

func (h *harness) register(cmd commands.Command) {
	h.reg.Register(cmd)
}

func message(from int64, text string) *commands.Event {
	return &commands.Event{
		Kind:      commands.KindMessage,
		ChatID:    chatID,
		ChatType:  "supergroup",
		MessageID: 10,
		Sender:    commands.User{ID: from, FirstName: "User"},
		Text:      text,
	}
}

func callback(from int64, data string) *commands.Event {
	ev := message(from, data)
	ev.Kind = commands.KindCallback
	ev.CallbackID = "cb-1"
	return ev
}

// replyingHandler answers "pong" through the messenger and counts calls.
func replyingHandler(m Messenger, calls *int) commands.Handler {
	return commands.HandlerFunc(func(ctx context.Context, req *commands.Request) error {
		*calls++
		return Reply(ctx, m, req.Event, "pong")
	})
}

func TestAliasDispatchesSameCommand(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: "ping", Aliases: []string{"p"}, Handler: replyingHandler(h.msgr, &calls)})

	_ = h.d.Handle(context.Background(), message(alice, "/ping"))
	_ = h.d.Handle(context.Background(), message(alice, "/P"))
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestChatOnlyRejectedInPrivate(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: "warn", ChatOnly: true, XP: 5, Handler: replyingHandler(h.msgr, &calls)})

	ev := message(alice, "/warn")
	ev.ChatType = commands.ChatPrivate
	_ = h.d.Handle(context.Background(), ev)

	if calls != 0 {
		t.Fatalf("handler ran in private chat")
	}
	if _, ok := h.msgr.Find("send", "Group Only Command"); !ok {
		t.Fatalf("no chat-only notice: %+v", h.msgr.Calls())
	}
	if xp := h.users.Get(alice).XP; xp != 0 {
		t.Fatalf("xp = %d", xp)
	}
}

func TestCallbackMarkerInTextIsPlain(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: "warn", XP: 5, Handler: replyingHandler(h.msgr, &calls)})
	var heard []string
	h.d.OnText(func(_ context.Context, ev *commands.Event) error {
		heard = append(heard, ev.Text)
		return nil
	})

	_ = h.d.Handle(context.Background(), message(alice, "cmd:warn"))
	_ = h.d.Handle(context.Background(), message(alice, "cmd:ttt r:0 c:0"))
	if calls != 0 {
		t.Fatalf("handler ran for chat text: %d", calls)
	}
	if xp := h.users.Get(alice).XP; xp != 0 {
		t.Fatalf("xp = %d", xp)
	}
	if len(heard) != 2 || len(h.msgr.Calls()) != 0 {
		t.Fatalf("heard = %v calls = %+v", heard, h.msgr.Calls())
	}

	_ = h.d.Handle(context.Background(), callback(alice, "cmd:warn"))
	if calls != 1 {
		t.Fatalf("callback not dispatched: %d", calls)
	}
}

func TestCommandForOtherBotIgnored(t *testing.T) {
	h := newHarness(t)
	h.d = New(Options{
		Commands:    h.reg,
		Messenger:   h.msgr,
		Users:       h.users,
		Prefix:      "/",
		BotUsername: "kaoribot",
		Now:         func() time.Time { return h.now },
	})
	calls := 0
	h.register(commands.Command{Name: "ping", Handler: replyingHandler(h.msgr, &calls)})

	_ = h.d.Handle(context.Background(), message(alice, "/ping@otherbot"))
	if calls != 0 {
		t.Fatalf("command for another bot ran")
	}
	_ = h.d.Handle(context.Background(), message(alice, "/ping@KaoriBot"))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestXPOnSuccessOnly(t *testing.T) {
	h := newHarness(t)
	h.register(commands.Command{Name: "ok", XP: 7, Handler: commands.HandlerFunc(func(context.Context, *commands.Request) error {
		return nil
	})})
	h.register(commands.Command{Name: "boom", XP: 7, Handler: commands.HandlerFunc(func(context.Context, *commands.Request) error {
		return errors.New("db down")
	})})

	_ = h.d.Handle(context.Background(), message(alice, "/ok"))
	if xp := h.users.Get(alice).XP; xp != 7 {
		t.Fatalf("xp after success = %d, want 7", xp)
	}
	_ = h.d.Handle(context.Background(), message(alice, "/boom"))
	if xp := h.users.Get(alice).XP; xp != 7 {
		t.Fatalf("xp after failure = %d, want 7", xp)
	}
}

func TestLevelUpAnnounced(t *testing.T) {
	h := newHarness(t)
	h.users.Put(store.User{ID: alice, XP: 50})
	h.register(commands.Command{Name: "ok", XP: 10, Handler: commands.HandlerFunc(func(context.Context, *commands.Request) error {
		return nil
	})})

	_ = h.d.Handle(context.Background(), message(alice, "/ok"))
	call, ok := h.msgr.Find("send", "Level Up")
	if !ok {
		t.Fatalf("no level up notice")
	}
	if !strings.Contains(call.Text, "Level</i>: 2") {
		t.Fatalf("text = %q", call.Text)
	}
}

func TestErrorBoundary(t *testing.T) {
	h := newHarness(t)
	h.register(commands.Command{Name: "user", Handler: commands.HandlerFunc(func(context.Context, *commands.Request) error {
		return errs.User("Provide a name")
	})})
	h.register(commands.Command{Name: "fail", Handler: commands.HandlerFunc(func(context.Context, *commands.Request) error {
		return errs.Wrap("load", errors.New("boom"))
	})})
	h.register(commands.Command{Name: "panic", Handler: commands.HandlerFunc(func(context.Context, *commands.Request) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})})

	if err := h.d.Handle(context.Background(), message(alice, "/user")); err != nil {
		t.Fatalf("user error escaped: %v", err)
	}
	if _, ok := h.msgr.Find("send", "Provide a name"); !ok {
		t.Fatalf("user message not shown")
	}
	if err := h.d.Handle(context.Background(), message(alice, "/fail")); err != nil {
		t.Fatalf("error escaped: %v", err)
	}
	if err := h.d.Handle(context.Background(), message(alice, "/panic")); err != nil {
		t.Fatalf("panic escaped: %v", err)
	}
	generic := 0
	for _, c := range h.msgr.Calls("send") {
		if strings.Contains(c.Text, "Something went wrong") {
			generic++
		}
		if strings.Contains(c.Text, "boom") {
			t.Fatalf("internal error leaked: %q", c.Text)
		}
	}
	if generic != 2 {
		t.Fatalf("generic notices = %d, want 2", generic)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	_ = h.d.Handle(context.Background(), message(alice, "/nope"))
	if _, ok := h.msgr.Find("send", "Unknown Command"); !ok {
		t.Fatalf("no unknown notice")
	}
}

func TestAccessOrder(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: "dev", DevOnly: true, Handler: replyingHandler(h.msgr, &calls)})
	h.register(commands.Command{Name: "mod", AdminOnly: true, Permissions: []string{commands.PermRestrictMembers}, Handler: replyingHandler(h.msgr, &calls)})
	h.register(commands.Command{Name: "off", Handler: replyingHandler(h.msgr, &calls)})
	_ = h.users.SetCommandState(context.Background(), "off", false, "maintenance")

	cases := []struct {
		name string
		from int64
		text string
		want string
	}{
		{"disabled", alice, "/off", "currently disabled"},
		{"dev only", alice, "/dev", "Developer Only"},
		{"admin only", alice, "/mod", "Admin Only"},
		{"missing permission", bob, "/mod", "Missing Permission: can_restrict_members"},
	}
	h.msgr.SetMember(bob, tg.Member{Role: tg.RoleAdministrator, Perms: map[string]bool{}})
	for _, tc := range cases {
		h.msgr.Reset()
		_ = h.d.Handle(context.Background(), message(tc.from, tc.text))
		if _, ok := h.msgr.Find("send", tc.want); !ok {
			t.Fatalf("%s: want %q in %+v", tc.name, tc.want, h.msgr.Calls())
		}
	}
	if calls != 0 {
		t.Fatalf("handler ran %d times", calls)
	}

	h.msgr.SetMember(bob, tg.Member{Role: tg.RoleCreator})
	_ = h.d.Handle(context.Background(), message(bob, "/mod"))
	_ = h.d.Handle(context.Background(), message(99, "/dev"))
	if calls != 2 {
		t.Fatalf("allowed calls = %d, want 2", calls)
	}
}

func TestBannedSenderRejected(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: "ping", Handler: replyingHandler(h.msgr, &calls)})
	h.users.Put(store.User{ID: alice, Banned: true, BanReason: "spam", BannedAt: h.now.Add(-time.Hour).Unix()})

	_ = h.d.Handle(context.Background(), message(alice, "/ping"))
	call, ok := h.msgr.Find("send", "Access Restricted")
	if !ok || calls != 0 {
		t.Fatalf("banned sender not rejected: %+v", h.msgr.Calls())
	}
	if !strings.Contains(call.Text, "spam") || !strings.Contains(call.Text, "1h") {
		t.Fatalf("text = %q", call.Text)
	}
}

func TestCallbackDenialAnsweredAsAlert(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: "verify", ChatOnly: true, Handler: replyingHandler(h.msgr, &calls)})

	ev := callback(alice, "cmd:verify val:AB")
	ev.ChatType = commands.ChatPrivate
	_ = h.d.Handle(context.Background(), ev)

	answers := h.msgr.Calls("answer")
	if len(answers) != 1 || !answers[0].Alert || !strings.Contains(answers[0].Text, "Group Only Command") {
		t.Fatalf("answers = %+v", answers)
	}
	if strings.Contains(answers[0].Text, "<i>") {
		t.Fatalf("alert kept html: %q", answers[0].Text)
	}
	if len(h.msgr.Calls("send")) != 0 {
		t.Fatalf("chat message sent for a callback denial")
	}
}

func TestCallbackAcknowledgedWithToast(t *testing.T) {
	h := newHarness(t)
	h.register(commands.Command{Name: "tap", Handler: commands.HandlerFunc(func(_ context.Context, req *commands.Request) error {
		if req.Input.Flags["n"] != "3" {
			t.Errorf("flags = %v", req.Input.Flags)
		}
		req.SetAnswer("Saved")
		return nil
	})})
	_ = h.d.Handle(context.Background(), callback(alice, "cmd:tap n:3"))
	answers := h.msgr.Calls("answer")
	if len(answers) != 1 || answers[0].Text != "Saved" || answers[0].Alert {
		t.Fatalf("answers = %+v", answers)
	}
}

func TestAFKWelcomeBackPrecedesHandler(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: "ping", Handler: replyingHandler(h.msgr, &calls)})
	h.users.Put(store.User{ID: alice, AFK: true, AFKSince: h.now.Add(-90 * time.Second).Unix()})
	_ = h.users.AddMention(context.Background(), alice, chatID, 77)

	_ = h.d.Handle(context.Background(), message(alice, "/ping"))

	sends := h.msgr.Calls("send")
	if len(sends) != 2 {
		t.Fatalf("sends = %+v", sends)
	}
	if !strings.Contains(sends[0].Text, "Welcome Back") || sends[1].Text != "pong" {
		t.Fatalf("order = %q, %q", sends[0].Text, sends[1].Text)
	}
	if !strings.Contains(sends[0].Text, "1m 30s") || !strings.Contains(sends[0].Text, "https://t.me/c/500/77") {
		t.Fatalf("welcome = %q", sends[0].Text)
	}
	if h.users.Get(alice).AFK {
		t.Fatalf("afk not cleared")
	}
}

func TestAFKCommandDoesNotWelcomeBack(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.register(commands.Command{Name: AFKCommand, Handler: replyingHandler(h.msgr, &calls)})
	h.users.Put(store.User{ID: alice, AFK: true, AFKSince: h.now.Unix()})

	_ = h.d.Handle(context.Background(), message(alice, "/afk brb"))
	if _, ok := h.msgr.Find("send", "Welcome Back"); ok {
		t.Fatalf("welcome back sent for the afk command")
	}
	if !h.users.Get(alice).AFK {
		t.Fatalf("afk cleared by the afk command")
	}
}

func TestMentionedAFKUserNoticed(t *testing.T) {
	h := newHarness(t)
	h.users.Put(store.User{ID: bob, Username: "bob", AFK: true, AFKReason: "sleeping"})
	listened := 0
	h.d.OnText(func(context.Context, *commands.Event) error {
		listened++
		return nil
	})

	ev := message(alice, "hey @bob")
	ev.Usernames = []string{"bob"}
	ev.ReplyTo = &commands.User{ID: bob, FirstName: "Bob"}
	_ = h.d.Handle(context.Background(), ev)

	notices := 0
	for _, c := range h.msgr.Calls("send") {
		if strings.Contains(c.Text, "User AFK") {
			notices++
			if !strings.Contains(c.Text, "sleeping") {
				t.Fatalf("text = %q", c.Text)
			}
		}
	}
	if notices != 1 {
		t.Fatalf("notices = %d, want 1", notices)
	}
	if m := h.users.Mentions(bob); len(m) != 1 || m[0].MessageID != 10 {
		t.Fatalf("mentions = %+v", m)
	}
	if listened != 1 {
		t.Fatalf("listener calls = %d", listened)
	}
}

func TestSelfMentionIgnored(t *testing.T) {
	h := newHarness(t)
	h.users.Put(store.User{ID: alice, AFK: true})
	ev := message(alice, "/afk")
	ev.ReplyTo = &commands.User{ID: alice}
	h.register(commands.Command{Name: AFKCommand, Handler: commands.HandlerFunc(func(context.Context, *commands.Request) error { return nil })})
	_ = h.d.Handle(context.Background(), ev)
	if _, ok := h.msgr.Find("send", "User AFK"); ok {
		t.Fatalf("sender noticed about themselves")
	}
}

func TestMemberHooks(t *testing.T) {
	h := newHarness(t)
	var joined, left int64
	h.d.OnJoin(func(_ context.Context, ev *commands.Event) error {
		joined = ev.Member.ID
		return nil
	})
	h.d.OnLeave(func(_ context.Context, ev *commands.Event) error {
		left = ev.Member.ID
		panic("hook failure")
	})
	_ = h.d.Handle(context.Background(), &commands.Event{Kind: commands.KindJoin, ChatID: chatID, Member: &commands.User{ID: bob}})
	if err := h.d.Handle(context.Background(), &commands.Event{Kind: commands.KindLeave, ChatID: chatID, Member: &commands.User{ID: alice}}); err != nil {
		t.Fatalf("hook panic escaped: %v", err)
	}
	if joined != bob || left != alice {
		t.Fatalf("joined=%d left=%d", joined, left)
	}
}

func TestUsernameRemembered(t *testing.T) {
	h := newHarness(t)
	ev := message(alice, "hello")
	ev.Sender.Username = "Alice"
	_ = h.d.Handle(context.Background(), ev)
	if got := h.users.Get(alice).Username; got != "alice" {
		t.Fatalf("username = %q", got)
	}
}

func TestPlain(t *testing.T) {
	got := Plain(card("Access Denied", "❌", "<i>Admin</i> &amp; Only"))
	if got != "Access Denied ❌\nAdmin & Only" {
		t.Fatalf("plain = %q", got)
	}
}
