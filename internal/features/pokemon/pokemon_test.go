package pokemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/scheduler"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/internal/engine/enginetest"
	"github.com/m3rciful/kaoribot/internal/store"
)

var (
	mime   = Pokemon{ID: 122, Name: "mr-mime", Artwork: "https://img.example/122.png"}
	player = commands.User{ID: 7, FirstName: "Ash"}
)

type source struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (s *source) Random(context.Context) (Pokemon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return Pokemon{}, errors.New("pokeapi down")
	}
	return mime, nil
}

type sched struct {
	mu     sync.Mutex
	delays []time.Duration
	jobs   map[string]scheduler.Job
}

func (s *sched) After(name string, delay time.Duration, job scheduler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs == nil {
		s.jobs = map[string]scheduler.Job{}
	}
	s.jobs[name] = job
	s.delays = append(s.delays, delay)
	return nil
}

func (s *sched) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

type fixture struct {
	m     *Module
	msgr  *enginetest.Messenger
	store *store.Store
	sess  *state.Store
	src   *source
	sched *sched
}

func newFixture(t *testing.T, answer time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		msgr:  enginetest.NewMessenger(),
		store: enginetest.NewStore(t),
		sess:  state.NewStore(),
		src:   &source{},
		sched: &sched{},
	}
	t.Cleanup(f.sess.Close)
	f.m = New(Options{
		Messenger: f.msgr,
		Sessions:  f.sess,
		Store:     f.store,
		Source:    f.src,
		Scheduler: f.sched,
		Delays:    []time.Duration{20 * time.Minute, 40 * time.Minute},
		Answer:    answer,
	})
	f.m.pick = func(int) int { return 1 }
	return f
}

func (f *fixture) enable(t *testing.T, chats ...int64) {
	t.Helper()
	for _, id := range chats {
		if err := f.store.SetChatFlag(context.Background(), id, store.FlagPokemon, true); err != nil {
			t.Fatalf("enable %d: %v", id, err)
		}
	}
}

func guess(chatID int64, text string) *commands.Request {
	ev := &commands.Event{
		Kind:      commands.KindMessage,
		ChatID:    chatID,
		ChatType:  "supergroup",
		MessageID: 40,
		Sender:    player,
		Text:      text,
	}
	return &commands.Request{Event: ev, Input: commands.Parse(text, "/", "")}
}

func TestRoundsRotateAcrossChats(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.enable(t, -1, -2)

	for i := 0; i < 2; i++ {
		if err := f.m.round(ctx); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	photos := f.msgr.Calls("photo")
	if len(photos) != 2 || photos[0].ChatID != -2 || photos[1].ChatID != -1 {
		t.Fatalf("photos = %+v", photos)
	}
	if !photos[0].Spoiler || photos[0].Photo.URL != mime.Artwork {
		t.Fatalf("photo = %+v", photos[0])
	}
	if f.sess.Len() != 2 {
		t.Fatalf("sessions = %d", f.sess.Len())
	}
	if len(f.sched.delays) != 2 || f.sched.delays[0] != 40*time.Minute {
		t.Fatalf("reschedules = %v", f.sched.delays)
	}
}

func TestRoundSkipsBusyChat(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.enable(t, -1)
	for i := 0; i < 2; i++ {
		if err := f.m.round(ctx); err != nil {
			t.Fatalf("round: %v", err)
		}
	}
	if n := len(f.msgr.Calls("photo")); n != 1 {
		t.Fatalf("photos = %d", n)
	}
}

func TestRoundWithoutChats(t *testing.T) {
	f := newFixture(t, time.Minute)
	if err := f.m.round(context.Background()); err != nil {
		t.Fatalf("round: %v", err)
	}
	if f.src.calls != 0 || len(f.msgr.Calls()) != 0 {
		t.Fatalf("work done without chats")
	}
	if !f.sched.Pending(jobName) {
		t.Fatalf("next round not queued")
	}
}

func TestRoundRetriesSource(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.enable(t, -1)
	f.src.fails = 2
	if err := f.m.round(ctx); err != nil {
		t.Fatalf("round: %v", err)
	}
	if len(f.msgr.Calls("photo")) != 1 {
		t.Fatalf("no photo after retries")
	}

	g := newFixture(t, time.Minute)
	g.enable(t, -1)
	g.src.fails = fetchRetries
	if err := g.m.round(ctx); err == nil {
		t.Fatalf("expected error")
	}
	if g.sess.Len() != 0 {
		t.Fatalf("session left behind")
	}
	if !g.sched.Pending(jobName) {
		t.Fatalf("failed round not rescheduled")
	}
}

func TestGuess(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.enable(t, -1)
	if err := f.m.round(ctx); err != nil {
		t.Fatalf("round: %v", err)
	}

	if err := f.m.guess(ctx, guess(-1, "/guess pikachu")); err != nil {
		t.Fatalf("wrong guess: %v", err)
	}
	if _, ok := f.msgr.Find("send", "starts with M, 6 letters"); !ok {
		t.Fatalf("no hint: %+v", f.msgr.Calls("send"))
	}

	if err := f.m.guess(ctx, guess(-1, "/guess Mr. Mime")); err != nil {
		t.Fatalf("right guess: %v", err)
	}
	c, ok := f.msgr.Find("photo", "Correct")
	if !ok || !strings.Contains(c.Text, "Mr-Mime") || c.Spoiler {
		t.Fatalf("reveal = %+v", c)
	}
	u, err := f.store.User(ctx, player.ID)
	if err != nil || u.XP != 50 {
		t.Fatalf("xp = %d err=%v", u.XP, err)
	}
	if f.sess.Len() != 0 {
		t.Fatalf("round still open")
	}

	if err := f.m.guess(ctx, guess(-1, "/guess mrmime")); !errs.IsUser(err) {
		t.Fatalf("closed round err = %v", err)
	}
	if err := f.m.guess(ctx, guess(-1, "/guess")); !errs.IsUser(err) {
		t.Fatalf("empty guess err = %v", err)
	}
}

func TestPlainMessageGuess(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	if err := f.m.Listen(ctx, guess(-1, "mr mime").Event); err != nil {
		t.Fatalf("listen without round: %v", err)
	}
	f.enable(t, -1)
	if err := f.m.round(ctx); err != nil {
		t.Fatalf("round: %v", err)
	}
	f.msgr.Reset()

	if err := f.m.Listen(ctx, guess(-1, "what a nice day").Event); err != nil {
		t.Fatalf("chatter: %v", err)
	}
	if len(f.msgr.Calls()) != 0 || f.sess.Len() != 1 {
		t.Fatalf("chatter answered: %+v", f.msgr.Calls())
	}

	if err := f.m.Listen(ctx, guess(-1, "MR MIME!").Event); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, ok := f.msgr.Find("photo", "Correct"); !ok || f.sess.Len() != 0 {
		t.Fatalf("plain answer not taken: %+v", f.msgr.Calls())
	}
}

func TestUnansweredRoundRevealed(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	f.enable(t, -1)
	if err := f.m.round(context.Background()); err != nil {
		t.Fatalf("round: %v", err)
	}
	photo, _ := f.msgr.Last("photo")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, ok := f.msgr.Find("send", "Time Over"); ok {
			if !strings.Contains(c.Text, "Mr-Mime") || c.ReplyTo != photo.MessageID {
				t.Fatalf("reveal = %+v", c)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("round never expired")
}

func TestToggle(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	req := guess(-1, "/pokemon on")
	if err := f.m.toggle(ctx, req); err != nil {
		t.Fatalf("on: %v", err)
	}
	chat, _ := f.store.Chat(ctx, -1)
	if !chat.Pokemon || !f.sched.Pending(jobName) {
		t.Fatalf("chat = %+v pending=%v", chat, f.sched.Pending(jobName))
	}

	cb := &commands.Event{Kind: commands.KindCallback, ChatID: -1, ChatType: "supergroup", MessageID: 90, Sender: player, Text: "cmd:pokemon state:off"}
	req = &commands.Request{Event: cb, Input: commands.ParseCallback(cb.Text, "/", "")}
	if err := f.m.toggle(ctx, req); err != nil {
		t.Fatalf("off: %v", err)
	}
	if req.Answer() != "Saved" {
		t.Fatalf("answer = %q", req.Answer())
	}
	c, ok := f.msgr.Last("edit")
	if !ok || c.MessageID != 90 || !strings.Contains(c.Text, "Disabled") {
		t.Fatalf("edit = %+v", c)
	}

	if err := f.m.toggle(ctx, guess(-1, "/pokemon maybe")); !errs.IsUser(err) {
		t.Fatalf("bad value err = %v", err)
	}
}

func TestClientFetchesArtwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pokemon/122" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":122,"name":"mr-mime","sprites":{"front_default":"small.png",` +
			`"other":{"official-artwork":{"front_default":"art.png"}}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL+"/", 151)
	c.pick = func(int) int { return 121 }
	p, err := c.Random(context.Background())
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	if p.ID != 122 || p.Name != "mr-mime" || p.Artwork != "art.png" {
		t.Fatalf("pokemon = %+v", p)
	}
	if _, err := c.Get(context.Background(), 1); err == nil {
		t.Fatalf("expected error for missing species")
	}
}

func TestNames(t *testing.T) {
	if got := displayName("ho-oh"); got != "Ho-Oh" {
		t.Fatalf("display = %q", got)
	}
	if normalize("Farfetch'd") != normalize("farfetchd") {
		t.Fatalf("normalize mismatch")
	}
}
