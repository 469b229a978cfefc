package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	coredatabase "github.com/m3rciful/kaoribot/core/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := coredatabase.Config{
		Driver: coredatabase.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "store.db"),
	}
	db, err := coredatabase.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := coredatabase.RunMigrations(db, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

// newPooledStore opens a store whose transactions run on several
// connections at once, with writers waiting on each other instead of failing.
func newPooledStore(t *testing.T, conns int) *Store {
	t.Helper()
	cfg := coredatabase.Config{
		Driver: coredatabase.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "pooled.db") + "?_pragma=busy_timeout(10000)",
	}
	db, err := coredatabase.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := coredatabase.RunMigrations(db, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	return New(db)
}

func TestUserDefaults(t *testing.T) {
	s := newTestStore(t)
	u, err := s.User(context.Background(), 10)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if u.ID != 10 || u.XP != 0 || u.AFK || u.Banned {
		t.Fatalf("user = %+v", u)
	}
}

func TestAddXPReturnsBeforeAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	before, after, err := s.AddXP(ctx, 1, 5)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if before != 0 || after != 5 {
		t.Fatalf("before=%d after=%d", before, after)
	}
	before, after, err = s.AddXP(ctx, 1, -20)
	if err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if before != 5 || after != 0 {
		t.Fatalf("before=%d after=%d", before, after)
	}
}

func TestAddXPConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.AddXP(ctx, 7, 3); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()
	u, err := s.User(ctx, 7)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if u.XP != 60 {
		t.Fatalf("xp = %d, want 60", u.XP)
	}
}

func TestXPUpdatesAcrossConnections(t *testing.T) {
	s := newPooledStore(t, 4)
	ctx := context.Background()
	if _, _, err := s.AddXP(ctx, 1, 10); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, _, err := s.AddXP(ctx, 2, 5); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.TransferXP(ctx, 1, 3, 2); err != nil {
				t.Errorf("transfer: %v", err)
			}
		}()
	}
	wg.Wait()

	giver, _ := s.User(ctx, 1)
	gainer, _ := s.User(ctx, 2)
	taker, _ := s.User(ctx, 3)
	if gainer.XP != 80 {
		t.Fatalf("xp = %d, want 80", gainer.XP)
	}
	if giver.XP != 0 || taker.XP != 10 {
		t.Fatalf("giver=%d taker=%d, want 0 and 10", giver.XP, taker.XP)
	}
}

func TestTransferXPCappedByBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, _, err := s.AddXP(ctx, 1, 2); err != nil {
		t.Fatalf("seed: %v", err)
	}
	moved, err := s.TransferXP(ctx, 1, 2, 3)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d", moved)
	}
	loser, _ := s.User(ctx, 1)
	winner, _ := s.User(ctx, 2)
	if loser.XP != 0 || winner.XP != 2 {
		t.Fatalf("loser=%d winner=%d", loser.XP, winner.XP)
	}
	moved, err = s.TransferXP(ctx, 1, 2, 3)
	if err != nil || moved != 0 {
		t.Fatalf("empty transfer moved=%d err=%v", moved, err)
	}
}

func TestTopXP(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for id, xp := range map[int64]int64{1: 10, 2: 30, 3: 20} {
		if _, _, err := s.AddXP(ctx, id, xp); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	top, err := s.TopXP(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].ID != 2 || top[1].ID != 3 {
		t.Fatalf("top = %+v", top)
	}
}

func TestUsernameLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SeenUser(ctx, 5, "Kaori"); err != nil {
		t.Fatalf("seen: %v", err)
	}
	u, err := s.UserByUsername(ctx, "@kaori")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.ID != 5 {
		t.Fatalf("id = %d", u.ID)
	}
	if _, err := s.UserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestAFKLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	since := time.Unix(1_700_000_000, 0)
	if err := s.SetAFK(ctx, 3, "lunch", since); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.AddMention(ctx, 3, -100123, 44); err != nil {
		t.Fatalf("mention: %v", err)
	}
	if err := s.AddMention(ctx, 3, -100123, 45); err != nil {
		t.Fatalf("mention: %v", err)
	}
	u, _ := s.User(ctx, 3)
	if !u.AFK || u.AFKReason != "lunch" || u.AFKSince != since.Unix() {
		t.Fatalf("user = %+v", u)
	}
	mentions, err := s.ClearAFK(ctx, 3)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(mentions) != 2 || mentions[0].MessageID != 44 || mentions[1].MessageID != 45 {
		t.Fatalf("mentions = %+v", mentions)
	}
	u, _ = s.User(ctx, 3)
	if u.AFK {
		t.Fatalf("afk still set")
	}
	mentions, _ = s.ClearAFK(ctx, 3)
	if len(mentions) != 0 {
		t.Fatalf("mentions kept: %+v", mentions)
	}
}

func TestBotBan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetBan(ctx, 9, true, "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	u, _ := s.User(ctx, 9)
	if !u.Banned || u.BanReason != "spam" || u.BannedAt == 0 {
		t.Fatalf("user = %+v", u)
	}
	if err := s.SetBan(ctx, 9, false, ""); err != nil {
		t.Fatalf("unban: %v", err)
	}
	u, _ = s.User(ctx, 9)
	if u.Banned || u.BanReason != "" {
		t.Fatalf("user = %+v", u)
	}
}

func TestChatFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetChatFlag(ctx, -1, FlagCaptcha, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetChatFlag(ctx, -2, FlagPokemon, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	c, err := s.Chat(ctx, -1)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !c.Captcha || c.Events || c.Pokemon {
		t.Fatalf("chat = %+v", c)
	}
	ids, err := s.ChatsWith(ctx, FlagPokemon)
	if err != nil {
		t.Fatalf("with: %v", err)
	}
	if len(ids) != 1 || ids[0] != -2 {
		t.Fatalf("ids = %v", ids)
	}
	if err := s.SetChatFlag(ctx, -1, "drop table", true); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestWarnsCapAndRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var count int
	var err error
	for i, reason := range []string{"a", "b", "c", "d"} {
		count, err = s.AddWarn(ctx, Warning{ChatID: -1, UserID: 2, UserName: "Bob", Reason: reason, ByUserID: 1})
		if err != nil {
			t.Fatalf("warn %d: %v", i, err)
		}
	}
	if count != MaxWarns {
		t.Fatalf("count = %d", count)
	}
	w, err := s.Warn(ctx, -1, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.Count != 3 || len(w.Reasons) != 4 || w.UserName != "Bob" {
		t.Fatalf("warn = %+v", w)
	}
	left, err := s.RemoveWarn(ctx, -1, 2, false)
	if err != nil || left != 2 {
		t.Fatalf("remove left=%d err=%v", left, err)
	}
	w, _ = s.Warn(ctx, -1, 2)
	if len(w.Reasons) != 3 || w.Reasons[2] != "c" {
		t.Fatalf("reasons = %v", w.Reasons)
	}
	if _, err := s.RemoveWarn(ctx, -1, 2, true); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if _, err := s.Warn(ctx, -1, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.RemoveWarn(ctx, -1, 2, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := s.ResetWarns(ctx, -1, 2); err != nil {
		t.Fatalf("reset: %v", err)
	}
}

func TestWarnsPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for uid := int64(1); uid <= 5; uid++ {
		if _, err := s.AddWarn(ctx, Warning{ChatID: -7, UserID: uid}); err != nil {
			t.Fatalf("warn: %v", err)
		}
	}
	page, total, err := s.Warns(ctx, -7, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(page) != 2 || page[0].UserID != 3 {
		t.Fatalf("total=%d page=%+v", total, page)
	}
}

func TestChatBans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.AddChatBan(ctx, ChatBan{ChatID: -1, UserID: 4, UserName: "Eve", Reason: "spam", ByUserID: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	bans, err := s.ChatBans(ctx, -1)
	if err != nil || len(bans) != 1 || bans[0].Reason != "spam" {
		t.Fatalf("bans=%+v err=%v", bans, err)
	}
	ok, err := s.RemoveChatBan(ctx, -1, 4)
	if err != nil || !ok {
		t.Fatalf("remove ok=%v err=%v", ok, err)
	}
	ok, _ = s.RemoveChatBan(ctx, -1, 4)
	if ok {
		t.Fatalf("second remove reported an entry")
	}
}

func TestCommandState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	st, err := s.CommandState(ctx, "ping")
	if err != nil || !st.Enabled {
		t.Fatalf("state=%+v err=%v", st, err)
	}
	if err := s.SetCommandState(ctx, "ping", false, "maintenance"); err != nil {
		t.Fatalf("set: %v", err)
	}
	st, _ = s.CommandState(ctx, "ping")
	if st.Enabled || st.Reason != "maintenance" {
		t.Fatalf("state = %+v", st)
	}
}

func TestCommandSeederKeepsState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetCommandState(ctx, "warn", false, "x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	seed := CommandSeeder(func() []string { return []string{"warn", "ban"} })
	if err := seed.Seed(ctx, s.db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	warn, _ := s.CommandState(ctx, "warn")
	ban, _ := s.CommandState(ctx, "ban")
	if warn.Enabled || !ban.Enabled {
		t.Fatalf("warn=%+v ban=%+v", warn, ban)
	}
}
