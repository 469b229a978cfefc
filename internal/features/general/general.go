// Package general provides the everyday commands: start, help, rank,
// profiles and the XP leaderboard.
package general

import (
	"cmp"
	"context"
	"sort"
	"strings"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/engine"
	"github.com/m3rciful/kaoribot/internal/rank"
	"github.com/m3rciful/kaoribot/internal/store"
)

const (
	leaderboardSize = 10
	progressCells   = 10
)

// Catalog exposes the registered commands. *telegram.Registry implements it.
type Catalog interface {
	List(visibleOnly bool) []*commands.Command
	Resolve(name string) (*commands.Command, bool)
	Prefix() string
}

// Store reads user standings.
type Store interface {
	engine.UsernameResolver
	User(ctx context.Context, id int64) (store.User, error)
	TopXP(ctx context.Context, limit int) ([]store.User, error)
}

// Options configure the module.
type Options struct {
	Messenger engine.Messenger
	Catalog   Catalog
	Store     Store
	// BotUsername builds the "add to group" link; it is read per call
	// because it is known only after the bot connects.
	BotUsername func() string
}

// Module provides the general commands.
type Module struct {
	messenger   engine.Messenger
	catalog     Catalog
	store       Store
	botUsername func() string
}

// New builds the module.
func New(opts Options) *Module {
	m := &Module{
		messenger:   opts.Messenger,
		catalog:     opts.Catalog,
		store:       opts.Store,
		botUsername: opts.BotUsername,
	}
	if m.botUsername == nil {
		m.botUsername = func() string { return "" }
	}
	return m
}

// Commands returns the general commands.
func (m *Module) Commands() []commands.Command {
	return []commands.Command{
		{
			Name: "start", Category: "General",
			Description: "Say hello",
			Handler:     commands.HandlerFunc(m.start),
		},
		{
			Name: "help", Aliases: []string{"commands", "menu"}, Category: "General", Usage: "[command]",
			Description: "List commands or describe one",
			Handler:     commands.HandlerFunc(m.help),
		},
		{
			Name: "rank", Aliases: []string{"level"}, Category: "General", Usage: "[reply | @user]",
			Description: "Show level and rank",
			XP:          1,
			Handler:     commands.HandlerFunc(m.rank),
		},
		{
			Name: "profile", Aliases: []string{"whois"}, Category: "General", Usage: "[reply | @user]",
			Description: "Show a user's details and bio",
			Handler:     commands.HandlerFunc(m.profile),
		},
		{
			Name: "leaderboard", Aliases: []string{"lb", "top"}, Category: "General",
			Description: "Show the XP leaderboard",
			XP:          1,
			Handler:     commands.HandlerFunc(m.leaderboard),
		},
	}
}

func (m *Module) start(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	text := "👋 <b>Hello, I'm Kaori!</b>\n\n" +
		"I keep groups tidy, verify newcomers and run a few games.\n" +
		"Use " + format.Escape(m.catalog.Prefix()) + "help to see what I can do."
	buttons := []keyboard.Button{keyboard.Cmd("🤖 Commands List", "help")}
	if name := m.botUsername(); name != "" {
		buttons = append(buttons, keyboard.Link("➕ Add to Group", "https://t.me/"+name+"?startgroup=true"))
	}
	_, err := engine.ReplyKeyboard(ctx, m.messenger, ev, text, keyboard.Row(buttons...))
	return err
}

func (m *Module) help(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	prefix := format.Escape(m.catalog.Prefix())
	if arg := strings.ToLower(strings.TrimSpace(req.Input.Text)); arg != "" {
		cmd, ok := m.catalog.Resolve(arg)
		if !ok || cmd.Hidden {
			return errs.User(engine.Card("Unknown Command", "❌", "Use "+prefix+"help to see all available commands"))
		}
		return engine.Reply(ctx, m.messenger, ev, describe(prefix, cmd))
	}

	groups := map[string][]string{}
	for _, cmd := range m.catalog.List(true) {
		cat := cmd.Category
		if cat == "" {
			cat = "Misc"
		}
		groups[cat] = append(groups[cat], "<code>"+format.Escape(cmd.Name)+"</code>")
	}
	cats := make([]string, 0, len(groups))
	for cat := range groups {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	c := ui.NewCard("Available Commands", "🛠️")
	for _, cat := range cats {
		c.Section(format.Escape(cat), "").Text(strings.Join(groups[cat], ", "))
	}
	c.Raw("\nUse <code>" + prefix + "help [command]</code> for details.")
	return engine.Reply(ctx, m.messenger, ev, c.String())
}

func describe(prefix string, cmd *commands.Command) string {
	c := ui.NewCard("Command Info", "📖").
		Line("<i>Command</i>: <code>%s</code>", format.Escape(cmd.Name))
	if len(cmd.Aliases) > 0 {
		c.Line("<i>Aliases</i>: %s", format.Escape(strings.Join(cmd.Aliases, ", ")))
	}
	c.Line("<i>Category</i>: %s", format.Escape(cmd.Category))
	c.Line("<i>Usage</i>: %s%s %s", prefix, format.Escape(cmd.Name), format.Escape(cmd.Usage))
	var access []string
	if cmd.ChatOnly {
		access = append(access, "groups only")
	}
	if cmd.AdminOnly {
		access = append(access, "admins")
	}
	if cmd.DevOnly {
		access = append(access, "developers")
	}
	if len(access) > 0 {
		c.Line("<i>Access</i>: %s", strings.Join(access, ", "))
	}
	desc := cmd.Description
	if desc == "" {
		desc = "No description available."
	}
	c.Line("<i>Description</i>: %s", format.Escape(desc))
	return c.String()
}

func (m *Module) rank(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	subject := ev.Sender
	if targets := engine.Targets(ctx, m.store, ev); len(targets) > 0 {
		subject = targets[0]
	}
	u, err := m.store.User(ctx, subject.ID)
	if err != nil {
		return err
	}
	info := rank.ForXP(u.XP)
	c := ui.NewCard("Rank", info.Tier.Emoji).
		Line("<i>User</i>: %s", engine.MentionUser(subject)).
		Line("<i>Level</i>: %d", info.Level).
		Line("<i>XP</i>: %d", info.XP).
		Line("<i>Progress</i>: %s", progress(info)).
		Line("<i>Rank</i>: %s %s", info.Tier.Name, info.Tier.Emoji).
		Line("<i>Next Rank</i>: %s %s", info.NextTier.Name, info.NextTier.Emoji).
		Line("<i>XP Needed</i>: %d", info.Remaining())
	return engine.Reply(ctx, m.messenger, ev, c.String())
}

func (m *Module) profile(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	subjects := engine.Targets(ctx, m.store, ev)
	if len(subjects) == 0 {
		subjects = []commands.User{ev.Sender}
	}
	for _, subject := range subjects {
		u, err := m.store.User(ctx, subject.ID)
		if err != nil {
			return err
		}
		username := cmp.Or(subject.Username, u.Username)
		handle := "N/A"
		if username != "" {
			handle = "@" + format.Escape(username)
		}
		bio, err := m.messenger.Bio(ctx, subject.ID)
		if err != nil || bio == "" {
			bio = "N/A"
		}
		c := ui.NewCard("User Information", "ℹ️").
			Line("<i>Name</i>: %s", engine.MentionUser(subject)).
			Line("<i>User ID</i>: <code>%d</code>", subject.ID).
			Line("<i>Username</i>: %s", handle).
			Line("<i>XP</i>: %d (Lv. %d)", u.XP, rank.ForXP(u.XP).Level).
			Line("<i>Bio</i>: %s", format.Escape(bio))
		if err := engine.Reply(ctx, m.messenger, ev, c.String()); err != nil {
			return err
		}
	}
	return nil
}

// progress renders the share of the current level completed as a bar.
func progress(info rank.Info) string {
	span := info.Target - info.Floor
	filled := 0
	if span > 0 {
		filled = int((info.XP - info.Floor) * progressCells / span)
	}
	filled = min(max(filled, 0), progressCells)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", progressCells-filled)
}

func (m *Module) leaderboard(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	top, err := m.store.TopXP(ctx, leaderboardSize)
	if err != nil {
		return err
	}
	if len(top) == 0 {
		return engine.Reply(ctx, m.messenger, ev, engine.Card("No Data", "ℹ️", "No user has earned XP yet"))
	}
	medals := []string{"🥇", "🥈", "🥉"}
	c := ui.NewCard("XP Leaderboard", "🏆")
	for i, u := range top {
		medal := "👤"
		if i < len(medals) {
			medal = medals[i]
		}
		info := rank.ForXP(u.XP)
		c.Line("%s #%d %s: %d XP, %s %s (Lv. %d)", medal, i+1,
			format.Mention(u.ID, u.Username), u.XP, info.Tier.Emoji, info.Tier.Name, info.Level)
	}
	c.Line("Use %srank to check your standing", format.Escape(m.catalog.Prefix()))
	return engine.Reply(ctx, m.messenger, ev, c.String())
}
