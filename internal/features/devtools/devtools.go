// Package devtools holds developer-only controls: global command toggles,
// bot-wide bans, a view of live interactions and the running build.
package devtools

import (
	"context"
	"sort"
	"strings"

	"github.com/m3rciful/kaoribot/core/buildinfo"
	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/state"
	"github.com/m3rciful/kaoribot/core/telegram/ui"
	"github.com/m3rciful/kaoribot/internal/engine"
)

const toggleCommand = "cmdtoggle"

// Resolver finds commands by name or alias.
type Resolver interface {
	Resolve(name string) (*commands.Command, bool)
}

// Store persists command toggles and bot-wide bans.
type Store interface {
	engine.UsernameResolver
	SetCommandState(ctx context.Context, name string, enabled bool, reason string) error
	SetBan(ctx context.Context, id int64, banned bool, reason string) error
}

// Options configure the module.
type Options struct {
	Messenger engine.Messenger
	Commands  Resolver
	Store     Store
	// Sessions is optional; without it /sessions reports nothing.
	Sessions *state.Store
	IsDev    func(userID int64) bool
}

// Module provides the developer commands.
type Module struct {
	messenger engine.Messenger
	commands  Resolver
	store     Store
	sessions  *state.Store
	isDev     func(int64) bool
}

// New builds the module.
func New(opts Options) *Module {
	m := &Module{
		messenger: opts.Messenger,
		commands:  opts.Commands,
		store:     opts.Store,
		sessions:  opts.Sessions,
		isDev:     opts.IsDev,
	}
	if m.isDev == nil {
		m.isDev = func(int64) bool { return false }
	}
	return m
}

// Commands returns the developer commands.
func (m *Module) Commands() []commands.Command {
	return []commands.Command{
		{
			Name: toggleCommand, Category: "Developer", Usage: "name:<command> on|off [reason]",
			Description: "Enable or disable a command everywhere",
			DevOnly:     true, Hidden: true,
			Handler: commands.HandlerFunc(m.toggle),
		},
		{
			Name: "botban", Category: "Developer", Usage: "[reply | @user] [reason]",
			Description: "Block a user from every command",
			DevOnly:     true, Hidden: true,
			Handler: commands.HandlerFunc(m.ban),
		},
		{
			Name: "botunban", Category: "Developer", Usage: "[reply | @user]",
			Description: "Lift a bot-wide block",
			DevOnly:     true, Hidden: true,
			Handler: commands.HandlerFunc(m.unban),
		},
		{
			Name: "sessions", Category: "Developer",
			Description: "Count live interactions per feature",
			DevOnly:     true, Hidden: true,
			Handler: commands.HandlerFunc(m.listSessions),
		},
		{
			Name: "version", Category: "Developer",
			Description: "Show the running build",
			DevOnly:     true, Hidden: true,
			Handler: commands.HandlerFunc(m.version),
		},
	}
}

func (m *Module) toggle(ctx context.Context, req *commands.Request) error {
	ev, in := req.Event, req.Input
	name, _ := in.Flag("name")
	args := in.Args()
	if name == "" || len(args) == 0 {
		return errs.User(engine.Card("Invalid Usage", "⚠️", "Usage: cmdtoggle name:&lt;command&gt; on|off [reason]"))
	}
	on, ok := commands.ParseSwitch(args[0])
	if !ok {
		return errs.User(engine.Card("Invalid Usage", "⚠️", "Expected on or off, got "+format.Escape(args[0])))
	}
	cmd, found := m.commands.Resolve(name)
	if !found {
		return errs.User(engine.Card("Unknown Command", "❌", "No command named "+format.Escape(name)))
	}
	if cmd.Name == toggleCommand && !on {
		return errs.User(engine.Card("Action Denied", "🚫", "This command cannot disable itself"))
	}
	reason := strings.Join(args[1:], " ")
	if on {
		reason = ""
	}
	if err := m.store.SetCommandState(ctx, cmd.Name, on, reason); err != nil {
		return errs.Wrap("set command state", err)
	}

	title, icon, status := "Command Enabled", "✅", "on"
	if !on {
		title, icon, status = "Command Disabled", "⛔", "off"
	}
	c := ui.NewCard(title, icon).
		Line("<i>Command</i>: <code>%s</code>", format.Escape(cmd.Name)).
		Line("<i>Status</i>: %s", status)
	if reason != "" {
		c.Line("<i>Reason</i>: %s", format.Escape(reason))
	}
	return engine.Reply(ctx, m.messenger, ev, c.String())
}

func (m *Module) ban(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	targets := engine.Targets(ctx, m.store, ev)
	if len(targets) == 0 {
		return errs.User(engine.Card("No Target", "⚠️", "Reply to a user or mention them"))
	}
	reason := strings.TrimSpace(engine.StripMentions(req.Input.Text))
	if reason == "" {
		reason = "Not specified"
	}
	c := ui.NewCard("Bot Ban", "🚫")
	for _, u := range targets {
		if m.isDev(u.ID) {
			c.Line("%s: developers cannot be banned", engine.MentionUser(u))
			continue
		}
		if err := m.store.SetBan(ctx, u.ID, true, reason); err != nil {
			return errs.Wrap("set ban", err)
		}
		c.Line("%s: banned", engine.MentionUser(u))
	}
	c.Line("<i>Reason</i>: %s", format.Escape(reason))
	return engine.Reply(ctx, m.messenger, ev, c.String())
}

func (m *Module) unban(ctx context.Context, req *commands.Request) error {
	ev := req.Event
	targets := engine.Targets(ctx, m.store, ev)
	if len(targets) == 0 {
		return errs.User(engine.Card("No Target", "⚠️", "Reply to a user or mention them"))
	}
	c := ui.NewCard("Bot Unban", "✅")
	for _, u := range targets {
		if err := m.store.SetBan(ctx, u.ID, false, ""); err != nil {
			return errs.Wrap("clear ban", err)
		}
		c.Line("%s: unbanned", engine.MentionUser(u))
	}
	return engine.Reply(ctx, m.messenger, ev, c.String())
}

func (m *Module) listSessions(ctx context.Context, req *commands.Request) error {
	var counts map[string]int
	if m.sessions != nil {
		counts = m.sessions.Counts()
	}
	if len(counts) == 0 {
		return engine.Reply(ctx, m.messenger, req.Event, engine.Card("Sessions", "🗂", "No live interactions"))
	}
	features := make([]string, 0, len(counts))
	for f := range counts {
		features = append(features, f)
	}
	sort.Strings(features)
	c := ui.NewCard("Sessions", "🗂")
	for _, f := range features {
		c.Field("<code>"+format.Escape(f)+"</code>", counts[f])
	}
	return engine.Reply(ctx, m.messenger, req.Event, c.String())
}

func (m *Module) version(ctx context.Context, req *commands.Request) error {
	b := buildinfo.Read()
	commit := b.Commit
	if b.Modified {
		commit += " (dirty)"
	}
	c := ui.NewCard("Build", "🛠").
		Line("<i>Version</i>: <code>%s</code>", format.Escape(b.Version)).
		Line("<i>Commit</i>: <code>%s</code>", format.Escape(commit)).
		Line("<i>Go</i>: %s", b.GoVersion)
	if b.Date != "" {
		c.Line("<i>Built</i>: %s", format.Escape(b.Date))
	}
	return engine.Reply(ctx, m.messenger, req.Event, c.String())
}
