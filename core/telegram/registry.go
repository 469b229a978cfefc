package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry maps command names and aliases to command definitions.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*commands.Command
	aliases  map[string]string
	prefix   string
}

// NewRegistry creates an empty Registry. prefix is stripped by Resolve.
func NewRegistry(prefix string) *Registry {
	if prefix == "" {
		prefix = "/"
	}
	return &Registry{
		commands: make(map[string]*commands.Command),
		aliases:  make(map[string]string),
		prefix:   prefix,
	}
}

// Register adds cmd under its lower-cased name and aliases. A duplicate name
// replaces the previous command; a colliding alias is remapped silently.
func (r *Registry) Register(cmd commands.Command) {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if r == nil || name == "" || cmd.Handler == nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", cmd.Name),
			slog.String("reason", "invalid"),
		)
		return
	}
	cmd.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.duplicate",
			slog.String("name", name),
		)
	}
	r.commands[name] = &cmd
	for _, alias := range cmd.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" {
			continue
		}
		if prev, ok := r.aliases[alias]; ok && prev != name {
			logger.TWire.LogAttrs(context.Background(), slog.LevelDebug, "register.alias.remap",
				slog.String("alias", alias),
				slog.String("from", prev),
				slog.String("to", name),
			)
		}
		r.aliases[alias] = name
	}
}

// Resolve looks a command up by name or alias. The alias table wins.
func (r *Registry) Resolve(name string) (*commands.Command, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, r.prefix)
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	cmd, ok := r.commands[key]
	return cmd, ok
}

// List returns commands sorted by name, optionally without hidden ones.
func (r *Registry) List(visibleOnly bool) []*commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*commands.Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		if visibleOnly && cmd.Hidden {
			continue
		}
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Names returns every registered primary name.
func (r *Registry) Names() []string {
	list := r.List(false)
	names := make([]string, len(list))
	for i, cmd := range list {
		names[i] = cmd.Name
	}
	return names
}

// Prefix returns the command prefix.
func (r *Registry) Prefix() string { return r.prefix }

// MenuCommands returns the entries shown in the Telegram command menu.
// Hidden, developer and admin commands are left out.
func (r *Registry) MenuCommands() []tele.Command {
	var list []tele.Command
	for _, cmd := range r.List(true) {
		if cmd.DevOnly || cmd.AdminOnly || cmd.Description == "" {
			continue
		}
		list = append(list, tele.Command{Text: cmd.Name, Description: cmd.Description})
	}
	return list
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	cmds := reg.MenuCommands()
	if err := bot.SetCommands(cmds); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelInfo, "register.commands.set",
		slog.Int("count", len(cmds)),
	)
}
