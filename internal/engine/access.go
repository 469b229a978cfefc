package engine

import (
	"context"
	"log/slog"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/internal/store"
)

// denial is a rejected dispatch with the notice shown to the sender.
type denial struct {
	reason string
	title  string
	icon   string
	line   string
	extra  []string
}

func (d denial) text() string {
	lines := append(append([]string{}, d.extra...), d.line)
	return card(d.title, d.icon, lines...)
}

// authorize runs the access checks in order; the first failure wins.
func (d *Dispatcher) authorize(ctx context.Context, ev *commands.Event, cmd *commands.Command, sender store.User) (denial, bool) {
	if cmd.ChatOnly && ev.Private() {
		return denial{reason: "chat_only", title: "Invalid Context", icon: "👥", line: "Group Only Command"}, true
	}

	if sender.Banned {
		reason := sender.BanReason
		if reason == "" {
			reason = "Not specified"
		}
		return denial{
			reason: "banned",
			title:  "Access Restricted",
			icon:   "🚫",
			extra: []string{
				"Reason: " + format.Escape(reason),
				"Banned: " + format.Since(sender.BannedAt, d.now()) + " ago",
			},
			line: "Contact admin if this is a mistake",
		}, true
	}

	state, err := d.users.CommandState(ctx, cmd.Name)
	if err != nil {
		// A failing toggle lookup must not lock every command out.
		logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "command.state.fail",
			slog.String("operation", cmd.Name),
			slog.String("err", err.Error()),
		)
	} else if !state.Enabled {
		den := denial{
			reason: "disabled",
			title:  "Command Disabled",
			icon:   "⚠️",
			line:   format.Escape(cmd.Name) + " is currently disabled",
		}
		if state.Reason != "" {
			den.extra = []string{"Reason: " + format.Escape(state.Reason)}
		}
		return den, true
	}

	if cmd.DevOnly && !d.isDev(ev.Sender.ID) {
		return denial{reason: "dev_only", title: "Access Denied", icon: "🚫", line: "Developer Only"}, true
	}

	if cmd.AdminOnly || len(cmd.Permissions) > 0 {
		member, err := d.messenger.Member(ctx, ev.ChatID, ev.Sender.ID)
		if err != nil || !member.IsAdmin() {
			return denial{reason: "admin_only", title: "Access Denied", icon: "❌", line: "Admin Only"}, true
		}
		for _, perm := range cmd.Permissions {
			if !member.Can(perm) {
				return denial{
					reason: "permission",
					title:  "Permission Required",
					icon:   "⚠️",
					line:   "Missing Permission: " + perm,
				}, true
			}
		}
	}
	return denial{}, false
}

func (d *Dispatcher) deny(ctx context.Context, ev *commands.Event, den denial) {
	metrics.AccessDenied.WithLabelValues(den.reason).Inc()
	logger.LogEvent(ctx, logger.DISP, slog.LevelInfo, "command.denied",
		slog.String("status", "ok"),
		slog.String("outcome", "denied"),
		slog.String("reason", den.reason),
	)
	d.notify(ctx, ev, den.text(), true)
}
