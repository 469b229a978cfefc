// Package engine dispatches inbound events to commands. It parses input,
// runs the AFK side channel, enforces access control, invokes handlers
// behind an error boundary and grants experience.
package engine

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
	tg "github.com/m3rciful/kaoribot/core/telegram"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/format"
	"github.com/m3rciful/kaoribot/core/telegram/middleware"
	"github.com/m3rciful/kaoribot/internal/rank"
	"github.com/m3rciful/kaoribot/internal/store"
)

// AFKCommand is the command that toggles away status. Issuing it does not
// count as returning.
const AFKCommand = "afk"

// Options configure a Dispatcher.
type Options struct {
	Commands    Resolver
	Messenger   Messenger
	Users       Users
	Prefix      string
	BotUsername string
	IsDev       func(userID int64) bool
	Now         func() time.Time
}

// Dispatcher turns events into command invocations.
type Dispatcher struct {
	commands    Resolver
	messenger   Messenger
	users       Users
	prefix      string
	botUsername string
	isDev       func(int64) bool
	now         func() time.Time

	listeners []TextListener
	joins     []MemberHook
	leaves    []MemberHook
}

// New builds a dispatcher. Commands, Messenger and Users are required.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		commands:    opts.Commands,
		messenger:   opts.Messenger,
		users:       opts.Users,
		prefix:      opts.Prefix,
		botUsername: opts.BotUsername,
		isDev:       opts.IsDev,
		now:         opts.Now,
	}
	if d.prefix == "" {
		d.prefix = "/"
	}
	if d.isDev == nil {
		d.isDev = func(int64) bool { return false }
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// OnText registers a listener for plain messages.
func (d *Dispatcher) OnText(l TextListener) { d.listeners = append(d.listeners, l) }

// OnJoin registers a hook for members joining a chat.
func (d *Dispatcher) OnJoin(h MemberHook) { d.joins = append(d.joins, h) }

// OnLeave registers a hook for members leaving a chat.
func (d *Dispatcher) OnLeave(h MemberHook) { d.leaves = append(d.leaves, h) }

// Handle processes one event. Failures are reported to the chat and logged;
// they never reach the caller.
func (d *Dispatcher) Handle(ctx context.Context, ev *commands.Event) error {
	if ev == nil {
		return nil
	}
	switch ev.Kind {
	case commands.KindJoin:
		d.runHooks(ctx, "join", d.joins, ev)
		return nil
	case commands.KindLeave:
		d.runHooks(ctx, "leave", d.leaves, ev)
		return nil
	}

	in := commands.ParseEvent(ev, d.prefix, d.botUsername)
	if ev.IsCallback() && !in.IsCommand {
		d.answer(ctx, ev, "Unsupported action", false)
		return nil
	}

	sender, err := d.users.User(ctx, ev.Sender.ID)
	if err != nil {
		// Without the sender record neither bans nor AFK can be checked.
		d.fail(ctx, ev, "", err)
		return nil
	}
	d.remember(ctx, ev, sender)
	d.sideChannel(ctx, ev, in, sender)

	if !in.IsCommand {
		for _, l := range d.listeners {
			if err := d.safe(ctx, func() error { return l(ctx, ev) }); err != nil {
				logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "listener.fail",
					slog.String("err", err.Error()),
					slog.String("err_code", errs.Code(err)),
					slog.String("src", errs.Location(err)),
				)
			}
		}
		return nil
	}

	cmd, ok := d.commands.Resolve(in.Command)
	if !ok {
		metrics.CommandsDispatched.WithLabelValues("unknown", "unknown").Inc()
		d.notify(ctx, ev, card("Unknown Command", "❌",
			"Use "+format.Escape(d.prefix)+"help to see all available commands"), true)
		return nil
	}
	ctx = logger.WithCommand(ctx, cmd.Name, cmd.Category)

	if den, denied := d.authorize(ctx, ev, cmd, sender); denied {
		metrics.CommandsDispatched.WithLabelValues(cmd.Name, "denied").Inc()
		d.deny(ctx, ev, den)
		return nil
	}

	req := &commands.Request{Event: ev, Input: in, Command: cmd}
	start := time.Now()
	err = d.safe(ctx, func() error { return cmd.Handler.Execute(ctx, req) })
	metrics.CommandDuration.WithLabelValues(cmd.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		d.fail(ctx, ev, cmd.Name, err)
		return nil
	}
	metrics.CommandsDispatched.WithLabelValues(cmd.Name, "ok").Inc()
	logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "command.done",
		slog.String("operation", cmd.Name),
		slog.String("status", "ok"),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
	if ev.IsCallback() {
		d.answer(ctx, ev, req.Answer(), false)
	}
	if cmd.XP > 0 {
		d.grantXP(ctx, ev, cmd)
	}
	return nil
}

// safe runs fn and converts a panic into an error located at the panicking
// frame.
func (d *Dispatcher) safe(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			file, line := middleware.PanicSite()
			err = errs.Panic(r, file, line)
			logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "panic.stack",
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	return fn()
}

// fail reports a handler error. User errors show their own message; anything
// else is logged with its source location and replaced by a generic notice.
func (d *Dispatcher) fail(ctx context.Context, ev *commands.Event, name string, err error) {
	op := name
	if op == "" {
		op = "dispatch"
	}
	if msg, ok := errs.UserMessage(err); ok {
		metrics.CommandsDispatched.WithLabelValues(op, "rejected").Inc()
		logger.LogEvent(ctx, logger.DISP, slog.LevelInfo, "command.rejected",
			slog.String("operation", op),
			slog.String("status", "ok"),
			slog.String("outcome", "rejected"),
			slog.String("err_code", errs.Code(err)),
		)
		d.notify(ctx, ev, msg, true)
		return
	}
	metrics.CommandsDispatched.WithLabelValues(op, "error").Inc()
	logger.LogEvent(ctx, logger.DISP, slog.LevelError, "command.fail",
		slog.String("operation", op),
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", errs.Code(err)),
		slog.String("src", errs.Location(err)),
	)
	d.notify(ctx, ev, card("Error", "⚠️", "<i>Status</i>: Something went wrong"), true)
}

// notify shows text to the user: as an alert for button presses, as a reply
// otherwise.
func (d *Dispatcher) notify(ctx context.Context, ev *commands.Event, text string, alert bool) {
	if ev.IsCallback() {
		d.answer(ctx, ev, Plain(text), alert)
		return
	}
	if err := Reply(ctx, d.messenger, ev, text); err != nil {
		logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "reply.fail", slog.String("err", err.Error()))
	}
}

func (d *Dispatcher) answer(ctx context.Context, ev *commands.Event, text string, alert bool) {
	if ev.CallbackID == "" {
		return
	}
	if err := d.messenger.Answer(ctx, ev.CallbackID, text, alert); err != nil {
		logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "answer.fail", slog.String("err", err.Error()))
	}
}

// remember keeps the stored username current so @mentions can be resolved.
func (d *Dispatcher) remember(ctx context.Context, ev *commands.Event, u store.User) {
	name := ev.Sender.Username
	if name == "" || strings.EqualFold(name, u.Username) {
		return
	}
	if err := d.users.SeenUser(ctx, ev.Sender.ID, name); err != nil {
		logger.LogEvent(ctx, logger.DISP, slog.LevelDebug, "user.seen.fail", slog.String("err", err.Error()))
	}
}

func (d *Dispatcher) grantXP(ctx context.Context, ev *commands.Event, cmd *commands.Command) {
	before, after, err := d.users.AddXP(ctx, ev.Sender.ID, int64(cmd.XP))
	if err != nil {
		logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "xp.fail",
			slog.String("operation", cmd.Name),
			slog.String("err", err.Error()),
		)
		return
	}
	metrics.XPAwarded.Add(float64(cmd.XP))
	old, cur := rank.ForXP(before), rank.ForXP(after)
	if cur.Level <= old.Level {
		return
	}
	metrics.LevelUps.Inc()
	text := card("Level Up", "🎉",
		"<i>User</i>: "+format.Mention(ev.Sender.ID, ev.Sender.FullName()),
		"<i>Level</i>: "+strconv.Itoa(cur.Level),
		"<i>Rank</i>: "+cur.Tier.Name+" "+cur.Tier.Emoji,
	)
	if n, ok := d.messenger.(Notifier); ok {
		n.Notify(ctx, ev.ChatID, text)
		return
	}
	if _, err := d.messenger.SendText(ctx, ev.ChatID, text, tg.SendOptions{}); err != nil {
		logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "levelup.fail", slog.String("err", err.Error()))
	}
}

func (d *Dispatcher) runHooks(ctx context.Context, kind string, hooks []MemberHook, ev *commands.Event) {
	for _, h := range hooks {
		if err := d.safe(ctx, func() error { return h(ctx, ev) }); err != nil {
			logger.LogEvent(ctx, logger.DISP, slog.LevelWarn, "member.hook.fail",
				slog.String("operation", kind),
				slog.String("err", err.Error()),
				slog.String("err_code", errs.Code(err)),
				slog.String("src", errs.Location(err)),
			)
		}
	}
}
