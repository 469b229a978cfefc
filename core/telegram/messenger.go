package telegram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/m3rciful/kaoribot/core/errs"
	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
	"github.com/m3rciful/kaoribot/core/telegram/commands"
	"github.com/m3rciful/kaoribot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/kaoribot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Chat member roles as reported by Telegram.
const (
	RoleCreator       = "creator"
	RoleAdministrator = "administrator"
	RoleMember        = "member"
	RoleRestricted    = "restricted"
	RoleLeft          = "left"
	RoleKicked        = "kicked"
)

// SendOptions tune an outbound message. Text is always sent in HTML mode.
type SendOptions struct {
	ReplyTo  int
	Keyboard keyboard.Markup
	Spoiler  bool
	Silent   bool
}

// Photo is an image given either by URL or by raw bytes.
type Photo struct {
	URL  string
	Data []byte
	Name string
}

// Member is a chat member's role and admin capabilities.
type Member struct {
	Role  string
	Perms map[string]bool
}

// IsAdmin reports whether the member administers the chat.
func (m Member) IsAdmin() bool {
	return m.Role == RoleCreator || m.Role == RoleAdministrator
}

// Can reports whether the member holds perm. The creator holds every right.
func (m Member) Can(perm string) bool {
	if m.Role == RoleCreator {
		return true
	}
	return m.Role == RoleAdministrator && m.Perms[perm]
}

// AdminRights selects the rights SetAdmin grants.
type AdminRights int

const (
	AdminNone AdminRights = iota
	AdminLimited
	AdminFull
)

func (r AdminRights) String() string {
	switch r {
	case AdminLimited:
		return "Limited Admin Rights"
	case AdminFull:
		return "Full Admin Rights"
	}
	return "No Admin Rights"
}

func (r AdminRights) tele() tele.Rights {
	var out tele.Rights
	switch r {
	case AdminFull:
		out.CanManageChat = true
		out.CanManageVideoChats = true
		out.CanRestrictMembers = true
		out.CanPromoteMembers = true
		fallthrough
	case AdminLimited:
		out.CanChangeInfo = true
		out.CanDeleteMessages = true
		out.CanInviteUsers = true
		out.CanPinMessages = true
	}
	return out
}

// Messenger performs chat actions on behalf of the bot.
type Messenger struct {
	bot   *tele.Bot
	queue *tgsender.Queue
}

// NewMessenger wraps bot. queue, when set, carries Notify calls.
func NewMessenger(bot *tele.Bot, queue *tgsender.Queue) *Messenger {
	return &Messenger{bot: bot, queue: queue}
}

func (m *Messenger) sendOpts(opts SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		DisableNotification:   opts.Silent,
		HasSpoiler:            opts.Spoiler,
		ReplyMarkup:           opts.Keyboard.Inline(),
	}
	if opts.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opts.ReplyTo}
		so.AllowWithoutReply = true
	}
	return so
}

// SendText posts an HTML message and returns its id.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error) {
	msg, err := m.bot.Send(tele.ChatID(chatID), text, m.sendOpts(opts))
	if err := m.observe(ctx, "send.text", chatID, err); err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendPhoto posts a photo with an HTML caption and returns its id.
func (m *Messenger) SendPhoto(ctx context.Context, chatID int64, photo Photo, caption string, opts SendOptions) (int, error) {
	var file tele.File
	if photo.URL != "" {
		file = tele.FromURL(photo.URL)
	} else {
		file = tele.FromReader(bytes.NewReader(photo.Data))
	}
	p := &tele.Photo{File: file, Caption: caption}
	msg, err := m.bot.Send(tele.ChatID(chatID), p, m.sendOpts(opts))
	if err := m.observe(ctx, "send.photo", chatID, err); err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func stored(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

// EditText replaces a message's text and keyboard. A nil keyboard removes it.
func (m *Messenger) EditText(ctx context.Context, chatID int64, messageID int, text string, kb keyboard.Markup) error {
	_, err := m.bot.Edit(stored(chatID, messageID), text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ReplyMarkup:           kb.Inline(),
	})
	return m.observe(ctx, "edit.text", chatID, ignoreNotModified(err))
}

// EditCaption replaces a media message's caption and keyboard.
func (m *Messenger) EditCaption(ctx context.Context, chatID int64, messageID int, caption string, kb keyboard.Markup) error {
	_, err := m.bot.EditCaption(stored(chatID, messageID), caption, &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: kb.Inline(),
	})
	return m.observe(ctx, "edit.caption", chatID, ignoreNotModified(err))
}

// Delete removes a message.
func (m *Messenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	err := m.bot.Delete(stored(chatID, messageID))
	return m.observe(ctx, "delete", chatID, err)
}

// Answer acknowledges a callback query, optionally as an alert.
func (m *Messenger) Answer(ctx context.Context, callbackID, text string, alert bool) error {
	err := m.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{
		Text:      text,
		ShowAlert: alert,
	})
	return m.observe(ctx, "answer", 0, err)
}

// Restrict removes every send right from the user until the given time.
// A zero until restricts forever.
func (m *Messenger) Restrict(ctx context.Context, chatID, userID int64, until time.Time) error {
	member := &tele.ChatMember{User: &tele.User{ID: userID}, Rights: tele.NoRights()}
	if !until.IsZero() {
		member.RestrictedUntil = until.Unix()
	}
	err := m.bot.Restrict(&tele.Chat{ID: chatID}, member)
	return m.observe(ctx, "restrict", chatID, err)
}

// Lift restores the default member rights.
func (m *Messenger) Lift(ctx context.Context, chatID, userID int64) error {
	member := &tele.ChatMember{User: &tele.User{ID: userID}, Rights: tele.NoRestrictions()}
	err := m.bot.Restrict(&tele.Chat{ID: chatID}, member)
	return m.observe(ctx, "lift", chatID, err)
}

// Ban removes the user and blocks rejoining.
func (m *Messenger) Ban(ctx context.Context, chatID, userID int64) error {
	err := m.bot.Ban(&tele.Chat{ID: chatID}, &tele.ChatMember{User: &tele.User{ID: userID}})
	return m.observe(ctx, "ban", chatID, err)
}

// Unban lifts a ban. Members who are not banned are left untouched.
func (m *Messenger) Unban(ctx context.Context, chatID, userID int64) error {
	err := m.bot.Unban(&tele.Chat{ID: chatID}, &tele.User{ID: userID}, true)
	return m.observe(ctx, "unban", chatID, err)
}

// DeleteMany deletes messages in batches of 100, the API limit. Telegram
// skips ids that no longer exist.
func (m *Messenger) DeleteMany(ctx context.Context, chatID int64, messageIDs []int) error {
	for chunk := range slices.Chunk(messageIDs, 100) {
		msgs := make([]tele.Editable, 0, len(chunk))
		for _, id := range chunk {
			msgs = append(msgs, stored(chatID, id))
		}
		if err := m.observe(ctx, "delete.many", chatID, m.bot.DeleteMany(msgs)); err != nil {
			return err
		}
	}
	return nil
}

// SetAdmin grants rights to a member. AdminNone demotes them.
func (m *Messenger) SetAdmin(ctx context.Context, chatID, userID int64, rights AdminRights) error {
	member := &tele.ChatMember{User: &tele.User{ID: userID}, Rights: rights.tele()}
	err := m.bot.Promote(&tele.Chat{ID: chatID}, member)
	return m.observe(ctx, "promote", chatID, err)
}

// Bio returns a user's profile bio, empty when they have none.
func (m *Messenger) Bio(ctx context.Context, userID int64) (string, error) {
	chat, err := m.bot.ChatByID(userID)
	if err := m.observe(ctx, "chat", 0, err); err != nil {
		return "", err
	}
	return chat.Bio, nil
}

// Member fetches the user's role and admin rights in the chat.
func (m *Messenger) Member(ctx context.Context, chatID, userID int64) (Member, error) {
	cm, err := m.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err := m.observe(ctx, "member", chatID, err); err != nil {
		return Member{}, err
	}
	return Member{
		Role: string(cm.Role),
		Perms: map[string]bool{
			commands.PermChangeInfo:      cm.CanChangeInfo,
			commands.PermDeleteMessages:  cm.CanDeleteMessages,
			commands.PermInviteUsers:     cm.CanInviteUsers,
			commands.PermPinMessages:     cm.CanPinMessages,
			commands.PermPromoteMembers:  cm.CanPromoteMembers,
			commands.PermRestrictMembers: cm.CanRestrictMembers,
		},
	}, nil
}

// Notify sends text silently without waiting for delivery. Failures are
// logged by the send queue; a saturated queue falls back to a direct send.
func (m *Messenger) Notify(ctx context.Context, chatID int64, text string) {
	job := tgsender.Job{
		Action: "notify",
		ChatID: chatID,
		Run: func(ctx context.Context) error {
			_, err := m.SendText(ctx, chatID, text, SendOptions{Silent: true})
			return err
		},
	}
	if m.queue == nil {
		_ = job.Run(ctx)
		return
	}
	if err := m.queue.Enqueue(ctx, job); err != nil {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", job.Action),
			slog.String("err", err.Error()),
		)
		_ = job.Run(ctx)
	}
}

func (m *Messenger) observe(ctx context.Context, action string, chatID int64, err error) error {
	metrics.MessagesSent.WithLabelValues(action, metrics.Status(err)).Inc()
	if err == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.String("err", err.Error()),
	}
	if chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "tg.call.fail", attrs...)
	return errs.WrapCode(errs.CodeTransport, action, err)
}

func ignoreNotModified(err error) error {
	if errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	return err
}
