package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var chatFlags = map[string]bool{
	FlagCaptcha: true,
	FlagEvents:  true,
	FlagPokemon: true,
}

// Chat returns the toggles of a chat. Unknown chats have everything off.
func (s *Store) Chat(ctx context.Context, id int64) (Chat, error) {
	var c Chat
	ok, err := s.get(ctx, "chat.get", &c, `SELECT chat_id, captcha, events, pokemon FROM chats WHERE chat_id = ?`, id)
	if err != nil {
		return Chat{}, err
	}
	if !ok {
		return Chat{ID: id}, nil
	}
	return c, nil
}

// SetChatFlag switches one feature of a chat.
func (s *Store) SetChatFlag(ctx context.Context, id int64, flag string, on bool) error {
	if !chatFlags[flag] {
		return fmt.Errorf("unknown chat flag %q", flag)
	}
	// flag is a column name checked against chatFlags above.
	_, err := s.exec(ctx, "chat.set_flag", `
		INSERT INTO chats (chat_id, `+flag+`) VALUES (?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET `+flag+` = excluded.`+flag,
		id, on)
	return err
}

// ChatsWith lists the chats with flag enabled, ordered by id.
func (s *Store) ChatsWith(ctx context.Context, flag string) ([]int64, error) {
	if !chatFlags[flag] {
		return nil, fmt.Errorf("unknown chat flag %q", flag)
	}
	var ids []int64
	err := s.selectRows(ctx, "chat.with_flag", &ids,
		`SELECT chat_id FROM chats WHERE `+flag+` = ? ORDER BY chat_id`, true)
	return ids, err
}

// AddWarn records a warning and returns the new count, capped at MaxWarns.
func (s *Store) AddWarn(ctx context.Context, w Warning) (int, error) {
	var count int
	err := s.inTx(ctx, "warn.add", func(tx *sqlx.Tx) error {
		if err := txExec(ctx, tx, `
			INSERT INTO warns (chat_id, user_id, user_name, count) VALUES (?, ?, ?, 0)
			ON CONFLICT (chat_id, user_id) DO UPDATE SET user_name = excluded.user_name`,
			w.ChatID, w.UserID, w.UserName); err != nil {
			return err
		}
		if _, err := txGet(ctx, tx, &count,
			`SELECT count FROM warns WHERE chat_id = ? AND user_id = ?`, w.ChatID, w.UserID); err != nil {
			return err
		}
		count = min(count+1, MaxWarns)
		if err := txExec(ctx, tx, `UPDATE warns SET count = ? WHERE chat_id = ? AND user_id = ?`,
			count, w.ChatID, w.UserID); err != nil {
			return err
		}
		return txExec(ctx, tx, `
			INSERT INTO warn_reasons (chat_id, user_id, reason, by_user_id) VALUES (?, ?, ?, ?)`,
			w.ChatID, w.UserID, w.Reason, w.ByUserID)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RemoveWarn drops the latest warning, or all of them, and returns the
// remaining count. It fails with ErrNotFound when the member has no warns.
func (s *Store) RemoveWarn(ctx context.Context, chatID, userID int64, all bool) (int, error) {
	var remaining int
	err := s.inTx(ctx, "warn.remove", func(tx *sqlx.Tx) error {
		var count int
		ok, err := txGet(ctx, tx, &count,
			`SELECT count FROM warns WHERE chat_id = ? AND user_id = ?`, chatID, userID)
		if err != nil {
			return err
		}
		if !ok || count == 0 {
			return ErrNotFound
		}
		if all {
			remaining = 0
		} else {
			remaining = count - 1
		}
		if remaining == 0 {
			if err := txExec(ctx, tx, `DELETE FROM warn_reasons WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
				return err
			}
			return txExec(ctx, tx, `DELETE FROM warns WHERE chat_id = ? AND user_id = ?`, chatID, userID)
		}
		if err := txExec(ctx, tx, `
			DELETE FROM warn_reasons WHERE id = (
				SELECT MAX(id) FROM warn_reasons WHERE chat_id = ? AND user_id = ?
			)`, chatID, userID); err != nil {
			return err
		}
		return txExec(ctx, tx, `UPDATE warns SET count = ? WHERE chat_id = ? AND user_id = ?`,
			remaining, chatID, userID)
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// ResetWarns clears a member's warns after removal. Missing warns are fine.
func (s *Store) ResetWarns(ctx context.Context, chatID, userID int64) error {
	if _, err := s.RemoveWarn(ctx, chatID, userID, true); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Warn returns one member's warns with their reasons, oldest first.
func (s *Store) Warn(ctx context.Context, chatID, userID int64) (Warn, error) {
	var w Warn
	ok, err := s.get(ctx, "warn.get", &w,
		`SELECT chat_id, user_id, user_name, count FROM warns WHERE chat_id = ? AND user_id = ? AND count > 0`,
		chatID, userID)
	if err != nil {
		return Warn{}, err
	}
	if !ok {
		return Warn{}, ErrNotFound
	}
	err = s.selectRows(ctx, "warn.reasons", &w.Reasons,
		`SELECT reason FROM warn_reasons WHERE chat_id = ? AND user_id = ? ORDER BY id ASC`, chatID, userID)
	return w, err
}

// Warns pages through a chat's warned members, most warned first, and
// returns the total number of warned members.
func (s *Store) Warns(ctx context.Context, chatID int64, offset, limit int) ([]Warn, int, error) {
	var total int
	if _, err := s.get(ctx, "warn.count", &total,
		`SELECT COUNT(*) FROM warns WHERE chat_id = ? AND count > 0`, chatID); err != nil {
		return nil, 0, err
	}
	var out []Warn
	err := s.selectRows(ctx, "warn.list", &out, `
		SELECT chat_id, user_id, user_name, count FROM warns
		WHERE chat_id = ? AND count > 0
		ORDER BY count DESC, user_id ASC
		LIMIT ? OFFSET ?`, chatID, limit, offset)
	return out, total, err
}

// AddChatBan records a member on the chat's banned list, replacing any
// previous entry.
func (s *Store) AddChatBan(ctx context.Context, b ChatBan) error {
	_, err := s.exec(ctx, "ban.add", `
		INSERT INTO chat_bans (chat_id, user_id, user_name, reason, by_user_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			user_name = excluded.user_name,
			reason = excluded.reason,
			by_user_id = excluded.by_user_id`,
		b.ChatID, b.UserID, b.UserName, b.Reason, b.ByUserID)
	return err
}

// RemoveChatBan drops a member from the banned list and reports whether an
// entry existed.
func (s *Store) RemoveChatBan(ctx context.Context, chatID, userID int64) (bool, error) {
	res, err := s.exec(ctx, "ban.remove",
		`DELETE FROM chat_bans WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail(ctx, "ban.remove", err)
	}
	return n > 0, nil
}

// ChatBans lists a chat's banned members in insertion order.
func (s *Store) ChatBans(ctx context.Context, chatID int64) ([]ChatBan, error) {
	var out []ChatBan
	err := s.selectRows(ctx, "ban.list", &out, `
		SELECT chat_id, user_id, user_name, reason, by_user_id FROM chat_bans
		WHERE chat_id = ? ORDER BY created_at ASC, user_id ASC`, chatID)
	return out, err
}
