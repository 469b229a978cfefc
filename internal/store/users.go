package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const userColumns = `user_id, username, xp, banned, ban_reason, banned_at, afk, afk_reason, afk_since`

const ensureUser = `INSERT INTO users (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`

// lockUser creates the row if needed and, through the no-op update, holds its
// write lock until the transaction ends. Reads after it see the latest
// committed XP on PostgreSQL under READ COMMITTED; SQLite takes its database
// write lock here instead of on a later upgrade.
const lockUser = `INSERT INTO users (user_id) VALUES (?) ON CONFLICT (user_id) DO UPDATE SET xp = users.xp`

// User returns the record for id, or a zero record when none exists.
func (s *Store) User(ctx context.Context, id int64) (User, error) {
	var u User
	ok, err := s.get(ctx, "user.get", &u, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, id)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{ID: id}, nil
	}
	return u, nil
}

// SeenUser records the current username of id, creating the record if needed.
func (s *Store) SeenUser(ctx context.Context, id int64, username string) error {
	_, err := s.exec(ctx, "user.seen", `
		INSERT INTO users (user_id, username) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET username = excluded.username`,
		id, strings.ToLower(username))
	return err
}

// UserByUsername resolves a username without the leading '@'.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	name := strings.ToLower(strings.TrimPrefix(username, "@"))
	if name == "" {
		return User{}, ErrNotFound
	}
	var u User
	ok, err := s.get(ctx, "user.by_username", &u, `SELECT `+userColumns+` FROM users WHERE username = ?`, name)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// AddXP adds delta to the user's XP and returns the values before and after.
// The row stays locked from read to write, so concurrent grants never lose an
// increment. XP never drops below zero.
func (s *Store) AddXP(ctx context.Context, id, delta int64) (before, after int64, err error) {
	err = s.inTx(ctx, "user.add_xp", func(tx *sqlx.Tx) error {
		if err := txExec(ctx, tx, lockUser, id); err != nil {
			return err
		}
		if _, err := txGet(ctx, tx, &before, `SELECT xp FROM users WHERE user_id = ?`, id); err != nil {
			return err
		}
		after = max(before+delta, 0)
		return txExec(ctx, tx, `UPDATE users SET xp = ? WHERE user_id = ?`, after, id)
	})
	if err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

// TransferXP moves up to limit XP from one user to another and returns the
// amount moved, which is capped by the giver's balance. Both rows are locked
// in id order before the balance is read.
func (s *Store) TransferXP(ctx context.Context, from, to, limit int64) (int64, error) {
	var moved int64
	err := s.inTx(ctx, "user.transfer_xp", func(tx *sqlx.Tx) error {
		for _, id := range []int64{min(from, to), max(from, to)} {
			if err := txExec(ctx, tx, lockUser, id); err != nil {
				return err
			}
		}
		var balance int64
		if _, err := txGet(ctx, tx, &balance, `SELECT xp FROM users WHERE user_id = ?`, from); err != nil {
			return err
		}
		moved = max(min(limit, balance), 0)
		if moved == 0 {
			return nil
		}
		if err := txExec(ctx, tx, `UPDATE users SET xp = xp - ? WHERE user_id = ?`, moved, from); err != nil {
			return err
		}
		return txExec(ctx, tx, `UPDATE users SET xp = xp + ? WHERE user_id = ?`, moved, to)
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// TopXP returns the users with the most XP, best first.
func (s *Store) TopXP(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []User
	err := s.selectRows(ctx, "user.top", &out,
		`SELECT `+userColumns+` FROM users WHERE xp > 0 ORDER BY xp DESC, user_id ASC LIMIT ?`, limit)
	return out, err
}

// SetBan sets or clears the bot-wide ban of a user.
func (s *Store) SetBan(ctx context.Context, id int64, banned bool, reason string) error {
	var at int64
	if banned {
		at = s.now().Unix()
	} else {
		reason = ""
	}
	return s.inTx(ctx, "user.set_ban", func(tx *sqlx.Tx) error {
		if err := txExec(ctx, tx, ensureUser, id); err != nil {
			return err
		}
		return txExec(ctx, tx,
			`UPDATE users SET banned = ?, ban_reason = ?, banned_at = ? WHERE user_id = ?`,
			banned, reason, at, id)
	})
}

// SetAFK marks the user away since now and clears earlier mentions.
func (s *Store) SetAFK(ctx context.Context, id int64, reason string, since time.Time) error {
	return s.inTx(ctx, "user.set_afk", func(tx *sqlx.Tx) error {
		if err := txExec(ctx, tx, ensureUser, id); err != nil {
			return err
		}
		if err := txExec(ctx, tx, `DELETE FROM afk_mentions WHERE user_id = ?`, id); err != nil {
			return err
		}
		return txExec(ctx, tx,
			`UPDATE users SET afk = ?, afk_reason = ?, afk_since = ? WHERE user_id = ?`,
			true, reason, since.Unix(), id)
	})
}

// ClearAFK turns the away flag off and returns the mentions collected while
// the user was away, oldest first.
func (s *Store) ClearAFK(ctx context.Context, id int64) ([]Mention, error) {
	var out []Mention
	err := s.inTx(ctx, "user.clear_afk", func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &out, tx.Rebind(
			`SELECT chat_id, message_id FROM afk_mentions WHERE user_id = ? ORDER BY id ASC`), id); err != nil {
			return err
		}
		if err := txExec(ctx, tx, `DELETE FROM afk_mentions WHERE user_id = ?`, id); err != nil {
			return err
		}
		return txExec(ctx, tx,
			`UPDATE users SET afk = ?, afk_reason = '', afk_since = 0 WHERE user_id = ?`, false, id)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddMention appends a message to the away user's tagged list.
func (s *Store) AddMention(ctx context.Context, userID, chatID int64, messageID int) error {
	_, err := s.exec(ctx, "user.add_mention",
		`INSERT INTO afk_mentions (user_id, chat_id, message_id) VALUES (?, ?, ?)`,
		userID, chatID, messageID)
	return err
}
