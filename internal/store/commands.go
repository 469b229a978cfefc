package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/kaoribot/core/bootstrap"
)

// CommandState returns the switch of a command. Unknown commands are enabled.
func (s *Store) CommandState(ctx context.Context, name string) (CommandState, error) {
	var c CommandState
	ok, err := s.get(ctx, "command.get", &c, `SELECT name, enabled, reason FROM commands WHERE name = ?`, name)
	if err != nil {
		return CommandState{}, err
	}
	if !ok {
		return CommandState{Name: name, Enabled: true}, nil
	}
	return c, nil
}

// SetCommandState enables or disables a command globally.
func (s *Store) SetCommandState(ctx context.Context, name string, enabled bool, reason string) error {
	if enabled {
		reason = ""
	}
	_, err := s.exec(ctx, "command.set", `
		INSERT INTO commands (name, enabled, reason) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET enabled = excluded.enabled, reason = excluded.reason`,
		name, enabled, reason)
	return err
}

// CommandSeeder inserts a row for each registered command so toggles can be
// listed. Existing rows keep their state.
func CommandSeeder(names func() []string) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		q := db.Rebind(`INSERT INTO commands (name, enabled) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`)
		for _, name := range names() {
			if _, err := db.ExecContext(ctx, q, name, true); err != nil {
				return err
			}
		}
		return nil
	})
}
