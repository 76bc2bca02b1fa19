package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raknampuna/anchor/internal/planning"
)

//go:embed schema.sql
var schema string

// SQLite keeps contexts in a local database file, one row per record key.
type SQLite struct {
	conn *sql.DB
	opts Options
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(path string, opts Options) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps sqlite from reporting "database is locked" when
	// several users' turns save at once.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLite{conn: conn, opts: opts.withDefaults()}, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Load(ctx context.Context, userID string, day time.Time) (*planning.Context, error) {
	if s.opts.expired(day.Format(planning.DateFormat)) {
		return nil, nil
	}
	f := make(map[string]string, 4)
	var task, mode, timing, last string
	err := s.conn.QueryRowContext(ctx,
		"SELECT current_task, mode, timing, last_interaction FROM contexts WHERE key = ?",
		Key(userID, day),
	).Scan(&task, &mode, &timing, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("loading context", err)
	}
	f[FieldCurrentTask] = task
	f[FieldMode] = mode
	f[FieldTiming] = timing
	f[FieldLastInteraction] = last
	c, err := DecodeFields(f)
	if err != nil {
		return nil, fmt.Errorf("loading context %s: %w: %w", Key(userID, day), ErrCorrupt, err)
	}
	return c, nil
}

func (s *SQLite) Save(ctx context.Context, userID string, day time.Time, c *planning.Context) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("saving context: %w", err)
	}
	f, err := EncodeFields(c)
	if err != nil {
		return fmt.Errorf("saving context: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO contexts (key, user_id, day, current_task, mode, timing, last_interaction)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			current_task = excluded.current_task,
			mode = excluded.mode,
			timing = excluded.timing,
			last_interaction = excluded.last_interaction,
			updated_at = datetime('now')`,
		Key(userID, day), userID, day.Format(planning.DateFormat),
		f[FieldCurrentTask], f[FieldMode], f[FieldTiming], f[FieldLastInteraction],
	)
	if err != nil {
		return unavailable("saving context", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, userID string, day time.Time) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM contexts WHERE key = ?", Key(userID, day)); err != nil {
		return unavailable("deleting context", err)
	}
	return nil
}

func (s *SQLite) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.opts.cutoff(days)
	deleted := 0
	for _, key := range keys {
		_, day, ok := ParseKey(key)
		if !ok || day >= cutoff {
			continue
		}
		if _, err := s.conn.ExecContext(ctx, "DELETE FROM contexts WHERE key = ?", key); err != nil {
			return deleted, unavailable("purging contexts", err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *SQLite) Users(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT user_id FROM contexts WHERE day = ? ORDER BY user_id", day.Format(planning.DateFormat))
	if err != nil {
		return nil, unavailable("listing users", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLite) keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT key FROM contexts")
	if err != nil {
		return nil, unavailable("listing keys", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
