// Package mirror replays committed journal events into SQLite so the
// current state can be queried without the application. It reads only
// the post-transition values events carry and never re-derives them.
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/blockberries/stagefund/mirror/migrations"
	"github.com/blockberries/stagefund/types"
)

// Mirror is a SQLite projection of the event log.
type Mirror struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens the mirror database at path and applies migrations.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Mirror, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("mirror path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Mirror{db: db, log: log}, nil
}

// Close closes the database.
func (m *Mirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Cursor returns the last applied sequence number and its height.
func (m *Mirror) Cursor(ctx context.Context) (seq, height uint64, err error) {
	err = m.db.QueryRowContext(ctx, `SELECT seq, height FROM mirror_cursor WHERE id = 1`).Scan(&seq, &height)
	if err != nil {
		return 0, 0, fmt.Errorf("read cursor: %w", err)
	}
	return seq, height, nil
}

// Apply replays events in one transaction. Events at or below the
// cursor are skipped, so replaying a batch twice is harmless.
func (m *Mirror) Apply(ctx context.Context, events []types.RecordedEvent) (applied int, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin apply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var cursor, height uint64
	if err := tx.QueryRowContext(ctx, `SELECT seq, height FROM mirror_cursor WHERE id = 1`).Scan(&cursor, &height); err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	for _, re := range events {
		if re.Seq <= cursor {
			continue
		}
		if re.Seq != cursor+1 {
			return 0, fmt.Errorf("event gap: have seq %d, got %d", cursor, re.Seq)
		}
		if err := apply(ctx, tx, re); err != nil {
			return 0, fmt.Errorf("apply seq %d (%s): %w", re.Seq, re.Event.Kind, err)
		}
		cursor, height = re.Seq, re.Height
		applied++
	}
	if applied == 0 {
		_ = tx.Rollback()
		return 0, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE mirror_cursor SET seq = ?, height = ? WHERE id = 1`, cursor, height); err != nil {
		return 0, fmt.Errorf("advance cursor: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit apply: %w", err)
	}
	m.log.Debug().Int("events", applied).Uint64("seq", cursor).Msg("mirror advanced")
	return applied, nil
}
