package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "notiflink/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LookupFilter(ctx context.Context, source string) (FilterRecord, bool, error) {
	var rec FilterRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, mode, submode FROM filters WHERE source = ?`, source,
	).Scan(&rec.ID, &rec.Source, &rec.Mode, &rec.Submode)
	if errors.Is(err, sql.ErrNoRows) {
		return FilterRecord{}, false, nil
	}
	if err != nil {
		return FilterRecord{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) LookupFilterEntries(ctx context.Context, filterID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word FROM filter_entries WHERE filter_id = ? ORDER BY pos`, filterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutFilter(ctx context.Context, rec FilterRecord, words []string) (FilterRecord, error) {
	rec.Source = normalizeSource(rec.Source)
	if rec.Source == "" {
		return FilterRecord{}, ErrInvalidInput
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return FilterRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO filters(source, mode, submode) VALUES(?,?,?)
		 ON CONFLICT(source) DO UPDATE SET mode=excluded.mode, submode=excluded.submode
		 RETURNING id`,
		rec.Source, int(rec.Mode), int(rec.Submode),
	).Scan(&rec.ID)
	if err != nil {
		return FilterRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_entries WHERE filter_id = ?`, rec.ID); err != nil {
		return FilterRecord{}, err
	}
	for i, w := range cleanWords(words) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO filter_entries(filter_id, pos, word) VALUES(?,?,?)`, rec.ID, i, w); err != nil {
			return FilterRecord{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return FilterRecord{}, err
	}
	return rec, nil
}

func (s *sqliteStore) DeleteFilter(ctx context.Context, source string) (bool, error) {
	source = normalizeSource(source)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM filters WHERE source = ?`, source).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_entries WHERE filter_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM filters WHERE id = ?`, id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *sqliteStore) ListFilters(ctx context.Context) ([]FilterRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, mode, submode FROM filters ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []FilterRecord{}
	for rows.Next() {
		var rec FilterRecord
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Mode, &rec.Submode); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) IsMuted(ctx context.Context, pkg string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM muted WHERE source = ?`, pkg).Scan(&n)
	return n > 0, err
}

func (s *sqliteStore) AddMute(ctx context.Context, pkg string) error {
	if pkg == "" {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO muted(source, at) VALUES(?,?) ON CONFLICT(source) DO NOTHING`,
		pkg, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) RemoveMute(ctx context.Context, pkg string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM muted WHERE source = ?`, pkg)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) ListMuted(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source FROM muted ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(id, at, action, handle, notification_id, source, ok, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.ID, e.At.UTC().Format(time.RFC3339Nano), e.Action, e.Handle, e.NotificationID,
		nullStr(e.Source), e.OK, nullStr(e.Error),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
