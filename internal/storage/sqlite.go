package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"watchdog/internal/eventlog"
	logx "watchdog/pkg/logx"
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
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

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

func (s *sqliteStore) Append(ctx context.Context, e eventlog.Event) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	var vars any
	if len(e.Variables) > 0 {
		b, err := json.Marshal(e.Variables)
		if err != nil {
			return 0, fmt.Errorf("marshal variables: %w", err)
		}
		vars = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO watchdog(channel, severity, message, variables, link, location, referer, hostname, uid, at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.Channel, int(e.Severity), e.Message, vars,
		nullStr(e.Link), nullStr(e.Location), nullStr(e.Referer), nullStr(e.Hostname),
		e.UID, e.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, unavailable(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable(err)
	}
	return id, nil
}

func (s *sqliteStore) NthNewestID(ctx context.Context, n int) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrDisabled
	}
	if n < 1 {
		return 0, false, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM watchdog ORDER BY id DESC LIMIT 1 OFFSET ?`, n-1,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable(err)
	}
	return id, true, nil
}

func (s *sqliteStore) DeleteBefore(ctx context.Context, threshold int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchdog WHERE id < ?`, threshold)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]eventlog.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit < 1 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, severity, message, variables, link, location, referer, hostname, uid, at
		 FROM watchdog ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []eventlog.Event
	for rows.Next() {
		var (
			e          eventlog.Event
			severity   int
			vars       sql.NullString
			link, loc  sql.NullString
			ref, host  sql.NullString
			at         string
		)
		if err := rows.Scan(&e.ID, &e.Channel, &severity, &e.Message, &vars,
			&link, &loc, &ref, &host, &e.UID, &at); err != nil {
			return nil, unavailable(err)
		}
		e.Severity = eventlog.Severity(severity)
		e.Link = link.String
		e.Location = loc.String
		e.Referer = ref.String
		e.Hostname = host.String
		if vars.Valid && vars.String != "" {
			_ = json.Unmarshal([]byte(vars.String), &e.Variables)
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.Timestamp = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *sqliteStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM watchdog`).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
