package history

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

	_ "modernc.org/sqlite"

	"leavebot/internal/config"
	"leavebot/internal/forms"
	"leavebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg *config.StorageConfig, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if d, err := config.ParseDurationField("storage.busy_timeout", cfg.BusyTimeout); err == nil && d > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
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

func (s *sqliteStore) RecordRun(ctx context.Context, sum forms.Summary) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs(mode, target_at, started_at, finished_at, ok_count, fail_count)
		 VALUES(?,?,?,?,?,?)`,
		sum.Mode,
		sum.TargetAt.Format(time.RFC3339Nano),
		sum.Started.Format(time.RFC3339Nano),
		sum.Finished.Format(time.RFC3339Nano),
		sum.OKCount(), sum.FailCount(),
	)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, r := range sum.Results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attempts(run_id, day, url, status, attempts, skew_ms, screenshot, err)
			 VALUES(?,?,?,?,?,?,?,?)`,
			runID, r.Target.Day.Token(), r.Target.URL, r.Status.String(), r.Attempts,
			r.SubmitSkew.Milliseconds(), nullStr(r.Screenshot), nullStr(r.Err),
		)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, target_at, started_at, finished_at, ok_count, fail_count
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var targetAt, started, finished string
		if err := rows.Scan(&rec.ID, &rec.Mode, &targetAt, &started, &finished, &rec.OKCount, &rec.Fails); err != nil {
			return nil, err
		}
		rec.TargetAt = parseTime(targetAt)
		rec.Started = parseTime(started)
		rec.Finished = parseTime(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
