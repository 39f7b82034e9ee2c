// Package history persists run outcomes so past weeks can be inspected
// after the fact (did Saturday fail? how large was the submit skew?).
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"leavebot/internal/config"
	"leavebot/internal/forms"
	"leavebot/pkg/logx"
)

var ErrDisabled = errors.New("history storage disabled")

// Store is the minimal persistence API used by the app.
type Store interface {
	RecordRun(ctx context.Context, s forms.Summary) (runID int64, err error)
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// RunRecord is one persisted run header.
type RunRecord struct {
	ID       int64
	Mode     string
	TargetAt time.Time
	Started  time.Time
	Finished time.Time
	OKCount  int
	Fails    int
}

// Open initializes the configured store. Returns (nil, nil) when history is
// disabled (no storage block, empty driver or "none").
func Open(cfg *config.StorageConfig, log logx.Logger) (Store, error) {
	if cfg == nil {
		return nil, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
