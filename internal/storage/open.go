package storage

import (
	"errors"
	"fmt"
	"strings"

	logx "notiflink/pkg/logx"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Open initializes the configured store. Without a driver the store lives in
// memory, so filters and mutes set at runtime are lost on exit.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		st  Store
		err error
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory", "none":
		st = NewMemory()
	case "file":
		st, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}
