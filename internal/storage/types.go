package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrClosed       = errors.New("storage closed")
	ErrInvalidInput = errors.New("invalid filter")
)

// Config configures storage.
//
// If Driver is empty or "memory", nothing is persisted.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type FilterMode int

const (
	Blacklist FilterMode = iota
	Whitelist
)

func (m FilterMode) String() string {
	if m == Whitelist {
		return "whitelist"
	}
	return "blacklist"
}

func ParseFilterMode(s string) (FilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blacklist", "deny":
		return Blacklist, nil
	case "whitelist", "allow":
		return Whitelist, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, s)
	}
}

type FilterSubmode int

const (
	All FilterSubmode = iota
	Any
)

func (m FilterSubmode) String() string {
	if m == Any {
		return "any"
	}
	return "all"
}

func ParseFilterSubmode(s string) (FilterSubmode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return All, nil
	case "any":
		return Any, nil
	default:
		return 0, fmt.Errorf("%w: unknown submode %q", ErrInvalidInput, s)
	}
}

// FilterRecord is the per-source filter header. Words live in separate entries.
type FilterRecord struct {
	ID      int64         `json:"id"`
	Source  string        `json:"source"`
	Mode    FilterMode    `json:"mode"`
	Submode FilterSubmode `json:"submode"`
}

// FilterStore is what the content filter consults.
type FilterStore interface {
	// LookupFilter finds the filter of a lower-cased source id.
	LookupFilter(ctx context.Context, source string) (FilterRecord, bool, error)
	LookupFilterEntries(ctx context.Context, filterID int64) ([]string, error)
}

// MuteStore is the persisted per-source blacklist.
type MuteStore interface {
	IsMuted(ctx context.Context, pkg string) (bool, error)
	AddMute(ctx context.Context, pkg string) error
	RemoveMute(ctx context.Context, pkg string) (bool, error)
	ListMuted(ctx context.Context) ([]string, error)
}

// AuditEntry records one user-triggered action.
type AuditEntry struct {
	ID             string    `json:"id"`
	At             time.Time `json:"at"`
	Action         string    `json:"action"`
	Handle         int64     `json:"handle"`
	NotificationID int64     `json:"notification_id,omitempty"`
	Source         string    `json:"source,omitempty"`
	OK             bool      `json:"ok"`
	Error          string    `json:"error,omitempty"`
}

// Store is the full persistence API.
type Store interface {
	FilterStore
	MuteStore

	// PutFilter creates or replaces the filter of rec.Source (lower-cased).
	PutFilter(ctx context.Context, rec FilterRecord, words []string) (FilterRecord, error)
	DeleteFilter(ctx context.Context, source string) (bool, error)
	ListFilters(ctx context.Context) ([]FilterRecord, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

func normalizeSource(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// cleanWords drops blank entries; matching itself stays case-sensitive.
func cleanWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w) != "" {
			out = append(out, w)
		}
	}
	return out
}
