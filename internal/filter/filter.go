// Package filter applies per-source blacklist/whitelist word filters.
package filter

import (
	"context"
	"strings"

	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

type Verdict int

const (
	Continue Verdict = iota
	Suppress
)

func (v Verdict) String() string {
	if v == Suppress {
		return "suppress"
	}
	return "continue"
}

type Filter struct {
	store storage.FilterStore
	log   logx.Logger
}

// New returns a Filter. A nil store disables filtering.
func New(store storage.FilterStore, log logx.Logger) *Filter {
	return &Filter{store: store, log: log.With(logx.String("comp", "filter"))}
}

// Text joins title and body the way Check expects them.
func Text(title, body string) string { return title + " " + body }

// Check consults the store for source (already lower-cased by the caller) and
// matches words against text as case-sensitive substrings.
// Store failures never suppress.
func (f *Filter) Check(ctx context.Context, source, text string) Verdict {
	if f == nil || f.store == nil {
		return Continue
	}
	rec, ok, err := f.store.LookupFilter(ctx, source)
	if err != nil {
		f.log.Warn("filter lookup failed", logx.String("source", source), logx.Err(err))
		return Continue
	}
	if !ok {
		return Continue
	}
	words, err := f.store.LookupFilterEntries(ctx, rec.ID)
	if err != nil {
		f.log.Warn("filter entries lookup failed", logx.String("source", source), logx.Int64("filter_id", rec.ID), logx.Err(err))
		return Continue
	}
	v := Decide(rec.Mode, rec.Submode, words, text)
	if v == Suppress {
		f.log.Debug("filtered", logx.String("source", source), logx.String("mode", rec.Mode.String()), logx.String("submode", rec.Submode.String()))
	}
	return v
}

// Decide is the pure truth table behind Check.
func Decide(mode storage.FilterMode, sub storage.FilterSubmode, words []string, text string) Verdict {
	var matched bool
	switch sub {
	case storage.Any:
		matched = containsAny(text, words)
	default:
		matched = containsAll(text, words)
	}
	switch mode {
	case storage.Whitelist:
		if matched {
			return Continue
		}
		return Suppress
	default:
		if matched {
			return Suppress
		}
		return Continue
	}
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
