package pipeline

import "sync/atomic"

// Stats are cumulative counters since New.
type Stats struct {
	Posted          uint64 `json:"posted"`
	Removed         uint64 `json:"removed"`
	Delivered       uint64 `json:"delivered"`
	Suppressed      uint64 `json:"suppressed"`
	Dropped         uint64 `json:"dropped"`
	Calls           uint64 `json:"calls"`
	Deleted         uint64 `json:"deleted"`
	Triggers        uint64 `json:"triggers"`
	TriggerFailures uint64 `json:"trigger_failures"`
	Active          int64  `json:"active"`
}

type counters struct {
	posted, removed, delivered, suppressed, dropped atomic.Uint64
	calls, deleted, triggers, triggerFailures       atomic.Uint64
	active                                          atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Posted:          c.posted.Load(),
		Removed:         c.removed.Load(),
		Delivered:       c.delivered.Load(),
		Suppressed:      c.suppressed.Load(),
		Dropped:         c.dropped.Load(),
		Calls:           c.calls.Load(),
		Deleted:         c.deleted.Load(),
		Triggers:        c.triggers.Load(),
		TriggerFailures: c.triggerFailures.Load(),
		Active:          c.active.Load(),
	}
}
