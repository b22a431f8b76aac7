package pipeline

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

// auditor writes one storage.AuditEntry per trigger.
type auditor struct {
	store storage.Store
	log   logx.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newAuditor(store storage.Store, log logx.Logger) *auditor {
	return &auditor{store: store, log: log, entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (a *auditor) newID(at time.Time) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), a.entropy)
	if err != nil {
		// Monotonic entropy overflows only within one millisecond burst.
		return ulid.Make().String()
	}
	return id.String()
}

func (a *auditor) record(ctx context.Context, e storage.AuditEntry, err error) {
	if a.store == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.ID = a.newID(e.At)
	e.OK = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	// Auditing must not fail the trigger.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 250*time.Millisecond)
	defer cancel()
	if aerr := a.store.AppendAudit(actx, e); aerr != nil {
		a.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(aerr))
	}
}
