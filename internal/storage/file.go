package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "notiflink/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (filters + mute list, rewritten on every mutation)
//   - <prefix>.audit.jsonl   (append-only JSON Lines)
type fileStore struct {
	*memoryStore
	log logx.Logger

	fmu          sync.Mutex
	snapshotPath string
	auditFile    *os.File
}

type fileSnapshot struct {
	NextID  int64            `json:"next_id"`
	Filters []snapshotFilter `json:"filters"`
	Muted   []string         `json:"muted"`
}

type snapshotFilter struct {
	FilterRecord
	Words []string `json:"words"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	mem := newMemoryStore()
	snapPath := prefix + ".snapshot.json"
	if err := loadSnapshot(snapPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		memoryStore:  mem,
		log:          log,
		snapshotPath: snapPath,
		auditFile:    af,
	}, nil
}

func loadSnapshot(path string, into *memoryStore) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	into.nextID = snap.NextID
	for _, sf := range snap.Filters {
		into.filters[sf.Source] = sf.FilterRecord
		into.words[sf.ID] = sf.Words
		if sf.ID > into.nextID {
			into.nextID = sf.ID
		}
	}
	for _, pkg := range snap.Muted {
		into.muted[pkg] = struct{}{}
	}
	return nil
}

// persist writes the snapshot atomically (tmp file + rename).
func (s *fileStore) persist(ctx context.Context) error {
	filters, err := s.memoryStore.ListFilters(ctx)
	if err != nil {
		return err
	}
	muted, err := s.memoryStore.ListMuted(ctx)
	if err != nil {
		return err
	}
	snap := fileSnapshot{Muted: muted, Filters: make([]snapshotFilter, 0, len(filters))}
	for _, rec := range filters {
		words, _ := s.memoryStore.LookupFilterEntries(ctx, rec.ID)
		snap.Filters = append(snap.Filters, snapshotFilter{FilterRecord: rec, Words: words})
	}
	s.memoryStore.mu.RLock()
	snap.NextID = s.memoryStore.nextID
	s.memoryStore.mu.RUnlock()

	s.fmu.Lock()
	defer s.fmu.Unlock()
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

func (s *fileStore) PutFilter(ctx context.Context, rec FilterRecord, words []string) (FilterRecord, error) {
	out, err := s.memoryStore.PutFilter(ctx, rec, words)
	if err != nil {
		return out, err
	}
	return out, s.persist(ctx)
}

func (s *fileStore) DeleteFilter(ctx context.Context, source string) (bool, error) {
	ok, err := s.memoryStore.DeleteFilter(ctx, source)
	if err != nil || !ok {
		return ok, err
	}
	return true, s.persist(ctx)
}

func (s *fileStore) AddMute(ctx context.Context, pkg string) error {
	if err := s.memoryStore.AddMute(ctx, pkg); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *fileStore) RemoveMute(ctx context.Context, pkg string) (bool, error) {
	ok, err := s.memoryStore.RemoveMute(ctx, pkg)
	if err != nil || !ok {
		return ok, err
	}
	return true, s.persist(ctx)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	_ = s.memoryStore.Close()
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
