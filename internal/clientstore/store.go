// Package clientstore holds the authoritative in-memory client collection and
// mirrors it, write-through, to a key-value persistence adapter.
package clientstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"clientcore/pkg/domain"
)

// Store owns the client records of one session. The persisted blob is a
// mirror that is fully overwritten after every mutation.
type Store struct {
	mu       sync.RWMutex
	kv       domain.KVStore
	opts     options
	records  []domain.ClientRecord
	lastID   int64
	lastBlob string // serialized form last read from or written to kv
}

// Open constructs a store over kv and loads the persisted collection.
func Open(ctx context.Context, kv domain.KVStore, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("clientstore: nil persistence adapter")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{kv: kv, opts: o, records: []domain.ClientRecord{}}
	if _, err := s.LoadAll(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Key returns the persistence key.
func (s *Store) Key() string { return s.opts.key }

// LoadAll replaces memory with the persisted collection and returns a copy of it.
func (s *Store) LoadAll(ctx context.Context) (_ []domain.ClientRecord, err error) {
	ctx, done := s.observe(ctx, "load")
	defer func() { done(err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.loadLocked(ctx, true); err != nil {
		return nil, err
	}
	return cloneRecords(s.records), nil
}

// Reload re-reads the persisted blob and reports whether it differed from what
// this store last read or wrote.
func (s *Store) Reload(ctx context.Context) (changed bool, err error) {
	ctx, done := s.observe(ctx, "reload")
	defer func() { done(err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, false)
}

func (s *Store) loadLocked(ctx context.Context, force bool) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, s.opts.key)
	if err != nil {
		s.opts.log.Error("read persisted clients", "key", s.opts.key, "error", err)
		return false, &domain.PersistenceError{Op: "get", Key: s.opts.key, Err: err}
	}
	if !ok {
		raw = ""
	}
	if !force && raw == s.lastBlob {
		return false, nil
	}
	records, err := decodeBlob(raw)
	if err != nil {
		if s.opts.strict {
			return false, &domain.CorruptStoreError{Key: s.opts.key, Err: err}
		}
		s.opts.log.Warn("persisted clients unreadable, starting empty", "key", s.opts.key, "error", err)
		records = []domain.ClientRecord{}
	}
	s.records = records
	s.lastBlob = raw
	for _, rec := range records {
		if rec.ID > s.lastID {
			s.lastID = rec.ID
		}
	}
	s.opts.log.Debug("loaded clients", "key", s.opts.key, "count", len(records))
	return true, nil
}

func decodeBlob(raw string) ([]domain.ClientRecord, error) {
	if raw == "" {
		return []domain.ClientRecord{}, nil
	}
	var records []domain.ClientRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, err
	}
	out := make([]domain.ClientRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// Insert validates the draft, assigns a fresh id and created timestamp, and
// persists the grown collection.
func (s *Store) Insert(ctx context.Context, draft domain.ClientDraft) (_ domain.ClientRecord, err error) {
	ctx, done := s.observe(ctx, "insert")
	defer func() { done(err) }()
	if err := draft.Validate(); err != nil {
		return domain.ClientRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := draft.WithID(s.nextIDLocked())
	rec.Tags = domain.NormalizeTags(rec.Tags)
	if rec.Created == "" {
		rec.Created = domain.FormatCreated(s.opts.now())
	}
	next := make([]domain.ClientRecord, len(s.records), len(s.records)+1)
	copy(next, s.records)
	next = append(next, rec)
	if err := s.commitLocked(ctx, next); err != nil {
		return domain.ClientRecord{}, err
	}
	s.opts.log.Info("client inserted", "id", rec.ID, "stage", string(rec.Stage))
	return rec.Clone(), nil
}

// nextIDLocked returns a millisecond timestamp id, bumped past the largest id
// seen so ids stay unique when the clock stalls or goes backwards.
func (s *Store) nextIDLocked() int64 {
	id := s.opts.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Update replaces the record with the same id. The stored created timestamp is
// kept. An unknown id leaves the collection unchanged but still persists it.
func (s *Store) Update(ctx context.Context, rec domain.ClientRecord) (_ domain.ClientRecord, err error) {
	ctx, done := s.observe(ctx, "update")
	defer func() { done(err) }()
	if err := rec.Draft().Validate(); err != nil {
		return domain.ClientRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, rec)
}

func (s *Store) updateLocked(ctx context.Context, rec domain.ClientRecord) (domain.ClientRecord, error) {
	idx := s.indexLocked(rec.ID)
	if idx < 0 {
		s.opts.log.Debug("update of unknown client", "id", rec.ID)
		if err := s.commitLocked(ctx, s.records); err != nil {
			return domain.ClientRecord{}, err
		}
		return rec.Clone(), nil
	}
	stored := rec.Clone()
	stored.Tags = domain.NormalizeTags(stored.Tags)
	stored.Created = s.records[idx].Created
	next := cloneRecords(s.records)
	next[idx] = stored
	if err := s.commitLocked(ctx, next); err != nil {
		return domain.ClientRecord{}, err
	}
	return stored.Clone(), nil
}

// MoveToStage sets the stage of an existing record.
func (s *Store) MoveToStage(ctx context.Context, id int64, stage domain.Stage) (_ domain.ClientRecord, err error) {
	ctx, done := s.observe(ctx, "move_stage")
	defer func() { done(err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.ClientRecord{}, fmt.Errorf("move client %d: %w", id, domain.ErrClientNotFound)
	}
	rec := s.records[idx].Clone()
	from := rec.Stage
	rec.Stage = stage
	out, err := s.updateLocked(ctx, rec)
	if err != nil {
		return domain.ClientRecord{}, err
	}
	s.opts.log.Info("client moved", "id", id, "from", string(from), "to", string(stage))
	return out, nil
}

// Remove deletes the record with id. An unknown id is not an error; the
// unchanged collection is persisted anyway.
func (s *Store) Remove(ctx context.Context, id int64) (err error) {
	ctx, done := s.observe(ctx, "remove")
	defer func() { done(err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.ClientRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.ID != id {
			next = append(next, rec)
		}
	}
	return s.commitLocked(ctx, next)
}

// commitLocked persists next and adopts it only when the write succeeded.
func (s *Store) commitLocked(ctx context.Context, next []domain.ClientRecord) error {
	blob, err := json.Marshal(next)
	if err != nil {
		return &domain.PersistenceError{Op: "encode", Key: s.opts.key, Err: err}
	}
	if err := s.kv.Set(ctx, s.opts.key, string(blob)); err != nil {
		s.opts.log.Error("persist clients", "key", s.opts.key, "error", err)
		return &domain.PersistenceError{Op: "set", Key: s.opts.key, Err: err}
	}
	s.records = next
	s.lastBlob = string(blob)
	return nil
}

// All returns a copy of every record in insertion order.
func (s *Store) All() []domain.ClientRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records)
}

// Get returns a copy of the record with id.
func (s *Store) Get(id int64) (domain.ClientRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.ClientRecord{}, false
	}
	return s.records[idx].Clone(), true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Watch reloads whenever notifier reports an external write and hands the
// fresh records to onChange when the content actually changed.
func (s *Store) Watch(notifier domain.ChangeNotifier, onChange func([]domain.ClientRecord)) (func(), error) {
	if notifier == nil {
		return nil, errors.New("clientstore: nil notifier")
	}
	return notifier.Subscribe(s.opts.key, func() {
		changed, err := s.Reload(context.Background())
		if err != nil {
			s.opts.log.Warn("reload after external change", "key", s.opts.key, "error", err)
			return
		}
		if changed {
			s.opts.log.Info("clients changed externally", "key", s.opts.key, "count", s.Len())
			if onChange != nil {
				onChange(s.All())
			}
		}
	})
}

func (s *Store) indexLocked(id int64) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) observe(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := s.opts.tracer.Start(ctx, op)
	start := time.Now()
	return ctx, func(err error) {
		span.End(err)
		s.opts.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
}

func cloneRecords(in []domain.ClientRecord) []domain.ClientRecord {
	out := make([]domain.ClientRecord, len(in))
	for i, rec := range in {
		out[i] = rec.Clone()
	}
	return out
}
