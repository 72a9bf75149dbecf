// Package memory provides a process-local key-value backend. A Backend plays
// the role of the shared browser storage area; every Open call returns a
// handle behaving like one tab. Writes through a handle notify subscribers on
// the other handles, never the writer itself. Notifications are queued on
// their own goroutine, so a subscriber may take locks the writer holds.
package memory

import (
	"context"
	"sync"

	"clientcore/pkg/domain"
)

var (
	_ domain.KVStore        = (*Store)(nil)
	_ domain.ChangeNotifier = (*Store)(nil)
)

// Backend is the shared storage area.
type Backend struct {
	mu       sync.RWMutex
	data     map[string]string
	subs     map[string]map[int]subscription
	nextSub  int
	writeErr error
	pending  sync.WaitGroup
}

type subscription struct {
	owner *Store
	fn    func()
}

// NewBackend returns an empty shared storage area.
func NewBackend() *Backend {
	return &Backend{data: make(map[string]string), subs: make(map[string]map[int]subscription)}
}

// Open returns a new handle onto the backend.
func (b *Backend) Open() *Store { return &Store{backend: b} }

// FailWrites makes every subsequent Set return err. A nil err restores normal
// writes. Used to exercise persistence failure paths.
func (b *Backend) FailWrites(err error) {
	b.mu.Lock()
	b.writeErr = err
	b.mu.Unlock()
}

// Flush waits until every queued notification has been delivered.
func (b *Backend) Flush() { b.pending.Wait() }

// Raw returns the stored value for key, bypassing handles.
func (b *Backend) Raw(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	return v, ok
}

// Store is a handle onto a Backend.
type Store struct {
	backend *Backend
}

// NewStore returns a handle on a fresh private backend.
func NewStore() *Store { return NewBackend().Open() }

// Backend returns the shared area behind the handle.
func (s *Store) Backend() *Backend { return s.backend }

// Get returns the value under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := s.backend.Raw(key)
	return v, ok, nil
}

// Set writes value under key and notifies subscribers held by other handles.
// Writing an identical value is silent.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := s.backend
	b.mu.Lock()
	if b.writeErr != nil {
		err := b.writeErr
		b.mu.Unlock()
		return err
	}
	prev, existed := b.data[key]
	b.data[key] = value
	var notify []func()
	if !existed || prev != value {
		for _, sub := range b.subs[key] {
			if sub.owner != s {
				notify = append(notify, sub.fn)
			}
		}
	}
	b.mu.Unlock()
	for _, fn := range notify {
		b.pending.Add(1)
		go func() {
			defer b.pending.Done()
			fn()
		}()
	}
	return nil
}

// Subscribe registers fn for writes to key made through other handles.
func (s *Store) Subscribe(key string, fn func()) (func(), error) {
	b := s.backend
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]subscription)
	}
	b.subs[key][id] = subscription{owner: s, fn: fn}
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[key], id)
			b.mu.Unlock()
		})
	}, nil
}
