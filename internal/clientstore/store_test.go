package clientstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"clientcore/internal/infra/persistence/memory"
	"clientcore/internal/observability"
	"clientcore/pkg/domain"
)

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(prefix string) bool {
	for _, call := range c.calls {
		if len(call) >= 2 && call[:2] == prefix {
			return true
		}
	}
	return false
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, opts ...Option) (*Store, *memory.Backend) {
	t.Helper()
	backend := memory.NewBackend()
	clk := &fixedClock{t: baseTime}
	opts = append([]Option{WithClock(clk.now)}, opts...)
	s, err := Open(context.Background(), backend.Open(), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, backend
}

func draft(name string, stage domain.Stage) domain.ClientDraft {
	return domain.ClientDraft{Name: name, Email: name + "@example.com", Phone: "555-0100", Stage: stage}
}

func persisted(t *testing.T, b *memory.Backend) []domain.ClientRecord {
	t.Helper()
	raw, ok := b.Raw(DefaultKey)
	if !ok {
		t.Fatalf("nothing persisted under %s", DefaultKey)
	}
	var out []domain.ClientRecord
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode persisted blob: %v", err)
	}
	return out
}

func TestOpenEmptyAndNilAdapter(t *testing.T) {
	s, _ := newStore(t)
	if s.Len() != 0 || len(s.All()) != 0 {
		t.Fatalf("expected empty store")
	}
	if s.Key() != DefaultKey {
		t.Fatalf("unexpected key %s", s.Key())
	}
	if _, err := Open(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil adapter")
	}
}

func TestInsertAssignsIDCreatedAndPersists(t *testing.T) {
	ctx := context.Background()
	s, backend := newStore(t)
	d := draft("ada", domain.StageLead)
	d.Tags = []string{" vip ", "", "vip", "repeat,customer"}
	rec, err := s.Insert(ctx, d)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.ID != baseTime.UnixMilli() {
		t.Fatalf("expected timestamp id, got %d", rec.ID)
	}
	if rec.Created != "2024-05-01T12:00:00.000Z" {
		t.Fatalf("unexpected created %s", rec.Created)
	}
	if diff := cmp.Diff([]string{"vip", "repeat,customer"}, rec.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.ClientRecord{rec}, persisted(t, backend)); diff != "" {
		t.Fatalf("persisted mismatch (-want +got):\n%s", diff)
	}

	reopened, err := Open(ctx, backend.Open())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if diff := cmp.Diff(s.All(), reopened.All()); diff != "" {
		t.Fatalf("reopened mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertKeepsSuppliedCreated(t *testing.T) {
	s, _ := newStore(t)
	d := draft("imported", domain.StageClosed)
	d.Created = "2020-01-02T03:04:05.000Z"
	rec, err := s.Insert(context.Background(), d)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.Created != d.Created {
		t.Fatalf("created overwritten: %s", rec.Created)
	}
}

func TestInsertValidation(t *testing.T) {
	s, backend := newStore(t)
	_, err := s.Insert(context.Background(), domain.ClientDraft{Name: "x", Email: "x@y"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "phone" {
		t.Fatalf("expected phone validation error, got %v", err)
	}
	if _, ok := backend.Raw(DefaultKey); ok {
		t.Fatalf("invalid insert must not persist")
	}
}

func TestIDsUniqueWhenClockStalls(t *testing.T) {
	s, _ := newStore(t)
	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		rec, err := s.Insert(context.Background(), draft("c", domain.StageLead))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if seen[rec.ID] {
			t.Fatalf("duplicate id %d", rec.ID)
		}
		seen[rec.ID] = true
	}
	if !seen[baseTime.UnixMilli()+2] {
		t.Fatalf("expected ids bumped by one, got %v", seen)
	}
}

func TestIDsNeverCollideWithLoadedRecords(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	future := baseTime.Add(time.Hour).UnixMilli()
	blob, _ := json.Marshal([]domain.ClientRecord{{ID: future, Name: "later", Tags: []string{}, Stage: domain.StageLead}})
	if err := backend.Open().Set(ctx, DefaultKey, string(blob)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	clk := &fixedClock{t: baseTime}
	s, err := Open(ctx, backend.Open(), WithClock(clk.now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec, err := s.Insert(ctx, draft("now", domain.StageLead))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.ID != future+1 {
		t.Fatalf("expected id past loaded max, got %d", rec.ID)
	}
}

func TestUpdateReplacesAndKeepsCreated(t *testing.T) {
	ctx := context.Background()
	s, backend := newStore(t)
	rec, _ := s.Insert(ctx, draft("bob", domain.StageLead))
	replacement := rec
	replacement.Name = "Robert"
	replacement.Tags = []string{"a", " a ", ""}
	replacement.Created = "1999-01-01T00:00:00.000Z"
	replacement.Notes = "called twice"
	got, err := s.Update(ctx, replacement)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := rec
	want.Name = "Robert"
	want.Tags = []string{"a"}
	want.Notes = "called twice"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("update mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.ClientRecord{want}, persisted(t, backend)); diff != "" {
		t.Fatalf("persisted mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Update(ctx, domain.ClientRecord{ID: rec.ID}); err == nil {
		t.Fatalf("expected validation error on blank update")
	}
}

func TestUpdateUnknownIDIsNoOpButPersists(t *testing.T) {
	ctx := context.Background()
	s, backend := newStore(t)
	ghost := domain.ClientRecord{ID: 42, Name: "ghost", Email: "g@h", Phone: "1", Stage: domain.StageLead}
	got, err := s.Update(ctx, ghost)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != 42 || s.Len() != 0 {
		t.Fatalf("expected no-op returning argument, got %+v len=%d", got, s.Len())
	}
	raw, ok := backend.Raw(DefaultKey)
	if !ok || raw != "[]" {
		t.Fatalf("expected unchanged sequence persisted, got %q %v", raw, ok)
	}
}

func TestRemoveAndIdempotentRemove(t *testing.T) {
	ctx := context.Background()
	s, backend := newStore(t)
	a, _ := s.Insert(ctx, draft("a", domain.StageLead))
	b, _ := s.Insert(ctx, draft("b", domain.StageLead))
	if err := s.Remove(ctx, a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	before := s.All()
	if err := s.Remove(ctx, a.ID); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if diff := cmp.Diff(before, s.All()); diff != "" {
		t.Fatalf("removing missing id changed contents:\n%s", diff)
	}
	if diff := cmp.Diff([]domain.ClientRecord{b}, persisted(t, backend)); diff != "" {
		t.Fatalf("persisted mismatch:\n%s", diff)
	}
	if _, ok := s.Get(a.ID); ok {
		t.Fatalf("removed record still retrievable")
	}
}

func TestMoveToStage(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec, _ := s.Insert(ctx, draft("dana", domain.StageLead))
	moved, err := s.MoveToStage(ctx, rec.ID, domain.StageProposal)
	if err != nil {
		t.Fatalf("MoveToStage: %v", err)
	}
	if moved.Stage != domain.StageProposal || moved.Created != rec.Created {
		t.Fatalf("unexpected moved record %+v", moved)
	}
	if got, _ := s.Get(rec.ID); got.Stage != domain.StageProposal {
		t.Fatalf("stage not stored")
	}
	if _, err := s.MoveToStage(ctx, 999, domain.StageClosed); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	log := &captureLogger{}
	s, backend := newStore(t, WithLogger(log))
	rec, _ := s.Insert(ctx, draft("keep", domain.StageLead))
	boom := errors.New("quota exceeded")
	backend.FailWrites(boom)

	var pe *domain.PersistenceError
	if _, err := s.Insert(ctx, draft("lost", domain.StageLead)); !errors.As(err, &pe) || !errors.Is(err, boom) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	changed := rec
	changed.Name = "changed"
	if _, err := s.Update(ctx, changed); !errors.As(err, &pe) {
		t.Fatalf("expected persistence error on update, got %v", err)
	}
	if err := s.Remove(ctx, rec.ID); !errors.As(err, &pe) {
		t.Fatalf("expected persistence error on remove, got %v", err)
	}
	if diff := cmp.Diff([]domain.ClientRecord{rec}, s.All()); diff != "" {
		t.Fatalf("memory ran ahead of storage:\n%s", diff)
	}
	if !log.has("e:") {
		t.Fatalf("expected persistence failure to be logged")
	}
}

func TestCorruptBlobDefaultAndStrict(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	if err := backend.Open().Set(ctx, DefaultKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	log := &captureLogger{}
	s, err := Open(ctx, backend.Open(), WithLogger(log))
	if err != nil {
		t.Fatalf("lenient open should succeed: %v", err)
	}
	if s.Len() != 0 || !log.has("w:") {
		t.Fatalf("expected empty store and warning, len=%d logs=%v", s.Len(), log.calls)
	}

	_, err = Open(ctx, backend.Open(), WithStrictLoad(true))
	var ce *domain.CorruptStoreError
	if !errors.As(err, &ce) || ce.Key != DefaultKey {
		t.Fatalf("expected corrupt store error, got %v", err)
	}
}

func TestStrictLoadLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	s, err := Open(ctx, backend.Open(), WithStrictLoad(true))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec, _ := s.Insert(ctx, draft("x", domain.StageLead))
	if err := backend.Open().Set(ctx, DefaultKey, "garbage"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := s.LoadAll(ctx); err == nil {
		t.Fatalf("expected strict load error")
	}
	if got, ok := s.Get(rec.ID); !ok || got.Name != "x" {
		t.Fatalf("memory changed after failed strict load")
	}
}

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingKV) Set(context.Context, string, string) error         { return f.err }

func TestReadFailureIsPersistenceError(t *testing.T) {
	_, err := Open(context.Background(), failingKV{err: errors.New("io")})
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) || pe.Op != "get" {
		t.Fatalf("expected get persistence error, got %v", err)
	}
}

func TestWithKeyIsolatesCollections(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	a, _ := Open(ctx, backend.Open(), WithKey("crm-a"))
	b, _ := Open(ctx, backend.Open(), WithKey(" "))
	if _, err := a.Insert(ctx, draft("a", domain.StageLead)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := b.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if b.Len() != 0 || b.Key() != DefaultKey {
		t.Fatalf("expected isolated default-key store, len=%d key=%s", b.Len(), b.Key())
	}
	if _, ok := backend.Raw("crm-a"); !ok {
		t.Fatalf("expected data under custom key")
	}
}

func TestReloadReportsChanges(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	s, _ := Open(ctx, backend.Open())
	other, _ := Open(ctx, backend.Open())
	if changed, err := s.Reload(ctx); err != nil || changed {
		t.Fatalf("expected unchanged reload, got %v %v", changed, err)
	}
	if _, err := other.Insert(ctx, draft("remote", domain.StageContacted)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if changed, err := s.Reload(ctx); err != nil || !changed {
		t.Fatalf("expected changed reload, got %v %v", changed, err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected remote record, len=%d", s.Len())
	}
	if _, err := s.Insert(ctx, draft("local", domain.StageLead)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if changed, _ := s.Reload(ctx); changed {
		t.Fatalf("own write must not count as change")
	}
}

func TestWatchDeliversExternalChanges(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	tabA, _ := Open(ctx, backend.Open())
	tabBHandle := backend.Open()
	tabB, _ := Open(ctx, tabBHandle)

	updates := make(chan []domain.ClientRecord, 4)
	cancel, err := tabB.Watch(tabBHandle, func(recs []domain.ClientRecord) { updates <- recs })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cancel()

	rec, err := tabA.Insert(ctx, draft("shared", domain.StageQualified))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	select {
	case recs := <-updates:
		if diff := cmp.Diff([]domain.ClientRecord{rec}, recs); diff != "" {
			t.Fatalf("watch payload mismatch:\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change delivered")
	}
	if _, err := tabB.Insert(ctx, draft("own", domain.StageLead)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	backend.Flush()
	select {
	case recs := <-updates:
		t.Fatalf("own write delivered as external change: %v", recs)
	default:
	}
	if _, err := tabB.Watch(nil, nil); err == nil {
		t.Fatalf("expected nil notifier error")
	}
}

func TestObservabilityHooks(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewExpvarMetricsRecorder("")
	tracer := observability.NewJSONTracer(nil)
	s, backend := newStore(t, WithMetrics(metrics), WithTracer(tracer))
	rec, _ := s.Insert(ctx, draft("obs", domain.StageLead))
	backend.FailWrites(errors.New("down"))
	_ = s.Remove(ctx, rec.ID)

	snap := metrics.Snapshot()
	if snap["load"].Success != 1 || snap["insert"].Success != 1 || snap["remove"].Error != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
	entries := tracer.Entries()
	if len(entries) != 3 || entries[2].Operation != "remove" || entries[2].Status != "error" {
		t.Fatalf("unexpected spans %+v", entries)
	}
}
