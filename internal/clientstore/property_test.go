package clientstore

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"

	"clientcore/internal/infra/persistence/memory"
	"clientcore/pkg/domain"
)

func TestIDsPairwiseDistinctProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := baseTime
		s, err := Open(ctx, memory.NewStore(), WithClock(func() time.Time { return clock }))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			// the clock may stall, advance or go backwards
			clock = clock.Add(time.Duration(rapid.IntRange(-5, 5).Draw(t, "skew_ms")) * time.Millisecond)
			if rapid.IntRange(0, 4).Draw(t, "op") == 0 && s.Len() > 0 {
				all := s.All()
				victim := all[rapid.IntRange(0, len(all)-1).Draw(t, "victim")]
				if err := s.Remove(ctx, victim.ID); err != nil {
					t.Fatalf("Remove: %v", err)
				}
				continue
			}
			if _, err := s.Insert(ctx, domain.ClientDraft{Name: "n", Email: "e", Phone: "p", Stage: domain.StageLead}); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		seen := map[int64]bool{}
		for _, rec := range s.All() {
			if seen[rec.ID] {
				t.Fatalf("duplicate id %d", rec.ID)
			}
			seen[rec.ID] = true
		}
	})
}

func TestRemoveMissingIsIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s, err := Open(ctx, memory.NewStore())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		n := rapid.IntRange(0, 8).Draw(t, "n")
		ids := map[int64]bool{}
		for i := 0; i < n; i++ {
			rec, err := s.Insert(ctx, domain.ClientDraft{Name: "n", Email: "e", Phone: "p"})
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			ids[rec.ID] = true
		}
		missing := rapid.Int64().Filter(func(id int64) bool { return !ids[id] }).Draw(t, "missing")
		before := s.All()
		if err := s.Remove(ctx, missing); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		after := s.All()
		if len(before) != len(after) {
			t.Fatalf("length changed %d -> %d", len(before), len(after))
		}
		for i := range before {
			if before[i].ID != after[i].ID {
				t.Fatalf("order or content changed at %d", i)
			}
		}
	})
}
