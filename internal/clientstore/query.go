package clientstore

import (
	"slices"
	"strings"

	"clientcore/pkg/domain"
)

// Predicate selects records.
type Predicate func(domain.ClientRecord) bool

// StageIs matches records in stage.
func StageIs(stage domain.Stage) Predicate {
	return func(r domain.ClientRecord) bool { return r.Stage == stage }
}

// TextContains matches records whose name or email contains q, ignoring case.
// An empty q matches everything.
func TextContains(q string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(q))
	return func(r domain.ClientRecord) bool {
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(r.Name), needle) ||
			strings.Contains(strings.ToLower(r.Email), needle)
	}
}

// And matches records accepted by every predicate.
func And(preds ...Predicate) Predicate {
	return func(r domain.ClientRecord) bool {
		for _, p := range preds {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// Search combines the board filter and search box: an empty stage or query
// does not restrict.
func Search(stage domain.Stage, q string) Predicate {
	preds := []Predicate{TextContains(q)}
	if stage != "" {
		preds = append(preds, StageIs(stage))
	}
	return And(preds...)
}

// Filter returns copies of the matching records in their stored order.
func (s *Store) Filter(pred Predicate) []domain.ClientRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClientRecord, 0, len(s.records))
	for _, rec := range s.records {
		if pred == nil || pred(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// SortByCreatedDescending returns a newest-first copy of records. Equal or
// unparsable timestamps keep their input order; unparsable ones sort last.
func SortByCreatedDescending(records []domain.ClientRecord) []domain.ClientRecord {
	type keyed struct {
		rec domain.ClientRecord
		ts  int64
		ok  bool
	}
	items := make([]keyed, len(records))
	for i, rec := range records {
		t, ok := domain.ParseCreated(rec.Created)
		items[i] = keyed{rec: rec.Clone(), ok: ok}
		if ok {
			items[i].ts = t.UnixNano()
		}
	}
	slices.SortStableFunc(items, func(a, b keyed) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		case !a.ok && !b.ok:
			return 0
		case a.ts > b.ts:
			return -1
		case a.ts < b.ts:
			return 1
		}
		return 0
	})
	out := make([]domain.ClientRecord, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}
