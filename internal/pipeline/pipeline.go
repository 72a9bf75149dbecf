// Package pipeline aggregates client records by stage for the board, the CLI
// chart and the metrics endpoint.
package pipeline

import (
	"fmt"
	"io"
	"strings"

	"clientcore/pkg/domain"
)

// CountsByStage counts records per stage in one pass. The result has one entry
// per listed stage, in order, with zeros included; a stage listed twice gets
// its count twice. Records whose stage is not listed are not counted.
func CountsByStage(records []domain.ClientRecord, stages []domain.Stage) []int {
	byStage := tally(records)
	counts := make([]int, len(stages))
	for i, st := range stages {
		counts[i] = byStage[st]
	}
	return counts
}

func tally(records []domain.ClientRecord) map[domain.Stage]int {
	byStage := make(map[domain.Stage]int)
	for _, rec := range records {
		byStage[rec.Stage]++
	}
	return byStage
}

// Bucket is the count for one stage.
type Bucket struct {
	Stage domain.Stage `json:"stage"`
	Count int          `json:"count"`
}

// Summary is the pipeline view of a record collection.
type Summary struct {
	Buckets  []Bucket `json:"buckets"`
	Total    int      `json:"total"`
	Unstaged int      `json:"unstaged"`
}

// Summarize builds per-stage buckets plus the total and the number of records
// outside stages.
func Summarize(records []domain.ClientRecord, stages []domain.Stage) Summary {
	s := Summary{Buckets: make([]Bucket, len(stages)), Total: len(records), Unstaged: len(records)}
	byStage := tally(records)
	seen := make(map[domain.Stage]bool, len(stages))
	for i, st := range stages {
		s.Buckets[i] = Bucket{Stage: st, Count: byStage[st]}
		if !seen[st] {
			seen[st] = true
			s.Unstaged -= byStage[st]
		}
	}
	return s
}

// RenderBars writes one horizontal bar per bucket, scaled so the largest count
// spans width cells. Non-zero counts always get at least one cell.
func RenderBars(w io.Writer, s Summary, width int) error {
	if width < 1 {
		width = 40
	}
	top, label := 0, 0
	for _, b := range s.Buckets {
		if b.Count > top {
			top = b.Count
		}
		if n := len(b.Stage); n > label {
			label = n
		}
	}
	for _, b := range s.Buckets {
		cells := 0
		if top > 0 {
			cells = b.Count * width / top
			if cells == 0 && b.Count > 0 {
				cells = 1
			}
		}
		line := fmt.Sprintf("%-*s | %s %d\n", label, b.Stage, strings.Repeat("#", cells), b.Count)
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	if s.Unstaged > 0 {
		if _, err := fmt.Fprintf(w, "(%d outside pipeline)\n", s.Unstaged); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total %d\n", s.Total)
	return err
}
