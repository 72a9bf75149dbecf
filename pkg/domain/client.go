// Package domain defines the client record model, the persistence contracts the
// record store relies on and the error taxonomy shared by every layer.
package domain

import (
	"strings"
	"time"
)

// Stage names a pipeline phase a client moves through.
type Stage string

const (
	StageLead      Stage = "Lead"
	StageContacted Stage = "Contacted"
	StageQualified Stage = "Qualified"
	StageProposal  Stage = "Proposal"
	StageClosed    Stage = "Closed"
)

var defaultStages = []Stage{StageLead, StageContacted, StageQualified, StageProposal, StageClosed}

// DefaultStages returns the fixed pipeline in board order. The slice is a copy.
func DefaultStages() []Stage {
	out := make([]Stage, len(defaultStages))
	copy(out, defaultStages)
	return out
}

// Known reports whether the stage belongs to the fixed pipeline.
func (s Stage) Known() bool {
	for _, st := range defaultStages {
		if st == s {
			return true
		}
	}
	return false
}

// ParseStage matches a stage name case-insensitively against the fixed pipeline.
func ParseStage(raw string) (Stage, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, st := range defaultStages {
		if strings.EqualFold(string(st), trimmed) {
			return st, true
		}
	}
	return Stage(trimmed), false
}

// CreatedLayout is the ISO-8601 layout used for the created timestamp.
const CreatedLayout = "2006-01-02T15:04:05.000Z"

// FormatCreated renders t in CreatedLayout (UTC, millisecond precision).
func FormatCreated(t time.Time) string {
	return t.UTC().Format(CreatedLayout)
}

// ParseCreated parses a created timestamp. Any RFC 3339 value is accepted.
func ParseCreated(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ClientRecord is the unit of persisted data.
type ClientRecord struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Tags    []string `json:"tags"`
	Stage   Stage    `json:"stage"`
	Notes   string   `json:"notes,omitempty"`
	Created string   `json:"created"`
}

// ClientDraft is a record that has not been assigned an id yet.
type ClientDraft struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Tags    []string `json:"tags"`
	Stage   Stage    `json:"stage"`
	Notes   string   `json:"notes,omitempty"`
	Created string   `json:"created,omitempty"`
}

// Validate checks the required contact fields.
func (d ClientDraft) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return &ValidationError{Field: "name"}
	case strings.TrimSpace(d.Email) == "":
		return &ValidationError{Field: "email"}
	case strings.TrimSpace(d.Phone) == "":
		return &ValidationError{Field: "phone"}
	}
	return nil
}

// WithID promotes the draft to a record.
func (d ClientDraft) WithID(id int64) ClientRecord {
	return ClientRecord{
		ID:      id,
		Name:    d.Name,
		Email:   d.Email,
		Phone:   d.Phone,
		Tags:    cloneTags(d.Tags),
		Stage:   d.Stage,
		Notes:   d.Notes,
		Created: d.Created,
	}
}

// Draft strips the id.
func (r ClientRecord) Draft() ClientDraft {
	return ClientDraft{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Tags:    cloneTags(r.Tags),
		Stage:   r.Stage,
		Notes:   r.Notes,
		Created: r.Created,
	}
}

// Clone returns a deep copy of the record.
func (r ClientRecord) Clone() ClientRecord {
	r.Tags = cloneTags(r.Tags)
	return r
}

// NormalizeTags trims every tag and drops empties and repeats, keeping first-seen order.
// The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		t := strings.TrimSpace(tag)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
