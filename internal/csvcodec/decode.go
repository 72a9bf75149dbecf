package csvcodec

import (
	"errors"
	"strings"

	"clientcore/pkg/domain"
)

type tokState int

const (
	stateUnquoted tokState = iota
	stateQuoted
	stateQuotedSawQuote
)

// rawRecord is one tokenized record. line is the physical line it starts on.
type rawRecord struct {
	line   int
	fields []string
	reason string
	blank  bool
}

const (
	reasonUnterminated = "unterminated quoted field"
	reasonStray        = "unexpected character after closing quote"
)

// tokenize splits text into records with a quote-aware state machine. Newlines
// inside quotes belong to the field; a newline (\n or \r\n) outside quotes ends
// the record. A record whose opening quote never closes properly is reported
// on its first line, and scanning resumes on the line after it.
func tokenize(text string) []rawRecord {
	var out []rawRecord
	pos, line := 0, 1
	for pos < len(text) {
		var rec rawRecord
		rec, pos, line = scanRecord(text, pos, line)
		out = append(out, rec)
	}
	return out
}

// scanRecord reads one record starting at byte offset start on line startLine
// and returns it with the offset and line number where the next one begins.
// Delimiters are ASCII, so scanning bytes never splits a UTF-8 sequence.
func scanRecord(text string, start, startLine int) (rawRecord, int, int) {
	var (
		rec     = rawRecord{line: startLine}
		field   strings.Builder
		state   = stateUnquoted
		line    = startLine
		touched bool // the record holds a quote or delimiter, so it is not blank
	)
	finish := func(next, nextLine int) (rawRecord, int, int) {
		rec.fields = append(rec.fields, field.String())
		rec.blank = !touched && rec.reason == "" && len(rec.fields) == 1 && strings.TrimSpace(rec.fields[0]) == ""
		return rec, next, nextLine
	}
	abandon := func() (rawRecord, int, int) {
		next := lineEnd(text, start)
		return rawRecord{line: startLine, fields: rec.fields, reason: reasonUnterminated}, next, startLine + 1
	}
	for i := start; i < len(text); i++ {
		c := text[i]
		if state == stateQuoted {
			if c == '"' {
				state = stateQuotedSawQuote
				continue
			}
			if c == '\n' {
				line++
			}
			field.WriteByte(c)
			continue
		}
		if n := newlineAt(text, i); n > 0 {
			return finish(i+n, line+1)
		}
		if state == stateQuotedSawQuote {
			switch c {
			case '"':
				field.WriteByte('"')
				state = stateQuoted
				continue
			case ',':
				rec.fields = append(rec.fields, field.String())
				field.Reset()
				state = stateUnquoted
				continue
			}
			if line != startLine {
				return abandon()
			}
			rec.reason = reasonStray
			return finish(lineEnd(text, i), line+1)
		}
		switch {
		case c == ',':
			touched = true
			rec.fields = append(rec.fields, field.String())
			field.Reset()
		case c == '"' && field.Len() == 0:
			touched = true
			state = stateQuoted
		default:
			field.WriteByte(c)
		}
	}
	if state == stateQuoted {
		return abandon()
	}
	return finish(len(text), line)
}

// newlineAt reports the width of a record terminator at i, or 0.
func newlineAt(text string, i int) int {
	switch {
	case text[i] == '\n':
		return 1
	case text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n':
		return 2
	}
	return 0
}

// lineEnd returns the offset just past the first newline at or after i, or
// len(text) when there is none.
func lineEnd(text string, i int) int {
	if j := strings.IndexByte(text[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(text)
}

// row is a decoded data line and the line it started on.
type row struct {
	line  int
	draft domain.ClientDraft
}

// decodeRows maps every data record by header name. Malformed records are
// reported and skipped.
func decodeRows(text string) ([]row, []error) {
	text = strings.TrimPrefix(text, "\uFEFF")
	records := tokenize(text)

	var header *rawRecord
	var rows []row
	var errs []error
	var cols []string
	for i := range records {
		rec := records[i]
		if rec.blank {
			continue
		}
		if header == nil {
			if rec.reason != "" {
				return nil, []error{&domain.MalformedRowError{Line: rec.line, Got: len(rec.fields), Reason: "header: " + rec.reason}}
			}
			header = &records[i]
			cols = make([]string, len(rec.fields))
			for j, name := range rec.fields {
				cols[j] = strings.ToLower(strings.TrimSpace(name))
			}
			continue
		}
		if rec.reason != "" {
			errs = append(errs, &domain.MalformedRowError{Line: rec.line, Want: len(cols), Got: len(rec.fields), Reason: rec.reason})
			continue
		}
		if len(rec.fields) != len(cols) {
			errs = append(errs, &domain.MalformedRowError{Line: rec.line, Want: len(cols), Got: len(rec.fields)})
			continue
		}
		rows = append(rows, row{line: rec.line, draft: draftFrom(cols, rec.fields)})
	}
	return rows, errs
}

func draftFrom(cols, fields []string) domain.ClientDraft {
	d := domain.ClientDraft{Tags: []string{}}
	for i, col := range cols {
		v := fields[i]
		switch col {
		case "name":
			d.Name = v
		case "email":
			d.Email = v
		case "phone":
			d.Phone = v
		case "tags":
			d.Tags = domain.NormalizeTags(strings.Split(v, TagSeparator))
		case "stage":
			d.Stage, _ = domain.ParseStage(v)
		case "notes":
			d.Notes = v
		case "created":
			d.Created = strings.TrimSpace(v)
		}
	}
	return d
}

// Decode parses CSV text into drafts. The first non-blank line is the header;
// columns are matched by name and unknown ones ignored. Bad rows do not stop
// decoding: the good drafts are returned along with errors.Join of one
// *domain.MalformedRowError per bad row.
func Decode(text string) ([]domain.ClientDraft, error) {
	rows, errs := decodeRows(text)
	drafts := make([]domain.ClientDraft, len(rows))
	for i, r := range rows {
		drafts[i] = r.draft
	}
	return drafts, errors.Join(errs...)
}
