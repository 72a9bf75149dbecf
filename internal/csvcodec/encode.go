// Package csvcodec converts client records to and from the CSV export format:
// a fixed header followed by one fully quoted line per record.
package csvcodec

import (
	"io"
	"strings"

	"clientcore/pkg/domain"
)

// Header lists the exported columns in order. The id is internal and never
// exported; imports always receive fresh ids.
var Header = []string{"name", "email", "phone", "tags", "stage", "notes", "created"}

// TagSeparator joins tags inside the single tags column.
const TagSeparator = ";"

// Encode renders records with the header line first. Lines are joined with
// "\n" and there is no trailing newline.
func Encode(records []domain.ClientRecord) string {
	var b strings.Builder
	_ = EncodeTo(&b, records)
	return b.String()
}

// EncodeTo writes the Encode output to w.
func EncodeTo(w io.Writer, records []domain.ClientRecord) error {
	if _, err := io.WriteString(w, strings.Join(Header, ",")); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := io.WriteString(w, "\n"+encodeRow(rec)); err != nil {
			return err
		}
	}
	return nil
}

func encodeRow(rec domain.ClientRecord) string {
	values := []string{
		rec.Name,
		rec.Email,
		rec.Phone,
		strings.Join(rec.Tags, TagSeparator),
		string(rec.Stage),
		rec.Notes,
		rec.Created,
	}
	for i, v := range values {
		values[i] = quote(v)
	}
	return strings.Join(values, ",")
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
