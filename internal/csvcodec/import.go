package csvcodec

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"clientcore/pkg/domain"
)

// Inserter receives decoded rows. *clientstore.Store satisfies it.
type Inserter interface {
	Insert(ctx context.Context, draft domain.ClientDraft) (domain.ClientRecord, error)
}

// RowFailure records a row that was not imported.
type RowFailure struct {
	Line int
	Err  error
}

// ImportSummary describes one import batch.
type ImportSummary struct {
	BatchID  uuid.UUID
	Inserted []domain.ClientRecord
	Failed   []RowFailure
}

// Import decodes text and inserts each good row in order. Malformed and
// invalid rows are collected in Failed. Any other insert error stops the
// batch and is returned; rows inserted before it stay inserted.
func Import(ctx context.Context, ins Inserter, text string) (ImportSummary, error) {
	summary := ImportSummary{BatchID: uuid.New()}
	rows, errs := decodeRows(text)
	for _, err := range errs {
		var mr *domain.MalformedRowError
		line := 0
		if errors.As(err, &mr) {
			line = mr.Line
		}
		summary.Failed = append(summary.Failed, RowFailure{Line: line, Err: err})
	}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec, err := ins.Insert(ctx, r.draft)
		if err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				summary.Failed = append(summary.Failed, RowFailure{Line: r.line, Err: err})
				continue
			}
			return summary, err
		}
		summary.Inserted = append(summary.Inserted, rec)
	}
	return summary, nil
}
