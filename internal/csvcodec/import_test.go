package csvcodec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"clientcore/internal/clientstore"
	"clientcore/internal/infra/persistence/memory"
	"clientcore/pkg/domain"
)

func openStore(t *testing.T) (*clientstore.Store, *memory.Backend) {
	t.Helper()
	kv := memory.NewStore()
	st, err := clientstore.Open(context.Background(), kv)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st, kv.Backend()
}

func TestImportInsertsGoodRowsAndCollectsFailures(t *testing.T) {
	st, _ := openStore(t)
	text := strings.Join([]string{
		`name,email,phone,stage,created`,
		`"Ann","ann@example.com","1","Proposal","2023-01-02T03:04:05.000Z"`,
		`"","nobody@example.com","2","Lead",""`,
		`"Bob","bob@example.com"`,
		`"Cid","cid@example.com","3","",""`,
	}, "\n")
	summary, err := Import(context.Background(), st, text)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if summary.BatchID == uuid.Nil {
		t.Fatalf("expected a batch id")
	}
	if len(summary.Inserted) != 2 || st.Len() != 2 {
		t.Fatalf("expected 2 inserted, got %d (store %d)", len(summary.Inserted), st.Len())
	}
	ann := summary.Inserted[0]
	if ann.Name != "Ann" || ann.Stage != domain.StageProposal || ann.Created != "2023-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected first record %+v", ann)
	}
	if summary.Inserted[1].ID <= ann.ID {
		t.Fatalf("ids should increase: %d then %d", ann.ID, summary.Inserted[1].ID)
	}
	if len(summary.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %+v", summary.Failed)
	}
	lines := map[int]error{}
	for _, f := range summary.Failed {
		lines[f.Line] = f.Err
	}
	var mr *domain.MalformedRowError
	if !errors.As(lines[4], &mr) {
		t.Fatalf("line 4 should be malformed, got %v", lines[4])
	}
	var ve *domain.ValidationError
	if !errors.As(lines[3], &ve) || ve.Field != "name" {
		t.Fatalf("line 3 should fail validation, got %v", lines[3])
	}
}

func TestImportStopsOnPersistenceFailure(t *testing.T) {
	st, backend := openStore(t)
	backend.FailWrites(errors.New("quota exceeded"))
	text := "name,email,phone\n\"Ann\",\"a@b\",\"1\"\n\"Bob\",\"b@c\",\"2\""
	summary, err := Import(context.Background(), st, text)
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(summary.Inserted) != 0 || st.Len() != 0 {
		t.Fatalf("nothing should be inserted, got %d", st.Len())
	}
}

func TestImportHonoursCancelledContext(t *testing.T) {
	st, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Import(ctx, st, "name,email,phone\n\"Ann\",\"a@b\",\"1\"")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("cancelled import must not insert")
	}
}

func TestImportExportRoundTripThroughStore(t *testing.T) {
	src, _ := openStore(t)
	for _, rec := range fixtureRecords() {
		if _, err := src.Insert(context.Background(), rec.Draft()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	dst, _ := openStore(t)
	summary, err := Import(context.Background(), dst, Encode(src.All()))
	if err != nil || len(summary.Failed) != 0 {
		t.Fatalf("Import: %v %+v", err, summary.Failed)
	}
	if Encode(dst.All()) != Encode(src.All()) {
		t.Fatalf("export after import differs:\n%s\n---\n%s", Encode(dst.All()), Encode(src.All()))
	}
}
