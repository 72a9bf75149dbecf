package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"
)

func TestStubConnUpsertAndFilteredSelect(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	upsert := "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	for _, args := range [][]driver.NamedValue{
		{{Value: "crm"}, {Value: "[]"}},
		{{Value: "other"}, {Value: "x"}},
		{{Value: "crm"}, {Value: "[1]"}},
	} {
		if _, err := conn.ExecContext(ctx, upsert, args); err != nil {
			t.Fatalf("ExecContext: %v", err)
		}
	}
	if len(conn.Tables["state"]) != 2 {
		t.Fatalf("expected two rows after upsert, got %v", conn.Tables["state"])
	}
	rows, err := conn.QueryContext(ctx, "SELECT payload FROM state WHERE bucket = $1", []driver.NamedValue{{Value: "crm"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "[1]" {
		t.Fatalf("unexpected payload %v", dest[0])
	}
	if err := rows.Next(dest); err != io.EOF {
		t.Fatalf("expected single row, got %v", err)
	}
}

func TestStubConnFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailExec = true
	if _, err := conn.ExecContext(ctx, "CREATE TABLE x (a TEXT)", nil); err == nil {
		t.Fatalf("expected exec failure")
	}
	conn.FailQuery = true
	if _, err := conn.QueryContext(ctx, "SELECT a FROM x", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	if _, err := parseSelect("UPDATE x"); err == nil {
		t.Fatalf("expected parse failure")
	}
}
