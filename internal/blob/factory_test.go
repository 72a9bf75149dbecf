package blob

import (
	"context"
	"path/filepath"
	"testing"

	s3blob "clientcore/internal/infra/blob/s3"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, Options{FSRoot: filepath.Join(t.TempDir(), "blobs")})
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if st.Driver() != DriverFilesystem {
		t.Fatalf("expected fs default, got %s", st.Driver())
	}
	st, err = Open(ctx, Options{Driver: " Memory "})
	if err != nil || st.Driver() != DriverMemory {
		t.Fatalf("expected memory driver: %v", err)
	}
	st, err = Open(ctx, Options{Driver: DriverS3, S3: s3blob.Config{Bucket: "b", Endpoint: "http://127.0.0.1:1", PathStyle: true, AccessKeyID: "a", SecretAccessKey: "s"}})
	if err != nil || st.Driver() != DriverS3 {
		t.Fatalf("expected s3 driver: %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Options{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
