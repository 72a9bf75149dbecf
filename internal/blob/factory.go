package blob

import (
	"context"
	"fmt"
	"strings"

	fsblob "clientcore/internal/infra/blob/fs"
	memblob "clientcore/internal/infra/blob/memory"
	s3blob "clientcore/internal/infra/blob/s3"
)

// Options selects and configures a blob driver. An empty Driver means fs.
type Options struct {
	Driver Driver
	FSRoot string
	S3     s3blob.Config
}

// Open returns the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(string(opts.Driver))))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fsblob.New(opts.FSRoot)
	case DriverS3:
		return s3blob.New(ctx, opts.S3)
	case DriverMemory:
		return memblob.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", opts.Driver)
	}
}
