package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"clientcore/internal/blob"
	"clientcore/internal/config"
	fsblob "clientcore/internal/infra/blob/fs"
	s3blob "clientcore/internal/infra/blob/s3"
	"clientcore/internal/infra/persistence/blobkv"
	"clientcore/internal/infra/persistence/memory"
	"clientcore/internal/infra/persistence/postgres"
	"clientcore/internal/infra/persistence/sqlite"
	"clientcore/internal/watch"
	"clientcore/pkg/domain"
)

// StateKeyPrefix prefixes record blobs kept in object storage.
const StateKeyPrefix = "state/"

// Persistence bundles the key-value adapter selected by configuration with the
// change notifier that goes with it. Notifier is nil when the driver cannot
// observe writes made by other processes.
type Persistence struct {
	Driver   string
	KV       domain.KVStore
	Notifier domain.ChangeNotifier
	closers  []func() error
}

// Close releases driver resources.
func (p *Persistence) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// OpenPersistence selects a backend from cfg.
//
//	memory:   process-local, handles notify each other
//	sqlite:   embedded file (default ./clientcore.db)
//	postgres: server, state table with JSONB payloads
//	fs:       one file per key under FSRoot, watched with fsnotify
//	s3:       one object per key in the configured bucket
func OpenPersistence(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*Persistence, error) {
	if log == nil {
		log = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = config.DriverSQLite
	}
	p := &Persistence{Driver: driver}
	switch driver {
	case config.DriverMemory:
		kv := memory.NewStore()
		p.KV, p.Notifier = kv, kv
	case config.DriverSQLite:
		st, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		p.KV = st
		p.closers = append(p.closers, st.Close)
	case config.DriverPostgres:
		st, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		p.KV = st
		p.closers = append(p.closers, st.Close)
	case config.DriverFS:
		fs, err := fsblob.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		kv := blobkv.New(fs, StateKeyPrefix)
		p.KV = kv
		p.Notifier = watch.NewFileNotifier(func(key string) (string, error) {
			return fs.PathFor(kv.BlobKey(key))
		}, watch.WithLogger(log.Named("watch")))
	case config.DriverS3:
		st, err := s3blob.New(ctx, s3Config(cfg.S3))
		if err != nil {
			return nil, err
		}
		p.KV = blobkv.New(st, StateKeyPrefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
	log.Debug("persistence opened", zap.String("driver", driver), zap.Bool("watchable", p.Notifier != nil))
	return p, nil
}

// OpenExportStore returns the blob store CSV exports are written to.
func OpenExportStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	return blob.Open(ctx, blob.Options{
		Driver: blob.Driver(cfg.Export.Driver),
		FSRoot: cfg.Export.FSRoot,
		S3:     s3Config(cfg.Storage.S3),
	})
}

func s3Config(c config.S3Config) s3blob.Config {
	return s3blob.Config{
		Region:          c.Region,
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PathStyle:       c.PathStyle,
	}
}
