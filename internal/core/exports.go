package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"clientcore/internal/blob"
	"clientcore/internal/errs"
)

// DefaultExportLinkExpiry bounds download links when the caller gives none.
const DefaultExportLinkExpiry = 15 * time.Minute

// ExportKey maps an export name such as clients-20240501T120000.000Z.csv to
// its blob key. A name that already carries the exports/ prefix is accepted.
func ExportKey(name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), ExportPrefix)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("invalid export name %q", name))
	}
	return ExportPrefix + name, nil
}

func (s *Service) exportStore() (blob.Store, error) {
	if s.opts.exports == nil {
		return nil, errs.New(errs.Unavailable, "no export store configured")
	}
	return s.opts.exports, nil
}

func exportErr(key string, err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		return errs.Wrap(errs.NotFound, fmt.Sprintf("export %s not found", strings.TrimPrefix(key, ExportPrefix)), err)
	}
	return fmt.Errorf("export %s: %w", key, err)
}

// OpenExport returns a stored export and its content. The caller closes the
// reader.
func (s *Service) OpenExport(ctx context.Context, name string) (blob.Info, io.ReadCloser, error) {
	store, err := s.exportStore()
	if err != nil {
		return blob.Info{}, nil, err
	}
	key, err := ExportKey(name)
	if err != nil {
		return blob.Info{}, nil, err
	}
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		return blob.Info{}, nil, exportErr(key, err)
	}
	return info, rc, nil
}

// ExportLink returns a time-limited download URL for a stored export. Stores
// that cannot sign URLs report errs.InvalidArgument wrapping
// blob.ErrUnsupported.
func (s *Service) ExportLink(ctx context.Context, name string, expiry time.Duration) (string, error) {
	store, err := s.exportStore()
	if err != nil {
		return "", err
	}
	key, err := ExportKey(name)
	if err != nil {
		return "", err
	}
	if _, err := store.Head(ctx, key); err != nil {
		return "", exportErr(key, err)
	}
	if expiry <= 0 {
		expiry = DefaultExportLinkExpiry
	}
	u, err := store.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
	if errors.Is(err, blob.ErrUnsupported) {
		return "", errs.Wrap(errs.InvalidArgument, fmt.Sprintf("%s export store cannot issue download links", store.Driver()), err)
	}
	if err != nil {
		return "", exportErr(key, err)
	}
	return u, nil
}

// DeleteExport removes a stored export.
func (s *Service) DeleteExport(ctx context.Context, name string) error {
	store, err := s.exportStore()
	if err != nil {
		return err
	}
	key, err := ExportKey(name)
	if err != nil {
		return err
	}
	existed, err := store.Delete(ctx, key)
	if err != nil {
		return exportErr(key, err)
	}
	if !existed {
		return exportErr(key, blob.ErrNotFound)
	}
	s.opts.log.Info("export deleted", zap.String("key", key))
	return nil
}
