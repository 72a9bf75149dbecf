// Package blobkv adapts a blob Store to the key-value persistence contract.
// Each key is one object holding the serialized JSON array.
package blobkv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"clientcore/internal/blob/core"
	"clientcore/pkg/domain"
)

var _ domain.KVStore = (*Store)(nil)

const contentType = "application/json"

// Store keeps values as blobs, optionally under a key prefix.
type Store struct {
	blobs  core.Store
	prefix string
}

// New wraps blobs. prefix is prepended to every key.
func New(blobs core.Store, prefix string) *Store {
	return &Store{blobs: blobs, prefix: prefix}
}

// BlobKey returns the object key backing key.
func (s *Store) BlobKey(key string) string { return s.prefix + key }

// Blobs exposes the wrapped blob store.
func (s *Store) Blobs() core.Store { return s.blobs }

// Get reads the object under key. A missing object reports ok=false.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	_, rc, err := s.blobs.Get(ctx, s.BlobKey(key))
	if errors.Is(err, core.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", false, fmt.Errorf("read blob %s: %w", s.BlobKey(key), err)
	}
	return string(b), true, nil
}

// Set replaces the object under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.blobs.Put(ctx, s.BlobKey(key), strings.NewReader(value), core.PutOptions{ContentType: contentType})
	return err
}
