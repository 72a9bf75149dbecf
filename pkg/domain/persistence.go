package domain

import "context"

// KVStore is the persistence adapter contract: a key-value store holding one
// serialized blob per key. Get reports ok=false when the key is absent.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// ChangeNotifier delivers advisory notifications when the blob under key is
// rewritten by someone other than the subscriber. Notifications never carry data;
// subscribers reload. The returned cancel func is idempotent.
type ChangeNotifier interface {
	Subscribe(key string, fn func()) (cancel func(), err error)
}
