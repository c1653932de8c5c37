package natsclient

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamlytics/errors"
	"github.com/c360/streamlytics/pkg/retry"
)

// KVStore wraps a JetStream key-value bucket as the durable table
// collaborator: get/put/delete/iterate by key within a named bucket.
type KVStore struct {
	bucket  jetstream.KeyValue
	timeout time.Duration
	retry   retry.Config
}

// KVEntry is a single key-value entry with its revision
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOption configures a KVStore
type KVOption func(*KVStore)

// WithKVTimeout bounds each KV operation
func WithKVTimeout(d time.Duration) KVOption {
	return func(kv *KVStore) {
		if d > 0 {
			kv.timeout = d
		}
	}
}

// WithKVRetry sets the retry policy for compare-and-swap updates
func WithKVRetry(cfg retry.Config) KVOption {
	return func(kv *KVStore) {
		kv.retry = cfg
	}
}

// KeyValue opens (or creates) the named bucket and returns a store bound to it
func (c *Client) KeyValue(ctx context.Context, bucketName string, opts ...KVOption) (*KVStore, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, bucketName)
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		bucket, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucketName})
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "KeyValue", "open bucket "+bucketName)
	}

	kv := &KVStore{
		bucket:  bucket,
		timeout: 5 * time.Second,
		retry:   retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(kv)
	}
	return kv, nil
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, kv.timeout)
}

// Get retrieves the entry for key
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "KVStore", "Get", "lookup "+key)
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Get", "lookup "+key)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put stores value under key, returning the new revision
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Put", "store "+key)
	}
	return rev, nil
}

// Update performs a compare-and-swap write against an expected revision
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Update", "cas "+key)
	}
	return rev, nil
}

// UpdateWithRetry applies modify to the current value under a CAS loop,
// retrying on revision conflicts with backoff. modify receives nil when
// the key does not exist yet.
func (kv *KVStore) UpdateWithRetry(
	ctx context.Context, key string, modify func(current []byte) ([]byte, error),
) (uint64, error) {
	return retry.DoWithResult(ctx, kv.retry, func() (uint64, error) {
		var current []byte
		var revision uint64

		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current = entry.Value
			revision = entry.Revision
		case stderrors.Is(err, errors.ErrKeyNotFound):
			// First write for this key
		default:
			return 0, err
		}

		next, err := modify(current)
		if err != nil {
			return 0, retry.NonRetryable(err)
		}

		if revision == 0 {
			rev, cerr := kv.bucket.Create(ctx, key, next)
			if cerr != nil {
				return 0, errors.WrapTransient(cerr, "KVStore", "UpdateWithRetry", "create "+key)
			}
			return rev, nil
		}
		return kv.Update(ctx, key, next, revision)
	})
}

// Delete removes the entry for key
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		return errors.WrapTransient(err, "KVStore", "Delete", "delete "+key)
	}
	return nil
}

// Keys lists all keys currently present in the bucket
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if stderrors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Keys", "list keys")
	}
	return keys, nil
}
