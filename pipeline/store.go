package pipeline

import (
	"context"

	"github.com/c360/streamlytics/errors"
	"github.com/c360/streamlytics/natsclient"
)

// KV is the durable key-value surface the store needs. Satisfied by
// *natsclient.KVStore.
type KV interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	UpdateWithRetry(ctx context.Context, key string, modify func(current []byte) ([]byte, error)) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Store persists pipeline definitions in a key-value bucket, keyed by
// pipeline name.
type Store struct {
	kv KV
}

// DefaultBucket is the bucket name used by the service
const DefaultBucket = "streamlytics-pipelines"

// NewStore creates a store over an existing key-value bucket
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Put saves or replaces a definition under its name. The write goes
// through a compare-and-swap loop so a concurrent writer to the same
// bucket never clobbers an unseen revision.
func (s *Store) Put(ctx context.Context, def *Definition) error {
	raw, err := def.Marshal()
	if err != nil {
		return err
	}
	_, err = s.kv.UpdateWithRetry(ctx, def.Name, func([]byte) ([]byte, error) {
		return raw, nil
	})
	if err != nil {
		return errors.WrapTransient(err, "Store", "Put", "persist definition")
	}
	return nil
}

// Get loads a definition by name
func (s *Store) Get(ctx context.Context, name string) (*Definition, error) {
	entry, err := s.kv.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return UnmarshalDefinition(entry.Value)
}

// Delete removes a definition by name
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.kv.Delete(ctx, name); err != nil {
		return errors.WrapTransient(err, "Store", "Delete", "remove definition")
	}
	return nil
}

// List returns the stored pipeline names
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "List", "list definitions")
	}
	return names, nil
}
