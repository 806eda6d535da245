package kv

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a durable store backed by a bbolt database file. Each document
// name gets its own bucket.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the database file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Bucket returns the store for the named bucket, creating the bucket.
func (b *Bolt) Bucket(name string) (*BoltBucket, error) {
	if name == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %q: %w", name, err)
	}
	return &BoltBucket{db: b.db, name: []byte(name)}, nil
}

// Factory returns a Factory handing out one bucket per document name.
func (b *Bolt) Factory() Factory {
	return func(_ context.Context, name string) (Store, error) {
		return b.Bucket(name)
	}
}

// BoltBucket is a Store over a single bbolt bucket.
type BoltBucket struct {
	db   *bolt.DB
	name []byte
}

func (s *BoltBucket) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.name)
		if bucket == nil {
			return fmt.Errorf("bucket %q not found", s.name)
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// v is only valid for the life of the transaction
			value = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (s *BoltBucket) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.name)
		if bucket == nil {
			return fmt.Errorf("bucket %q not found", s.name)
		}
		return bucket.Put([]byte(key), value)
	})
}
