// Package kv provides the key/value store adapters used for document
// snapshots, consumer records and sessions.
package kv

import "context"

// Store is a get/set key/value store. A missing key is reported with
// ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Factory builds the store for a named document. The name "-session" is
// used for the session store.
type Factory func(ctx context.Context, name string) (Store, error)

// SessionStoreName is the store name sessions are kept under.
const SessionStoreName = "-session"
