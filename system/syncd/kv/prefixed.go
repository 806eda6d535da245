package kv

import "context"

// Prefixed scopes every key of an underlying store under a prefix.
type Prefixed struct {
	Store  Store
	Prefix string
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.Store.Get(ctx, p.Prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.Store.Set(ctx, p.Prefix+key, value)
}

// PrefixFactory returns a Factory that scopes one shared store per
// document name, using name + "/" as the key prefix.
func PrefixFactory(shared Store) Factory {
	return func(_ context.Context, name string) (Store, error) {
		return &Prefixed{Store: shared, Prefix: name + "/"}, nil
	}
}
