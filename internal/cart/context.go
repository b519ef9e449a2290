package cart

import "context"

type storeKey struct{}

// NewContext attaches the session's cart store to ctx.
func NewContext(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// FromContext returns the cart store attached by Service.Middleware.
func FromContext(ctx context.Context) (*Store, bool) {
	store, ok := ctx.Value(storeKey{}).(*Store)
	return store, ok && store != nil
}
