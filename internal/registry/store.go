package registry

import "context"

// Store persists the whole registry document.
//
// Save must be atomic: after a failed Save the previously saved document is
// still what Load returns.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Close() error
}
