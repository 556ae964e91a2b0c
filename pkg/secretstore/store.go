// Package secretstore defines PAPI's interface onto the backing key/value
// secret store (spec §4.4: "a key/value secret store accessed by token").
// The pack's original source talks to a KV-v1-mounted Vault instance
// (original_source/ai4papi/routers/v1/secrets.py); this package keeps
// that shape but drops the per-request JWT-login dance in favor of a
// single service token, since PAPI itself — not Vault — enforces the
// per-user path prefix (spec §4.4's "PAPI enforces the per-user prefix
// itself").
package secretstore

import "context"

// Store is the minimal KV surface pkg/secrets needs.
type Store interface {
	// List returns the immediate child keys under path (no recursion);
	// callers walk the tree themselves as ai4papi's recursive_path_builder
	// does. A path with no children returns an empty, non-error result.
	List(ctx context.Context, path string) ([]string, error)

	// Read returns the key/value data stored at path, or (nil, nil) if
	// nothing exists there.
	Read(ctx context.Context, path string) (map[string]string, error)

	Write(ctx context.Context, path string, data map[string]string) error

	Delete(ctx context.Context, path string) error
}
