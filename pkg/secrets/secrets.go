// Package secrets implements C4, the path-scoped secrets broker: every
// effective path is rooted under /<secret-root>/<VO>/users/<subject>/,
// derived server-side so a caller can never specify an absolute path
// (spec §4.4). Grounded on the original source's user-prefixed Vault
// paths (original_source/ai4papi/routers/v1/secrets.py), generalized
// from VO-qualified KV-v1 operations into this broker's four operations.
package secrets

import (
	"context"
	"path"
	"strings"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/secretstore"
)

type Broker struct {
	store secretstore.Store
	vos   map[string]apitypes.VO
}

func New(store secretstore.Store, vos map[string]apitypes.VO) *Broker {
	return &Broker{store: store, vos: vos}
}

// rootFor computes the effective, user-owned root for one VO, e.g.
// "ai4eosc/users/abc-123-subject".
func (b *Broker) rootFor(vo, subject string) (string, error) {
	v, ok := b.vos[vo]
	if !ok {
		return "", apierrors.BadRequest("unknown VO: " + vo)
	}
	root := strings.Trim(v.SecretRoot, "/")
	if root == "" {
		root = vo
	}
	return path.Join(root, "users", subject), nil
}

// scopedPath joins the user's root with a caller-supplied subpath,
// rejecting any attempt to traverse outside it. path.Join/path.Clean
// collapses ".." segments, so the containment check below is exact: the
// cleaned join either stays rooted at root or it doesn't (spec §4.4:
// "any attempt to traverse outside this subtree fails with forbidden").
func scopedPath(root, subpath string) (string, error) {
	clean := path.Join(root, subpath)
	if clean != root && !strings.HasPrefix(clean, root+"/") {
		return "", apierrors.Forbidden("secret path escapes the caller's subtree")
	}
	return clean, nil
}

// List returns secret entries under the user's root, optionally narrowed
// to subpath, walking the store's tree the way the original source's
// recursive_path_builder does (one List call per directory level).
func (b *Broker) List(ctx context.Context, subject, vo, subpath string) ([]apitypes.SecretEntry, error) {
	root, err := b.rootFor(vo, subject)
	if err != nil {
		return nil, err
	}
	start, err := scopedPath(root, subpath)
	if err != nil {
		return nil, err
	}

	var out []apitypes.SecretEntry
	queue := []string{start}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		keys, err := b.store.List(ctx, dir)
		if err != nil {
			return nil, apierrors.BackendError("failed to list secrets", err)
		}
		for _, k := range keys {
			if strings.HasSuffix(k, "/") {
				queue = append(queue, path.Join(dir, strings.TrimSuffix(k, "/")))
				continue
			}
			full := path.Join(dir, k)
			v, err := b.store.Read(ctx, full)
			if err != nil {
				return nil, apierrors.BackendError("failed to read secret", err)
			}
			out = append(out, apitypes.SecretEntry{Path: strings.TrimPrefix(full, root), Value: v})
		}
	}
	return out, nil
}

func (b *Broker) Get(ctx context.Context, subject, vo, subpath string) (*apitypes.SecretEntry, error) {
	root, err := b.rootFor(vo, subject)
	if err != nil {
		return nil, err
	}
	full, err := scopedPath(root, subpath)
	if err != nil {
		return nil, err
	}
	v, err := b.store.Read(ctx, full)
	if err != nil {
		return nil, apierrors.BackendError("failed to read secret", err)
	}
	if v == nil {
		return nil, nil
	}
	return &apitypes.SecretEntry{Path: subpath, Value: v}, nil
}

func (b *Broker) Put(ctx context.Context, subject, vo, subpath string, value map[string]string) error {
	root, err := b.rootFor(vo, subject)
	if err != nil {
		return err
	}
	full, err := scopedPath(root, subpath)
	if err != nil {
		return err
	}
	if err := b.store.Write(ctx, full, value); err != nil {
		return apierrors.BackendError("failed to write secret", err)
	}
	return nil
}

func (b *Broker) Delete(ctx context.Context, subject, vo, subpath string) error {
	root, err := b.rootFor(vo, subject)
	if err != nil {
		return err
	}
	full, err := scopedPath(root, subpath)
	if err != nil {
		return err
	}
	if err := b.store.Delete(ctx, full); err != nil {
		return apierrors.BackendError("failed to delete secret", err)
	}
	return nil
}
