package key

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/searchcore/internal/db"
	"github.com/kailas-cloud/searchcore/internal/domain"
	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
)

// store is the consumer interface for API keys (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists API keys as JSON records under {prefix}key:{uid}.
type Repo struct {
	store  store
	prefix string
}

// New creates a key repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) keyOf(uid uuid.UUID) string { return r.prefix + "key:" + uid.String() }

// Put stores k, replacing any previous record with the same uid.
func (r *Repo) Put(ctx context.Context, k domkey.Key) error {
	data, err := json.Marshal(k.Record())
	if err != nil {
		return fmt.Errorf("marshal key %s: %w", k.UID(), err)
	}
	if err := r.store.Set(ctx, r.keyOf(k.UID()), data); err != nil {
		return fmt.Errorf("store key %s: %w", k.UID(), err)
	}
	return nil
}

// Get returns the key with the given uid.
func (r *Repo) Get(ctx context.Context, uid uuid.UUID) (domkey.Key, error) {
	data, err := r.store.Get(ctx, r.keyOf(uid))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domkey.Key{}, domain.ErrAPIKeyNotFound
		}
		return domkey.Key{}, fmt.Errorf("get key %s: %w", uid, err)
	}
	return decode(data)
}

func decode(data []byte) (domkey.Key, error) {
	var rec domkey.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domkey.Key{}, fmt.Errorf("decode key: %w", err)
	}
	return domkey.Reconstruct(rec)
}

// Delete removes a key. Deleting an unknown key returns domain.ErrAPIKeyNotFound.
func (r *Repo) Delete(ctx context.Context, uid uuid.UUID) error {
	if _, err := r.store.Get(ctx, r.keyOf(uid)); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.ErrAPIKeyNotFound
		}
		return fmt.Errorf("get key %s: %w", uid, err)
	}
	if err := r.store.Del(ctx, r.keyOf(uid)); err != nil {
		return fmt.Errorf("delete key %s: %w", uid, err)
	}
	return nil
}

// List returns every key ordered by creation time, then uid.
func (r *Repo) List(ctx context.Context) ([]domkey.Key, error) {
	names, err := r.store.Scan(ctx, r.prefix+"key:*")
	if err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	raw, err := r.store.GetMulti(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("get keys: %w", err)
	}
	out := make([]domkey.Key, 0, len(raw))
	for i, data := range raw {
		if data == nil {
			continue
		}
		k, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", names[i], err)
		}
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b domkey.Key) int {
		return cmp.Or(a.CreatedAt().Compare(b.CreatedAt()), strings.Compare(a.UID().String(), b.UID().String()))
	})
	return out, nil
}

// All iterates the keys in List order.
func (r *Repo) All(ctx context.Context) iter.Seq2[domkey.Key, error] {
	return func(yield func(domkey.Key, error) bool) {
		keys, err := r.List(ctx)
		if err != nil {
			yield(domkey.Key{}, err)
			return
		}
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Clear deletes every key under the prefix.
func (r *Repo) Clear(ctx context.Context) error {
	names, err := r.store.Scan(ctx, r.prefix+"key:*")
	if err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	if len(names) == 0 {
		return nil
	}
	if err := r.store.Del(ctx, names...); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}
