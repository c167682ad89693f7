// Package cache serves list and entity reads from a shared cache. List pages
// are namespaced by a per (entity type, owner) version token, so invalidating
// every cached page of a user is a single key removal.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"personal-ledger/shared"
)

const (
	DefaultVersionTTL = 10 * time.Minute
	DefaultPageTTL    = 5 * time.Minute
	DefaultEntityTTL  = 5 * time.Minute
)

type Options struct {
	VersionTTL time.Duration
	PageTTL    time.Duration
	EntityTTL  time.Duration
}

type Registry struct {
	backend Backend
	opts    Options
	newID   func() string
	// invalidations counts Invalidate calls. An entity loaded while it moved
	// is not written back.
	invalidations atomic.Uint64
}

// NewRegistry wraps backend. A nil backend disables caching: every read goes
// to the loader and invalidation is a no-op.
func NewRegistry(backend Backend, opts Options) *Registry {
	if opts.VersionTTL <= 0 {
		opts.VersionTTL = DefaultVersionTTL
	}
	if opts.PageTTL <= 0 {
		opts.PageTTL = DefaultPageTTL
	}
	if opts.EntityTTL <= 0 {
		opts.EntityTTL = DefaultEntityTTL
	}
	return &Registry{backend: backend, opts: opts, newID: uuid.NewString}
}

func (r *Registry) Enabled() bool {
	return r != nil && r.backend != nil
}

func VersionKey(t shared.EntityType, ownerID string) string {
	return "list_version:" + string(t) + ":" + ownerID
}

func EntityKey(t shared.EntityType, id string) string {
	return string(t) + ":" + id
}

func pageKey(t shared.EntityType, ownerID, token string, req shared.PageRequest) string {
	dir := "asc"
	if req.Desc {
		dir = "desc"
	}
	return "list:" + string(t) + ":" + ownerID + ":" + token + ":" +
		strconv.Itoa(req.Page) + ":" + strconv.Itoa(req.PageSize) + ":" +
		req.Search + ":" + req.SortBy + ":" + dir
}

// Version returns the current list token for (t, owner), minting and storing
// a new one when none exists.
func (r *Registry) Version(ctx context.Context, t shared.EntityType, ownerID string) (string, error) {
	key := VersionKey(t, ownerID)
	data, ok, err := r.backend.Get(ctx, key, r.opts.VersionTTL)
	if err != nil {
		return "", err
	}
	if ok && len(data) > 0 {
		return string(data), nil
	}
	token := r.newID()
	if err := r.backend.Set(ctx, key, []byte(token), r.opts.VersionTTL); err != nil {
		return "", err
	}
	return token, nil
}

// Invalidate drops the entity keys of ids and the list version of (t, owner).
// Failures are logged and never returned: a write must not fail because the
// cache is down.
func (r *Registry) Invalidate(ctx context.Context, t shared.EntityType, ownerID string, ids ...string) {
	if !r.Enabled() {
		return
	}
	r.invalidations.Add(1)
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, EntityKey(t, id))
	}
	keys = append(keys, VersionKey(t, ownerID))
	if err := r.backend.Remove(ctx, keys...); err != nil {
		log.WithError(err).WithFields(log.Fields{"type": t, "owner": ownerID}).Warn("cache invalidation failed")
	}
}

// Page serves one page of a list query from the cache, falling back to load
// on a miss and storing what load returned.
func Page[T any](ctx context.Context, r *Registry, t shared.EntityType, ownerID string, req shared.PageRequest,
	load func(context.Context) (shared.Page[T], error)) (shared.Page[T], error) {
	req = req.Normalize()
	if !r.Enabled() {
		return load(ctx)
	}
	fields := log.Fields{"type": t, "owner": ownerID}

	token, err := r.Version(ctx, t, ownerID)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("cache version unavailable, reading from store")
		return load(ctx)
	}
	key := pageKey(t, ownerID, token, req)
	if page, ok := lookup[shared.Page[T]](ctx, r, key, fields); ok {
		return page, nil
	}

	page, err := load(ctx)
	if err != nil {
		return shared.Page[T]{}, err
	}
	r.store(ctx, key, page, r.opts.PageTTL, fields)
	return page, nil
}

// Entity serves a single entity read through the `<type>:<id>` key.
func Entity[T any](ctx context.Context, r *Registry, t shared.EntityType, id string,
	load func(context.Context) (T, error)) (T, error) {
	if !r.Enabled() {
		return load(ctx)
	}
	fields := log.Fields{"type": t, "id": id}
	key := EntityKey(t, id)
	if v, ok := lookup[T](ctx, r, key, fields); ok {
		return v, nil
	}
	seen := r.invalidations.Load()
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if r.invalidations.Load() != seen {
		log.WithFields(fields).Debug("invalidated during load, not caching")
		return v, nil
	}
	r.store(ctx, key, v, r.opts.EntityTTL, fields)
	return v, nil
}

func lookup[T any](ctx context.Context, r *Registry, key string, fields log.Fields) (T, bool) {
	var zero T
	data, ok, err := r.backend.Get(ctx, key, 0)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("cache read failed, treating as miss")
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.WithError(err).WithFields(fields).Warn("discarding undecodable cache entry")
		_ = r.backend.Remove(ctx, key)
		return zero, false
	}
	return v, true
}

func (r *Registry) store(ctx context.Context, key string, v any, ttl time.Duration, fields log.Fields) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).WithFields(fields).Errorf("failed to marshal cache payload for %s", key)
		return
	}
	if err := r.backend.Set(ctx, key, data, ttl); err != nil {
		log.WithError(err).WithFields(fields).Warn("failed to store cache entry")
	}
}
