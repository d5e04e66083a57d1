package tracker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kiranshivaraju/jobtracker/internal/cache"
	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

const maxHeaderNameLen = 200

// Registry owns function headers.
type Registry struct {
	store store.Store
	cache *snapshotCache
}

// EnsureHeader returns the header for name, creating it on first use.
// Names are matched by their kebab-case slug, so "Nightly Import" and
// "nightly_import" resolve to the same header.
func (r *Registry) EnsureHeader(ctx context.Context, name string) (*models.FunctionHeader, error) {
	slug := KebabCase(name)
	if slug == "" {
		return nil, invalid("header name %q has no letters or digits", name)
	}

	h, err := r.lookup(ctx, slug)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	h = &models.FunctionHeader{Name: truncate(SentenceCase(name), maxHeaderNameLen), Slug: slug}
	if err := r.store.CreateHeader(ctx, h); err != nil {
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, translate("create header", err)
		}
		// A concurrent first use won the insert; its row is the header.
		if h, err = r.lookup(ctx, slug); err != nil {
			return nil, err
		}
		return h, nil
	}

	slog.Info("function header created", "header_id", h.ID, "slug", h.Slug)
	r.cache.put(ctx, cache.HeaderKey(h.Slug), h)
	return h, nil
}

// ResolveHeaderBySlug looks a header up without creating it.
func (r *Registry) ResolveHeaderBySlug(ctx context.Context, slug string) (*models.FunctionHeader, error) {
	normalized := KebabCase(slug)
	if normalized == "" {
		return nil, invalid("header slug %q is empty", slug)
	}
	return r.lookup(ctx, normalized)
}

func (r *Registry) lookup(ctx context.Context, slug string) (*models.FunctionHeader, error) {
	var h models.FunctionHeader
	if r.cache.get(ctx, cache.HeaderKey(slug), &h) {
		return &h, nil
	}
	found, err := r.store.GetHeaderBySlug(ctx, slug)
	if err != nil {
		return nil, translate("get header "+slug, err)
	}
	r.cache.put(ctx, cache.HeaderKey(slug), found)
	return found, nil
}
