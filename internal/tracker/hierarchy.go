package tracker

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// Hierarchy resolves identifiers and walks the parent/child forest.
type Hierarchy struct {
	store store.Store
	cache *snapshotCache
}

// Resolve returns the job named by ident.
func (h *Hierarchy) Resolve(ctx context.Context, ident Identifier) (*models.Job, error) {
	if id, ok := ident.ID(); ok {
		return h.Get(ctx, id)
	}
	slug, ok := ident.Slug()
	if !ok {
		return nil, invalid("empty job identifier")
	}
	job, err := h.store.GetJobBySlug(ctx, slug)
	if err != nil {
		return nil, translate(fmt.Sprintf("resolve job %q", slug), err)
	}
	h.cache.putJob(ctx, job)
	return job, nil
}

// ResolveToken parses a raw path or query token and resolves it.
func (h *Hierarchy) ResolveToken(ctx context.Context, token string) (*models.Job, error) {
	ident, err := ParseIdentifier(token)
	if err != nil {
		return nil, err
	}
	return h.Resolve(ctx, ident)
}

// Get loads a job by id. Finished jobs are served from cache when possible.
func (h *Hierarchy) Get(ctx context.Context, id int64) (*models.Job, error) {
	if job, ok := h.cache.getJob(ctx, id); ok {
		return job, nil
	}
	job, err := h.store.GetJob(ctx, id)
	if err != nil {
		return nil, translate(fmt.Sprintf("get job %d", id), err)
	}
	h.cache.putJob(ctx, job)
	return job, nil
}

// Children returns the direct children of a job ordered by id.
func (h *Hierarchy) Children(ctx context.Context, id int64) ([]*models.Job, error) {
	if _, err := h.Get(ctx, id); err != nil {
		return nil, err
	}
	children, err := h.store.ListChildren(ctx, id)
	if err != nil {
		return nil, translate("list children", err)
	}
	return children, nil
}

// Descendants returns id followed by every transitive child in breadth-first
// order. Each level costs one store query. The walk runs inside a store
// snapshot so a concurrently started grandchild is either fully visible or
// not at all.
func (h *Hierarchy) Descendants(ctx context.Context, id int64) ([]int64, error) {
	var out []int64
	err := h.store.Snapshot(ctx, func(ctx context.Context, s store.Store) error {
		if _, err := s.GetJob(ctx, id); err != nil {
			return translate(fmt.Sprintf("get job %d", id), err)
		}

		seen := map[int64]bool{id: true}
		out = []int64{id}
		frontier := []int64{id}
		for len(frontier) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			children, err := s.ListChildIDs(ctx, frontier)
			if err != nil {
				return translate("list child ids", err)
			}
			var next []int64
			for _, c := range children {
				if seen[c] {
					continue
				}
				seen[c] = true
				out = append(out, c)
				next = append(next, c)
			}
			frontier = next
		}
		return nil
	})
	if err != nil {
		return nil, translate("walk descendants", err)
	}
	return out, nil
}
