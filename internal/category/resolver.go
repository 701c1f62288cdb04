// Package category resolves category names to stored categories.
package category

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

// Store is the storage the resolver needs.
type Store interface {
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*model.Category, error)
	InsertCategoryIfAbsent(ctx context.Context, name string) (*model.Category, bool, error)
}

// Resolver returns the category for a name, creating it on first use.
//
// Concurrent calls for the same name inside one process share a single lookup.
// Across processes the storage insert is a no-op on conflict followed by a re-read,
// so every caller ends up with the row that won.
type Resolver struct {
	store  Store
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// ResolveOrCreate returns the category with exactly this name. Names are case-sensitive.
func (r *Resolver) ResolveOrCreate(ctx context.Context, name string) (*model.Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: category name is empty", common.ErrInvalidInput)
	}

	// The flight is shared, so it must outlive the caller that started it. A canceled
	// caller stops waiting; the others still get the result.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (any, error) {
		cat, created, err := r.store.InsertCategoryIfAbsent(flightCtx, name)
		if err != nil {
			return nil, err
		}
		if created {
			r.logger.Info("created category", "name", cat.Name, "id", cat.ID)
		}
		return cat, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve category %q: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("resolve category %q: %w", name, res.Err)
		}
		// Callers of a shared flight get their own copy.
		cat := *res.Val.(*model.Category)
		return &cat, nil
	}
}

// Lookup returns the category with this name without creating it.
func (r *Resolver) Lookup(ctx context.Context, name string) (*model.Category, error) {
	return r.store.GetCategoryByName(ctx, name)
}

// Get returns the category with id, or common.ErrNotFound.
func (r *Resolver) Get(ctx context.Context, id int64) (*model.Category, error) {
	return r.store.GetCategoryByID(ctx, id)
}
