package ride

import (
	"context"
	"errors"
	"strings"

	"github.com/example/rickshaw-rides/internal/models"
	"github.com/example/rickshaw-rides/internal/storage"
)

// Resolver maps legacy puller identifiers onto canonical records. Pullers
// rarely keep their internal id around, so the API accepts the registered
// phone (with or without the leading "+") and the exact display name as
// fallbacks, in that preference order.
type Resolver struct {
	store storage.Store
}

func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) ResolvePuller(ctx context.Context, ref string) (*models.Puller, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, storage.ErrNotFound
	}
	if p, err := r.store.GetPuller(ctx, ref); err == nil {
		return p, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	candidates := []string{ref}
	if !strings.HasPrefix(ref, "+") {
		candidates = append(candidates, "+"+ref)
	}
	for _, phone := range candidates {
		if p, err := r.store.FindPullerByPhone(ctx, phone); err == nil {
			return p, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return r.store.FindPullerByName(ctx, ref)
}
