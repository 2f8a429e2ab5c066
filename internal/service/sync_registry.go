package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// RecordLister is the read side of one business service.
type RecordLister interface {
	EntityType() domain.EntityType
	ListRecords(ctx context.Context) ([]domain.Record, error)
}

// IncrementalLister can filter on the update timestamp itself.
type IncrementalLister interface {
	RecordLister
	ListRecordsChangedSince(ctx context.Context, since time.Time) ([]domain.Record, error)
}

// SyncUnit fetches the records of one entity type changed after since. The
// epoch sentinel fetches everything.
type SyncUnit func(ctx context.Context, since time.Time) ([]domain.Record, error)

// SyncRegistry maps every entity type to its sync unit.
type SyncRegistry struct {
	units map[domain.EntityType]SyncUnit
	order []domain.EntityType
}

// NewSyncRegistry builds the registry and fails when a lister reports an
// unknown type, a type is registered twice or a known type has no lister.
func NewSyncRegistry(listers ...RecordLister) (*SyncRegistry, error) {
	units := make(map[domain.EntityType]SyncUnit, len(listers))
	for _, l := range listers {
		t := l.EntityType()
		if !t.IsValid() {
			return nil, domain.ErrUnknownEntityType.WithCause(fmt.Errorf("lister for %q", t))
		}
		if _, dup := units[t]; dup {
			return nil, fmt.Errorf("duplicate sync unit for %s", t)
		}
		units[t] = unitFor(l)
	}

	order := domain.AllEntityTypes()
	for _, t := range order {
		if _, ok := units[t]; !ok {
			return nil, fmt.Errorf("no sync unit registered for %s", t)
		}
	}

	return &SyncRegistry{units: units, order: order}, nil
}

func unitFor(l RecordLister) SyncUnit {
	return func(ctx context.Context, since time.Time) ([]domain.Record, error) {
		if !since.After(domain.SyncEpoch) {
			return l.ListRecords(ctx)
		}
		if inc, ok := l.(IncrementalLister); ok {
			return inc.ListRecordsChangedSince(ctx, since)
		}

		all, err := l.ListRecords(ctx)
		if err != nil {
			return nil, err
		}
		changed := make([]domain.Record, 0, len(all))
		for _, r := range all {
			if r.UpdatedTime().After(since) {
				changed = append(changed, r)
			}
		}
		return changed, nil
	}
}

// Types returns the registered types in their canonical order.
func (r *SyncRegistry) Types() []domain.EntityType {
	return append([]domain.EntityType(nil), r.order...)
}

// Unit returns the sync unit of t.
func (r *SyncRegistry) Unit(t domain.EntityType) (SyncUnit, error) {
	unit, ok := r.units[t]
	if !ok {
		return nil, domain.ErrUnknownEntityType.WithCause(fmt.Errorf("%q", t))
	}
	return unit, nil
}

// Lookup resolves an entity type by name.
func (r *SyncRegistry) Lookup(name string) (domain.EntityType, SyncUnit, error) {
	t, err := domain.ParseEntityType(name)
	if err != nil {
		return "", nil, err
	}
	unit, err := r.Unit(t)
	if err != nil {
		return "", nil, err
	}
	return t, unit, nil
}
