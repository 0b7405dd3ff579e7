package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
)

// FetchObserver is told the duration and outcome of every single fetch.
type FetchObserver func(kind domain.ResourceKind, elapsed time.Duration, err error)

// RunFetchCycle fetches every resource the adapter declares, in order, and
// assembles them into a snapshot. The cycle is all-or-nothing: the first
// failure aborts it and no snapshot is returned.
func RunFetchCycle(ctx context.Context, adapter port.FetchAdapter, version uint64, now time.Time, observe FetchObserver) (*domain.Snapshot, error) {
	kinds := adapter.Resources()
	if len(kinds) == 0 {
		return nil, domain.ShapeError("", errors.New("adapter declares no resources"))
	}
	records := make(map[domain.ResourceKind]domain.SubRecord, len(kinds))
	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return nil, domain.ConnectionError(kind, err)
		}
		start := time.Now()
		rec, err := fetchOne(ctx, adapter, kind)
		if observe != nil {
			observe(kind, time.Since(start), err)
		}
		if err != nil {
			return nil, err
		}
		records[kind] = rec
	}
	return domain.NewSnapshot(version, now, records), nil
}

func fetchOne(ctx context.Context, adapter port.FetchAdapter, kind domain.ResourceKind) (domain.SubRecord, error) {
	rec, err := adapter.Fetch(ctx, kind)
	if err != nil {
		return nil, classify(kind, err)
	}
	if rec == nil {
		return nil, domain.ShapeError(kind, errors.New("empty record"))
	}
	if err := rec.Validate(); err != nil {
		return nil, domain.ShapeError(kind, err)
	}
	return rec, nil
}

// classify keeps already classified errors and treats anything else,
// timeouts included, as a connection failure.
func classify(kind domain.ResourceKind, err error) error {
	if domain.ClassifyError(err) != domain.ERROR_CLASS_UNKNOWN {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ConnectionError(kind, fmt.Errorf("timeout: %w", err))
	}
	return domain.ConnectionError(kind, err)
}
