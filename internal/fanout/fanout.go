// Package fanout federates total reconstruction across every store location
// announced at a rendezvous name. Locations are RKVDNS domains discovered by
// PTR lookup; each is queried concurrently and the per-location totals are
// summed. A rendezvous with no locations falls back to querying the
// rendezvous domain itself.
package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/totalizer-lab/totalizer/internal/totals"
)

// Locator discovers the store locations behind a rendezvous name.
// Implemented by rkvdns.Client.
type Locator interface {
	PTR(ctx context.Context, name string) ([]string, error)
}

// Reconstructor computes totals against one store location.
// Implemented by totals.Engine.
type Reconstructor interface {
	Total(ctx context.Context, spec totals.MatchSpec, parts int, window time.Duration) (totals.Totals, error)
}

// Federation fans a totals query out across discovered locations.
type Federation struct {
	locator    Locator
	rendezvous string
	open       func(domain string) Reconstructor
	direct     Reconstructor
	flight     singleflight.Group
	logger     *slog.Logger
}

// New creates a federation rooted at rendezvous. open builds a reconstructor
// for one discovered location; direct serves queries when discovery yields no
// locations.
func New(locator Locator, rendezvous string, open func(domain string) Reconstructor, direct Reconstructor, logger *slog.Logger) *Federation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Federation{
		locator:    locator,
		rendezvous: rendezvous,
		open:       open,
		direct:     direct,
		logger:     logger,
	}
}

// Total computes summed totals across all locations. A failed or empty
// discovery degrades to the direct reconstructor; a failed location
// contributes nothing.
func (f *Federation) Total(ctx context.Context, spec totals.MatchSpec, parts int, window time.Duration) (totals.Totals, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	locations := f.locations(ctx)
	if len(locations) == 0 {
		return f.direct.Total(ctx, spec, parts, window)
	}

	merged := make(totals.Totals)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, location := range locations {
		location := location
		g.Go(func() error {
			part, err := f.open(location).Total(gctx, spec, parts, window)
			if err != nil {
				f.logger.Error("location query failed", "location", location, "error", err)
				return nil
			}
			mu.Lock()
			merged.Merge(part)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return merged, nil
}

// locations resolves the rendezvous name, deduplicating concurrent lookups.
func (f *Federation) locations(ctx context.Context) []string {
	v, err, _ := f.flight.Do(f.rendezvous, func() (interface{}, error) {
		return f.locator.PTR(ctx, f.rendezvous)
	})
	if err != nil {
		f.logger.Error("rendezvous lookup failed", "rendezvous", f.rendezvous, "error", err)
		return nil
	}
	locations, _ := v.([]string)
	return locations
}
