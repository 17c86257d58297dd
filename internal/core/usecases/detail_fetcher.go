package usecases

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/pkg/generation"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

// DetailQuery is everything one focused-facility fetch depends on.
type DetailQuery struct {
	Catalog *Catalog
	ID      string
	Origin  *domain.GeoPoint
	Window  domain.TimeWindow
	LotType domain.LotType
}

// DetailFetcher loads lots, rates and info for one selected facility. It
// never fails outright: if any of the three calls fails it falls back to a
// minimal record built from the catalog entry.
type DetailFetcher struct {
	client ports.CarparkQueryClient
	logger *slog.Logger
	gen    generation.Tracker

	onCommit func(domain.FocusState)

	mu    sync.RWMutex
	state domain.FocusState
}

// NewDetailFetcher creates a fetcher with nothing selected.
func NewDetailFetcher(client ports.CarparkQueryClient, logger *slog.Logger) *DetailFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailFetcher{client: client, logger: logger}
}

// OnCommit registers fn to observe every settled focus state (a finished
// fetch or a dropped selection), in commit order. fn must not block. Set it
// before the first run.
func (d *DetailFetcher) OnCommit(fn func(domain.FocusState)) {
	d.onCommit = fn
}

// State returns the last committed state.
func (d *DetailFetcher) State() domain.FocusState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Fetch runs one detail fetch to completion.
func (d *DetailFetcher) Fetch(ctx context.Context, q DetailQuery) domain.FocusState {
	st, _ := d.Prepare(ctx, q)()
	return st
}

// Clear drops the selection and supersedes any in-flight fetch.
func (d *DetailFetcher) Clear() {
	d.gen.Invalidate()
	d.mu.Lock()
	d.state = domain.FocusState{}
	d.mu.Unlock()
}

// Validate clears the selection if its id is missing from cat. It reports
// whether a selection survives.
func (d *DetailFetcher) Validate(cat *Catalog) bool {
	st := d.State()
	if st.ID == nil {
		return false
	}
	if _, ok := cat.Lookup(*st.ID); ok {
		return true
	}
	d.logger.Info("focused facility left the catalog", "id", *st.ID)
	d.Clear()
	return false
}

// Prepare supersedes any in-flight fetch and returns the work for q. The
// previous record is cleared immediately so a stale facility is never shown
// while the new one loads. An id missing from the catalog clears the
// selection and the returned func fetches nothing.
func (d *DetailFetcher) Prepare(ctx context.Context, q DetailQuery) func() (domain.FocusState, bool) {
	runCtx, tok := d.gen.Begin(ctx)

	loc, ok := q.Catalog.Lookup(q.ID)
	if !ok {
		d.gen.Commit(tok, func() { d.settle(domain.FocusState{}) })
		return func() (domain.FocusState, bool) {
			d.gen.End(tok)
			return domain.FocusState{}, false
		}
	}

	id := q.ID
	d.gen.Commit(tok, func() {
		d.mu.Lock()
		d.state = domain.FocusState{ID: &id, Loading: true}
		d.mu.Unlock()
	})

	return func() (domain.FocusState, bool) {
		defer d.gen.End(tok)
		return d.run(runCtx, tok, q, loc)
	}
}

func (d *DetailFetcher) run(ctx context.Context, tok generation.Token, q DetailQuery, loc domain.FacilityLocation) (domain.FocusState, bool) {
	query := ports.CarparkQuery{Window: q.Window, IDs: []string{loc.ID}, LotType: q.LotType}

	var (
		lots  []domain.LotsRecord
		rates []domain.RateRecord
		info  []domain.InfoRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lots, err = d.client.QueryLots(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		rates, err = d.client.QueryRates(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = d.client.QueryInfo(gctx, query)
		return err
	})
	err := g.Wait()

	if !d.gen.Current(tok) {
		return d.superseded()
	}

	var facility domain.NearbyFacility
	switch {
	case ctx.Err() != nil:
		// Cancelled by the owner rather than by a newer run: settle on what
		// the catalog alone can show.
		facility = MinimalFacility(loc, q.Origin)
	case err != nil:
		metrics.RunFailures.WithLabelValues("detail").Inc()
		d.logger.Warn("detail fetch failed, using minimal record", "id", loc.ID, "error", err)
		facility = MinimalFacility(loc, q.Origin)
	default:
		facility = BuildFacility(FacilityParts{
			Location: loc,
			Origin:   q.Origin,
			Lots:     indexLots(lots)[loc.ID],
			Rate:     indexRates(rates)[loc.ID],
			Info:     indexInfo(info)[loc.ID],
			LotType:  q.LotType,
		})
	}

	id := loc.ID
	st := domain.FocusState{ID: &id, Facility: &facility}
	if !d.gen.Commit(tok, func() { d.settle(st) }) {
		return d.superseded()
	}
	return st, true
}

// settle stores a final state; the caller holds the generation commit.
func (d *DetailFetcher) settle(st domain.FocusState) {
	d.mu.Lock()
	d.state = st
	d.mu.Unlock()
	if d.onCommit != nil {
		d.onCommit(st)
	}
}

func (d *DetailFetcher) superseded() (domain.FocusState, bool) {
	metrics.SupersededRuns.WithLabelValues("detail").Inc()
	return d.State(), false
}
