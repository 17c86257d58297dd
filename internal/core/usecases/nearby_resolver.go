package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/pkg/generation"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

// DefaultRadiusKm is the nearby search radius when none is configured.
const DefaultRadiusKm = 1.0

// NearbyQuery is everything one nearby resolution depends on.
type NearbyQuery struct {
	Catalog  *Catalog
	Anchor   *domain.GeoPoint
	Window   domain.TimeWindow
	LotType  domain.LotType
	RadiusKm float64
}

// NearbyResolver finds facilities around the anchor and decorates them with
// lots and rates fetched as one all-or-nothing join. A newer run always
// supersedes an older one regardless of completion order.
type NearbyResolver struct {
	client ports.CarparkQueryClient
	logger *slog.Logger
	now    func() time.Time
	gen    generation.Tracker

	onCommit func(domain.NearbyState)

	mu    sync.RWMutex
	state domain.NearbyState
}

// NewNearbyResolver creates a resolver in the idle state.
func NewNearbyResolver(client ports.CarparkQueryClient, logger *slog.Logger) *NearbyResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NearbyResolver{
		client: client,
		logger: logger,
		now:    time.Now,
		state:  domain.NearbyState{Results: []domain.NearbyFacility{}, Status: domain.StatusIdle},
	}
}

// OnCommit registers fn to observe every committed result. fn runs inside the
// commit critical section, so a newer run's result always reaches it after an
// older one's; it must not block. Set it before the first run.
func (r *NearbyResolver) OnCommit(fn func(domain.NearbyState)) {
	r.onCommit = fn
}

// State returns the last committed state.
func (r *NearbyResolver) State() domain.NearbyState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Resolve runs one resolution to completion and returns the committed state.
// If the run was superseded, the newer run's current state is returned.
func (r *NearbyResolver) Resolve(ctx context.Context, q NearbyQuery) domain.NearbyState {
	st, _ := r.Prepare(ctx, q)()
	return st
}

// Cancel supersedes any in-flight run. The committed state is left as is.
func (r *NearbyResolver) Cancel() {
	r.gen.Invalidate()
	r.mu.Lock()
	r.state.Loading = false
	r.mu.Unlock()
}

// Prepare supersedes any in-flight run and returns the work for q. Ordering is
// fixed at Prepare time, so callers that serialize Prepare get "last call wins"
// even when the returned funcs run concurrently.
func (r *NearbyResolver) Prepare(ctx context.Context, q NearbyQuery) func() (domain.NearbyState, bool) {
	runCtx, tok := r.gen.Begin(ctx)

	return func() (domain.NearbyState, bool) {
		defer r.gen.End(tok)
		return r.run(runCtx, tok, q)
	}
}

func (r *NearbyResolver) run(ctx context.Context, tok generation.Token, q NearbyQuery) (domain.NearbyState, bool) {
	if q.Anchor == nil {
		return r.commit(tok, domain.NearbyState{Results: []domain.NearbyFacility{}, Status: domain.StatusIdle})
	}

	radius := q.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}
	candidates := q.Catalog.Candidates(*q.Anchor, radius)
	if len(candidates) == 0 {
		return r.commit(tok, domain.NearbyState{Results: []domain.NearbyFacility{}, Status: domain.StatusEmpty})
	}

	if !r.gen.Commit(tok, func() {
		r.mu.Lock()
		r.state.Loading = true
		r.state.Status = domain.StatusLoading
		r.mu.Unlock()
	}) {
		return r.superseded()
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Location.ID
	}
	query := ports.CarparkQuery{Window: q.Window, IDs: ids, LotType: q.LotType, SignIDs: true}

	var (
		lots  []domain.LotsRecord
		rates []domain.RateRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lots, err = r.client.QueryLots(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		rates, err = r.client.QueryRates(gctx, query)
		return err
	})
	err := g.Wait()

	if !r.gen.Current(tok) {
		return r.superseded()
	}
	if ctx.Err() != nil {
		// Cancelled by the owner rather than by a newer run.
		return r.commit(tok, r.withLoading(false))
	}
	if err != nil {
		metrics.RunFailures.WithLabelValues("nearby").Inc()
		r.logger.Warn("nearby fetch failed", "candidates", len(ids), "error", err)
		return r.commit(tok, domain.NearbyState{Results: []domain.NearbyFacility{}, Status: domain.StatusFailed})
	}

	lotsByID := indexLots(lots)
	ratesByID := indexRates(rates)
	results := make([]domain.NearbyFacility, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, BuildFacility(FacilityParts{
			Location: c.Location,
			Origin:   q.Anchor,
			Lots:     lotsByID[c.Location.ID],
			Rate:     ratesByID[c.Location.ID],
			LotType:  q.LotType,
		}))
	}
	return r.commit(tok, domain.NearbyState{Results: results, Status: domain.StatusReady})
}

func (r *NearbyResolver) commit(tok generation.Token, st domain.NearbyState) (domain.NearbyState, bool) {
	st.UpdatedAt = r.now()
	ok := r.gen.Commit(tok, func() {
		r.mu.Lock()
		r.state = st
		r.mu.Unlock()
		if r.onCommit != nil {
			r.onCommit(st)
		}
	})
	if !ok {
		return r.superseded()
	}
	return st, true
}

func (r *NearbyResolver) superseded() (domain.NearbyState, bool) {
	metrics.SupersededRuns.WithLabelValues("nearby").Inc()
	return r.State(), false
}

func (r *NearbyResolver) withLoading(loading bool) domain.NearbyState {
	st := r.State()
	st.Loading = loading
	if !loading && st.Status == domain.StatusLoading {
		st.Status = domain.StatusIdle
	}
	return st
}

// indexLots keys records by id, keeping the first occurrence.
func indexLots(recs []domain.LotsRecord) map[string]*domain.LotsRecord {
	m := make(map[string]*domain.LotsRecord, len(recs))
	for i := range recs {
		if _, ok := m[recs[i].ID]; !ok {
			m[recs[i].ID] = &recs[i]
		}
	}
	return m
}

func indexRates(recs []domain.RateRecord) map[string]*domain.RateRecord {
	m := make(map[string]*domain.RateRecord, len(recs))
	for i := range recs {
		if _, ok := m[recs[i].ID]; !ok {
			m[recs[i].ID] = &recs[i]
		}
	}
	return m
}

func indexInfo(recs []domain.InfoRecord) map[string]*domain.InfoRecord {
	m := make(map[string]*domain.InfoRecord, len(recs))
	for i := range recs {
		if _, ok := m[recs[i].ID]; !ok {
			m[recs[i].ID] = &recs[i]
		}
	}
	return m
}
