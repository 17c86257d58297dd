package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/pkg/generation"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

// DefaultBatchSize caps the ids sent in one availability request.
const DefaultBatchSize = 100

var ErrNothingToRefetch = errors.New("availability has not been requested yet")

// AvailabilityQuery is everything one availability refresh depends on.
type AvailabilityQuery struct {
	IDs     []string
	Window  domain.TimeWindow
	LotType domain.LotType
}

// AvailabilityRefresher polls live lot counts for a set of facilities in
// capped batches and keeps one occupancy entry per requested id. A failure
// empties the map and keeps an error message until a later run succeeds.
type AvailabilityRefresher struct {
	client    ports.CarparkQueryClient
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
	gen       generation.Tracker

	onCommit func(domain.AvailabilityState)

	mu    sync.RWMutex
	state domain.AvailabilityState
	last  *AvailabilityQuery
}

// NewAvailabilityRefresher creates a refresher. A non-positive batchSize uses DefaultBatchSize.
func NewAvailabilityRefresher(client ports.CarparkQueryClient, batchSize int, logger *slog.Logger) *AvailabilityRefresher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityRefresher{
		client:    client,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
		state:     domain.AvailabilityState{Availability: domain.AvailabilityMap{}},
	}
}

// OnCommit registers fn to observe every committed result, in commit order.
// fn must not block. Set it before the first run.
func (a *AvailabilityRefresher) OnCommit(fn func(domain.AvailabilityState)) {
	a.onCommit = fn
}

// State returns the last committed state.
func (a *AvailabilityRefresher) State() domain.AvailabilityState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Refresh runs one refresh for q to completion.
func (a *AvailabilityRefresher) Refresh(ctx context.Context, q AvailabilityQuery) domain.AvailabilityState {
	st, _ := a.Prepare(ctx, q)()
	return st
}

// Refetch repeats the most recent query.
func (a *AvailabilityRefresher) Refetch(ctx context.Context) (domain.AvailabilityState, error) {
	run, err := a.PrepareRefetch(ctx)
	if err != nil {
		return a.State(), err
	}
	st, _ := run()
	return st, nil
}

// PrepareRefetch is Prepare for the most recent query.
func (a *AvailabilityRefresher) PrepareRefetch(ctx context.Context) (func() (domain.AvailabilityState, bool), error) {
	a.mu.RLock()
	last := a.last
	a.mu.RUnlock()
	if last == nil {
		return nil, ErrNothingToRefetch
	}
	return a.Prepare(ctx, *last), nil
}

// Cancel supersedes any in-flight run.
func (a *AvailabilityRefresher) Cancel() {
	a.gen.Invalidate()
	a.mu.Lock()
	a.state.Loading = false
	a.mu.Unlock()
}

// Prepare supersedes any in-flight run, records q for Refetch and returns the work.
func (a *AvailabilityRefresher) Prepare(ctx context.Context, q AvailabilityQuery) func() (domain.AvailabilityState, bool) {
	runCtx, tok := a.gen.Begin(ctx)

	a.mu.Lock()
	a.last = &q
	a.mu.Unlock()

	return func() (domain.AvailabilityState, bool) {
		defer a.gen.End(tok)
		return a.run(runCtx, tok, q)
	}
}

func (a *AvailabilityRefresher) run(ctx context.Context, tok generation.Token, q AvailabilityQuery) (domain.AvailabilityState, bool) {
	ids := DedupeIDs(q.IDs)
	if len(ids) == 0 {
		return a.commit(tok, domain.AvailabilityState{Availability: domain.AvailabilityMap{}})
	}

	if !a.gen.Commit(tok, func() {
		a.mu.Lock()
		a.state.Loading = true
		a.mu.Unlock()
	}) {
		return a.superseded()
	}

	next := make(domain.AvailabilityMap, len(ids))
	requested := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}

	var runErr error
	for i, batch := range SplitBatches(ids, a.batchSize) {
		metrics.AvailabilityBatches.Inc()
		recs, err := a.client.QueryLots(ctx, ports.CarparkQuery{Window: q.Window, IDs: batch, LotType: q.LotType})
		if err != nil {
			runErr = fmt.Errorf("batch %d: %w", i+1, err)
			break
		}
		for j := range recs {
			if _, ok := requested[recs[j].ID]; !ok {
				continue
			}
			next[recs[j].ID] = OccupancyFromLots(&recs[j], q.LotType)
		}
	}

	if !a.gen.Current(tok) {
		return a.superseded()
	}
	if ctx.Err() != nil {
		st := a.State()
		st.Loading = false
		return a.commit(tok, st)
	}
	if runErr != nil {
		metrics.RunFailures.WithLabelValues("availability").Inc()
		a.logger.Warn("availability refresh failed", "ids", len(ids), "error", runErr)
		msg := availabilityErrorMessage(runErr)
		return a.commit(tok, domain.AvailabilityState{Availability: domain.AvailabilityMap{}, Error: &msg})
	}

	for _, id := range ids {
		if _, ok := next[id]; !ok {
			next[id] = domain.UnknownOccupancy()
		}
	}
	return a.commit(tok, domain.AvailabilityState{Availability: next})
}

func (a *AvailabilityRefresher) commit(tok generation.Token, st domain.AvailabilityState) (domain.AvailabilityState, bool) {
	st.UpdatedAt = a.now()
	ok := a.gen.Commit(tok, func() {
		a.mu.Lock()
		a.state = st
		a.mu.Unlock()
		if a.onCommit != nil {
			a.onCommit(st)
		}
	})
	if !ok {
		return a.superseded()
	}
	return st, true
}

func (a *AvailabilityRefresher) superseded() (domain.AvailabilityState, bool) {
	metrics.SupersededRuns.WithLabelValues("availability").Inc()
	return a.State(), false
}

func availabilityErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return "Failed to load availability: " + err.Error()
}

// DedupeIDs drops blank ids and repeats, keeping first-seen order.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SplitBatches cuts ids into consecutive chunks of at most size.
func SplitBatches(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
