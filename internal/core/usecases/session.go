package usecases

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
)

var ErrSessionClosed = errors.New("session closed")

// Session event kinds.
const (
	EventNearby       = "nearby"
	EventAvailability = "availability"
	EventFocus        = "focus"
	EventAnchor       = "anchor"
)

// SessionEvent is emitted whenever a session's published state changes.
// Seq increases per session in delivery order.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload"`
	At        time.Time `json:"at"`
}

// SessionConfig holds the per-session defaults.
type SessionConfig struct {
	RadiusKm       float64
	DefaultLotType domain.LotType
	DefaultWindow  time.Duration
	MapCenter      domain.GeoPoint
	PollInterval   time.Duration
	BatchSize      int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.RadiusKm <= 0 {
		c.RadiusKm = DefaultRadiusKm
	}
	if c.DefaultLotType == "" {
		c.DefaultLotType = domain.DefaultLotType
	}
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = 2 * time.Hour
	}
	if c.MapCenter == (domain.GeoPoint{}) {
		c.MapCenter = domain.DefaultMapCenter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// SessionDeps are the collaborators shared by every session.
type SessionDeps struct {
	Catalog *CatalogService
	Client  ports.CarparkQueryClient
	Events  ports.EventPublisher
	Logger  *slog.Logger
}

// SessionSnapshot is the user-adjustable input state of a session.
type SessionSnapshot struct {
	ID        string            `json:"id"`
	Anchor    domain.Anchor     `json:"anchor"`
	Effective *domain.GeoPoint  `json:"effective_anchor"`
	MapCenter domain.GeoPoint   `json:"map_center"`
	Window    domain.TimeWindow `json:"window"`
	LotType   domain.LotType    `json:"lot_type"`
	RadiusKm  float64           `json:"radius_km"`
	FocusID   *string           `json:"focus_id"`
}

// Session is one user's locator state: anchor, window, lot filter and focus,
// driving the nearby resolver, availability refresher and detail fetcher.
// Every input change starts the affected runs; older runs are superseded.
type Session struct {
	ID string

	cfg          SessionConfig
	catalog      *CatalogService
	events       ports.EventPublisher
	logger       *slog.Logger
	nearby       *NearbyResolver
	availability *AvailabilityRefresher
	detail       *DetailFetcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	anchor    domain.Anchor
	mapCenter domain.GeoPoint
	window    domain.TimeWindow
	lotType   domain.LotType
	radiusKm  float64
	focusID   *string
	lastSeen  time.Time
	nextSub   int
	subs      map[int]func(SessionEvent)

	// Events are queued in commit order and delivered by one goroutine
	// outside mu, so a slow publisher never blocks session calls.
	evMu     sync.Mutex
	evCond   *sync.Cond
	evQueue  []SessionEvent
	evSeq    uint64
	evBusy   bool
	evClosed bool
	evDone   chan struct{}

	unsubscribeCatalog func()
	now                func() time.Time
}

// NewSession creates a session anchored at the map center and starts the
// initial nearby and availability runs.
func NewSession(id string, deps SessionDeps, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now
	center := cfg.MapCenter
	s := &Session{
		ID:           id,
		cfg:          cfg,
		catalog:      deps.Catalog,
		events:       deps.Events,
		logger:       logger,
		nearby:       NewNearbyResolver(deps.Client, logger),
		availability: NewAvailabilityRefresher(deps.Client, cfg.BatchSize, logger),
		detail:       NewDetailFetcher(deps.Client, logger),
		ctx:          ctx,
		cancel:       cancel,
		anchor:       domain.Anchor{Selected: &center},
		mapCenter:    center,
		window:       domain.DefaultWindow(now(), cfg.DefaultWindow),
		lotType:      cfg.DefaultLotType,
		radiusKm:     cfg.RadiusKm,
		lastSeen:     now(),
		subs:         make(map[int]func(SessionEvent)),
		now:          now,
		evDone:       make(chan struct{}),
	}
	s.evCond = sync.NewCond(&s.evMu)
	s.nearby.OnCommit(func(st domain.NearbyState) { s.enqueue(EventNearby, st) })
	s.availability.OnCommit(func(st domain.AvailabilityState) { s.enqueue(EventAvailability, st) })
	s.detail.OnCommit(func(st domain.FocusState) { s.enqueue(EventFocus, st) })
	go s.deliverEvents()

	s.mu.Lock()
	s.triggerNearbyLocked()
	s.triggerAvailabilityLocked()
	s.mu.Unlock()

	s.unsubscribeCatalog = deps.Catalog.Subscribe(s.onCatalogChange)

	if cfg.PollInterval > 0 {
		s.wg.Add(1)
		go s.poll(cfg.PollInterval)
	}
	return s
}

// Snapshot returns the current inputs.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() SessionSnapshot {
	return SessionSnapshot{
		ID:        s.ID,
		Anchor:    s.anchor,
		Effective: s.anchor.Point(),
		MapCenter: s.mapCenter,
		Window:    s.window,
		LotType:   s.lotType,
		RadiusKm:  s.radiusKm,
		FocusID:   s.focusID,
	}
}

// SetCurrentLocation applies a device fix. It clears any manual selection and
// the focused facility.
func (s *Session) SetCurrentLocation(p domain.GeoPoint) error {
	return s.update(func() {
		s.anchor = domain.Anchor{Current: &p}
		s.mapCenter = p
		s.clearFocusLocked()
		s.enqueue(EventAnchor, s.snapshotLocked())
		s.triggerNearbyLocked()
	})
}

// SelectLocation applies a manual pick (search result or map pan). It clears
// any device fix and the focused facility.
func (s *Session) SelectLocation(p domain.GeoPoint) error {
	return s.update(func() {
		s.anchor = domain.Anchor{Selected: &p}
		s.mapCenter = p
		s.clearFocusLocked()
		s.enqueue(EventAnchor, s.snapshotLocked())
		s.triggerNearbyLocked()
	})
}

// SetWindow changes the parking window and refetches everything that depends on it.
func (s *Session) SetWindow(w domain.TimeWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	return s.update(func() {
		s.window = w
		s.triggerNearbyLocked()
		s.triggerAvailabilityLocked()
		s.triggerDetailLocked()
	})
}

// SetLotType changes the vehicle filter and refetches everything that depends on it.
func (s *Session) SetLotType(t domain.LotType) error {
	return s.update(func() {
		s.lotType = t
		s.triggerNearbyLocked()
		s.triggerAvailabilityLocked()
		s.triggerDetailLocked()
	})
}

// SetRadius changes the nearby radius.
func (s *Session) SetRadius(km float64) error {
	if km <= 0 {
		return errors.New("radius must be positive")
	}
	return s.update(func() {
		s.radiusKm = km
		s.triggerNearbyLocked()
	})
}

// Focus selects one facility and starts its detail fetch.
func (s *Session) Focus(id string) error {
	if _, err := s.catalog.Lookup(id); err != nil {
		return err
	}
	return s.update(func() {
		s.focusID = &id
		s.triggerDetailLocked()
	})
}

// ClearFocus drops the focused facility.
func (s *Session) ClearFocus() error {
	return s.update(func() {
		s.clearFocusLocked()
	})
}

// RefetchAvailability repeats the last availability query on demand.
func (s *Session) RefetchAvailability() error {
	return s.update(func() {
		run, err := s.availability.PrepareRefetch(s.ctx)
		if err != nil {
			s.triggerAvailabilityLocked()
			return
		}
		s.spawnAvailability(run)
	})
}

// Nearby returns the nearby list, with live availability merged in and sorted.
func (s *Session) Nearby(key domain.SortKey) domain.NearbyState {
	s.touch()
	st := s.nearby.State()
	avail := s.availability.State().Availability
	st.Results = SortFacilities(MergeAvailability(st.Results, avail), key)
	return st
}

// Availability returns the availability map state.
func (s *Session) Availability() domain.AvailabilityState {
	s.touch()
	return s.availability.State()
}

// Focused returns the focus state. A minimal record picks up occupancy from
// the availability map when it has one.
func (s *Session) Focused() domain.FocusState {
	s.touch()
	st := s.detail.State()
	if st.Facility != nil && !st.Facility.Known() {
		merged := MergeAvailability([]domain.NearbyFacility{*st.Facility}, s.availability.State().Availability)
		st.Facility = &merged[0]
	}
	return st
}

// Subscribe registers an in-process listener for session events.
func (s *Session) Subscribe(fn func(SessionEvent)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// LastSeen reports when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Wait blocks until every run started so far has finished and its events
// have been delivered.
func (s *Session) Wait() {
	s.wg.Wait()
	s.evMu.Lock()
	for len(s.evQueue) > 0 || s.evBusy {
		s.evCond.Wait()
	}
	s.evMu.Unlock()
}

// Close cancels all in-flight runs and stops the poller.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribeCatalog()
	s.cancel()
	s.nearby.Cancel()
	s.availability.Cancel()
	s.detail.Clear()
	s.wg.Wait()

	s.evMu.Lock()
	s.evClosed = true
	s.evCond.Broadcast()
	s.evMu.Unlock()
	<-s.evDone
}

func (s *Session) update(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastSeen = s.now()
	fn()
	return nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) clearFocusLocked() {
	if s.focusID == nil {
		return
	}
	s.focusID = nil
	s.detail.Clear()
	s.enqueue(EventFocus, domain.FocusState{})
}

// The trigger helpers run with s.mu held so runs are prepared in call order.

func (s *Session) triggerNearbyLocked() {
	run := s.nearby.Prepare(s.ctx, NearbyQuery{
		Catalog:  s.catalog.Snapshot(),
		Anchor:   s.anchor.Point(),
		Window:   s.window,
		LotType:  s.lotType,
		RadiusKm: s.radiusKm,
	})
	s.spawn(func() { run() })
}

func (s *Session) triggerAvailabilityLocked() {
	run := s.availability.Prepare(s.ctx, AvailabilityQuery{
		IDs:     s.catalog.Snapshot().IDs(),
		Window:  s.window,
		LotType: s.lotType,
	})
	s.spawnAvailability(run)
}

func (s *Session) spawnAvailability(run func() (domain.AvailabilityState, bool)) {
	s.spawn(func() { run() })
}

func (s *Session) triggerDetailLocked() {
	if s.focusID == nil {
		return
	}
	origin := s.anchor.Point()
	if origin == nil {
		center := s.mapCenter
		origin = &center
	}
	cat := s.catalog.Snapshot()
	run := s.detail.Prepare(s.ctx, DetailQuery{
		Catalog: cat,
		ID:      *s.focusID,
		Origin:  origin,
		Window:  s.window,
		LotType: s.lotType,
	})
	if _, ok := cat.Lookup(*s.focusID); !ok {
		s.focusID = nil
	}
	s.spawn(func() { run() })
}

func (s *Session) onCatalogChange(cat *Catalog) {
	_ = s.update(func() {
		if s.focusID != nil {
			if _, ok := cat.Lookup(*s.focusID); !ok {
				s.clearFocusLocked()
			}
		}
		s.triggerNearbyLocked()
		s.triggerAvailabilityLocked()
	})
}

func (s *Session) poll(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.RefetchAvailability(); err != nil {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// enqueue stamps and queues an event. It never blocks on delivery, so it is
// safe under mu or inside a resolver commit.
func (s *Session) enqueue(kind string, payload any) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.evClosed {
		return
	}
	s.evSeq++
	s.evQueue = append(s.evQueue, SessionEvent{SessionID: s.ID, Seq: s.evSeq, Kind: kind, Payload: payload, At: s.now()})
	s.evCond.Broadcast()
}

func (s *Session) deliverEvents() {
	defer close(s.evDone)
	for {
		s.evMu.Lock()
		for len(s.evQueue) == 0 && !s.evClosed {
			s.evCond.Wait()
		}
		if s.evClosed {
			s.evQueue = nil
			s.evCond.Broadcast()
			s.evMu.Unlock()
			return
		}
		batch := s.evQueue
		s.evQueue = nil
		s.evBusy = true
		s.evMu.Unlock()

		for _, ev := range batch {
			s.deliver(ev)
		}

		s.evMu.Lock()
		s.evBusy = false
		s.evCond.Broadcast()
		s.evMu.Unlock()
	}
}

func (s *Session) deliver(ev SessionEvent) {
	s.mu.Lock()
	subs := slices.Collect(maps.Values(s.subs))
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	if s.events != nil {
		if err := s.events.PublishSessionEvent(s.ctx, s.ID, ev.Kind, ev); err != nil {
			s.logger.Debug("publish session event failed", "kind", ev.Kind, "seq", ev.Seq, "error", err)
		}
	}
}
