package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"anyplace_viewer/internal/adapters/observability"
	"anyplace_viewer/internal/domain"
)

const msgBuildingsFailed = "Something went wrong while fetching buildings."

// Timer is the part of *time.Timer the widget needs.
type Timer interface{ Stop() bool }

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealScheduler schedules on the runtime timer heap.
var RealScheduler Scheduler = realScheduler{}

type BuildingLoader func(ctx context.Context, campus string) (domain.BuildingList, error)

type SearchConfig struct {
	Campus         string
	Debounce       time.Duration
	RequestTimeout time.Duration
	CacheTTL       time.Duration
}

type SearchDeps struct {
	API       domain.AnyplaceAPI
	Loader    BuildingLoader // defaults to API.ListBuildings
	Cache     domain.Cache   // optional shared result cache
	Alerts    domain.AlertSink
	Scheduler Scheduler // defaults to RealScheduler
	Logger    zerolog.Logger
}

// SearchView is what a consumer may render. Pois belong to ResultsQuery, which
// differs from Query while a newer query is pending.
type SearchView struct {
	Query        string       `json:"query"`
	ResultsQuery string       `json:"results_query"`
	Phase        string       `json:"phase"`
	Pois         []domain.POI `json:"pois"`
}

// SearchWidget drives Reduce: it owns the debounce timer, issues backend calls
// outside the lock and feeds their outcomes back.
type SearchWidget struct {
	cfg    SearchConfig
	api    domain.AnyplaceAPI
	loader BuildingLoader
	cache  domain.Cache
	alerts domain.AlertSink
	sched  Scheduler
	log    zerolog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     SearchState
	timer     Timer
	buildings []domain.Building
	names     map[string]string
	greeklish bool
	selected  string
	closed    bool
}

func NewSearchWidget(cfg SearchConfig, d SearchDeps) *SearchWidget {
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if d.Scheduler == nil {
		d.Scheduler = RealScheduler
	}
	if d.Loader == nil {
		d.Loader = d.API.ListBuildings
	}
	base, cancel := context.WithCancel(context.Background())
	return &SearchWidget{
		cfg:    cfg,
		api:    d.API,
		loader: d.Loader,
		cache:  d.Cache,
		alerts: d.Alerts,
		sched:  d.Scheduler,
		log:    d.Logger,
		base:   base,
		cancel: cancel,
		names:  map[string]string{},
	}
}

// Load fetches the building list once and rebuilds the id -> name index.
func (w *SearchWidget) Load(ctx context.Context) error {
	list, err := w.loader(ctx, w.cfg.Campus)
	if err != nil {
		w.log.Warn().Err(err).Str("campus", w.cfg.Campus).Msg("building fetch failed")
		w.alerts.Add(domain.SeverityDanger, msgBuildingsFailed)
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.buildings = list.Buildings
	w.names = BuildingNames(list.Buildings)
	w.greeklish = list.Greeklish
	w.log.Debug().Int("buildings", len(list.Buildings)).Bool("greeklish", list.Greeklish).Msg("buildings loaded")
	return nil
}

// Buildings returns the filtered, ordered building list.
func (w *SearchWidget) Buildings(mode OrderMode, center domain.LatLng, filter string) []domain.Building {
	w.mu.Lock()
	bs, scoped := w.buildings, w.selected != ""
	w.mu.Unlock()
	return OrderBuildings(FilterBuildings(bs, filter), mode, center, scoped)
}

// SelectBuilding scopes the search to buid; an empty id clears the scope.
func (w *SearchWidget) SelectBuilding(buid string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selected = buid
	w.state, _ = Reduce(w.state, ScopeChanged{BuildingID: buid})
}

func (w *SearchWidget) Selected() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// Query records a change of the search box and returns what can be shown
// right now. An empty query shows nothing and never reaches the backend.
func (w *SearchWidget) Query(q string) SearchView {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.viewLocked()
	}

	var eff SearchEffect
	w.state, eff = Reduce(w.state, QueryChanged{Query: q})
	switch eff.Kind {
	case EffectArmTimer:
		if w.timer != nil {
			w.timer.Stop()
		}
		gen := eff.Generation
		w.timer = w.sched.AfterFunc(w.cfg.Debounce, func() { w.elapsed(gen) })
		observability.ObserveSearch("armed")
	case EffectServeCached:
		if w.timer != nil {
			w.timer.Stop()
		}
		observability.ObserveSearch("cached")
	}

	if q == "" {
		return SearchView{Query: w.state.Query, ResultsQuery: w.state.ResultsQuery, Phase: w.state.Phase.String()}
	}
	return w.viewLocked()
}

// LoadAllPois fetches every POI of the campus immediately and waits for it.
func (w *SearchWidget) LoadAllPois(ctx context.Context) SearchView {
	w.mu.Lock()
	if w.closed {
		defer w.mu.Unlock()
		return w.viewLocked()
	}
	var eff SearchEffect
	w.state, eff = Reduce(w.state, AllRequested{})
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.fetch(ctx, eff)
	return w.View()
}

func (w *SearchWidget) View() SearchView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *SearchWidget) viewLocked() SearchView {
	return SearchView{
		Query:        w.state.Query,
		ResultsQuery: w.state.ResultsQuery,
		Phase:        w.state.Phase.String(),
		Pois:         w.state.Results,
	}
}

// Close stops the timer and cancels in-flight requests.
func (w *SearchWidget) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.cancel()
}

func (w *SearchWidget) elapsed(gen uint64) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	var eff SearchEffect
	w.state, eff = Reduce(w.state, DebounceElapsed{Generation: gen})
	w.mu.Unlock()

	if eff.Kind == EffectFetch {
		w.fetch(w.base, eff)
	}
}

func (w *SearchWidget) fetch(parent context.Context, eff SearchEffect) {
	if eff.Kind != EffectFetch {
		return
	}
	observability.ObserveSearch("fired")

	w.mu.Lock()
	q := domain.PoiQuery{Campus: w.cfg.Campus, Letters: eff.Query, Greeklish: w.greeklish}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, w.cfg.RequestTimeout)
	defer cancel()
	pois, err := w.searchPois(ctx, q)

	w.mu.Lock()
	if err == nil {
		pois = AnnotatePois(pois, w.names)
	}
	var out SearchEffect
	w.state, out = Reduce(w.state, SearchResolved{Generation: eff.Generation, Query: eff.Query, Pois: pois, Err: err})
	w.mu.Unlock()

	switch out.Kind {
	case EffectApplied:
		observability.ObserveSearch("applied")
	case EffectDiscard:
		observability.ObserveSearch("stale")
		w.log.Debug().Str("query", eff.Query).Uint64("generation", eff.Generation).Msg("stale search response discarded")
	case EffectFailed:
		observability.ObserveSearch("failed")
		w.log.Debug().Err(err).Str("query", eff.Query).Msg("poi search failed")
	case EffectAlert:
		observability.ObserveSearch("failed")
		if errors.Is(err, context.Canceled) {
			w.log.Debug().Err(err).Msg("poi load abandoned by caller")
			return
		}
		w.log.Warn().Err(err).Msg("poi load failed")
		w.alerts.Add(domain.SeverityDanger, out.Message)
	}
}

func poiCacheKey(q domain.PoiQuery) string {
	return fmt.Sprintf("pois:%s:%s:%s", q.Campus, strconv.FormatBool(q.Greeklish), q.Letters)
}

// searchPois reads through the shared cache when one is configured.
func (w *SearchWidget) searchPois(ctx context.Context, q domain.PoiQuery) ([]domain.POI, error) {
	if w.cache == nil || w.cfg.CacheTTL <= 0 {
		return w.api.SearchPois(ctx, q)
	}
	key := poiCacheKey(q)
	var cached []domain.POI
	ok, err := w.cache.Get(ctx, key, &cached)
	switch {
	case ok && err == nil:
		return cached, nil
	case ok:
		// undecodable entry: drop it and ask the backend
		w.log.Warn().Err(err).Str("key", key).Msg("cache entry unreadable, evicting")
		if err := w.cache.Del(ctx, key); err != nil {
			w.log.Debug().Err(err).Str("key", key).Msg("cache del failed")
		}
	case err != nil:
		w.log.Debug().Err(err).Str("key", key).Msg("cache get failed")
	}

	pois, err := w.api.SearchPois(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := w.cache.Set(ctx, key, pois, int(w.cfg.CacheTTL.Seconds())); err != nil {
		w.log.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
	return pois, nil
}
