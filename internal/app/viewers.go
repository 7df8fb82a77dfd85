package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"anyplace_viewer/internal/adapters/observability"
	"anyplace_viewer/internal/domain"
	"anyplace_viewer/internal/events"
)

type RegistryConfig struct {
	Search      SearchConfig
	IdleTTL     time.Duration
	LoadTimeout time.Duration
	Now         func() time.Time
}

type RegistryDeps struct {
	API       domain.AnyplaceAPI
	Identity  domain.IdentityProvider
	Markers   domain.MarkerStore
	Cache     domain.Cache
	Scheduler Scheduler
	Logger    zerolog.Logger
}

// Viewer is the state of one device: its session bar, its search widget and
// the alerts both raise.
type Viewer struct {
	Device  string
	Session *SessionBar
	Search  *SearchWidget
	Alerts  *AlertLog
	Bus     *events.Bus

	loaded   chan struct{}
	consumed chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

// WaitLoaded blocks until the initial building load has finished, whatever
// its outcome.
func (v *Viewer) WaitLoaded(ctx context.Context) error {
	select {
	case <-v.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Viewer) touch(t time.Time) {
	v.mu.Lock()
	v.lastSeen = t
	v.mu.Unlock()
}

func (v *Viewer) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

func (v *Viewer) close() {
	v.Search.Close()
	v.Bus.Close()
	<-v.consumed
	v.Session.Close()
}

// Registry maps device ids to viewers. Viewers are created on first use and
// evicted by Run once idle for longer than IdleTTL.
type Registry struct {
	cfg  RegistryConfig
	deps RegistryDeps
	log  zerolog.Logger

	group singleflight.Group

	mu      sync.Mutex
	viewers map[string]*Viewer
	closed  bool
}

func NewRegistry(cfg RegistryConfig, d RegistryDeps) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{cfg: cfg, deps: d, log: d.Logger, viewers: map[string]*Viewer{}}
}

// Get returns the viewer for device, creating it if needed.
func (r *Registry) Get(device string) *Viewer {
	now := r.cfg.Now()

	r.mu.Lock()
	if v, ok := r.viewers[device]; ok {
		r.mu.Unlock()
		v.touch(now)
		return v
	}
	v := r.newViewer(device)
	v.lastSeen = now
	if r.closed {
		r.mu.Unlock()
		// usable but inert: nothing loads and nothing outlives the call
		close(v.loaded)
		v.close()
		return v
	}
	r.viewers[device] = v
	observability.Viewers.Set(float64(len(r.viewers)))
	r.mu.Unlock()

	go func() {
		defer close(v.loaded)
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.LoadTimeout)
		defer cancel()
		_ = v.Search.Load(ctx)
	}()
	return v
}

func (r *Registry) newViewer(device string) *Viewer {
	l := r.log.With().Str("device", device).Logger()
	alerts := NewAlertLog(l)
	bus := events.NewBus(l)
	v := &Viewer{
		Device: device,
		Alerts: alerts,
		Bus:    bus,
		Session: NewSessionBar(device, SessionDeps{
			API:      r.deps.API,
			Identity: r.deps.Identity,
			Markers:  r.deps.Markers,
			Alerts:   alerts,
			Bus:      bus,
			Logger:   l,
		}),
		Search: NewSearchWidget(r.cfg.Search, SearchDeps{
			API:       r.deps.API,
			Loader:    r.loadBuildings,
			Cache:     r.deps.Cache,
			Alerts:    alerts,
			Scheduler: r.deps.Scheduler,
			Logger:    l,
		}),
		loaded:   make(chan struct{}),
		consumed: make(chan struct{}),
	}

	ch, _ := bus.Subscribe(16)
	go func() {
		defer close(v.consumed)
		for ev := range ch {
			observability.ObserveSession(string(ev.Kind))
			l.Info().Str("event", string(ev.Kind)).Str("owner_id", ev.OwnerID).Msg("session event")
		}
	}()
	return v
}

// loadBuildings coalesces concurrent loads of the same campus. The shared
// call is detached from the first caller's cancellation.
func (r *Registry) loadBuildings(ctx context.Context, campus string) (domain.BuildingList, error) {
	ch := r.group.DoChan(campus, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LoadTimeout)
		defer cancel()
		return r.deps.API.ListBuildings(lctx, campus)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.BuildingList{}, res.Err
		}
		return res.Val.(domain.BuildingList), nil
	case <-ctx.Done():
		return domain.BuildingList{}, ctx.Err()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// Sweep evicts viewers idle for longer than IdleTTL and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var idle []*Viewer
	for id, v := range r.viewers {
		if v.idleSince().Before(cutoff) {
			idle = append(idle, v)
			delete(r.viewers, id)
		}
	}
	observability.Viewers.Set(float64(len(r.viewers)))
	r.mu.Unlock()

	for _, v := range idle {
		v.close()
		r.log.Debug().Str("device", v.Device).Msg("viewer evicted")
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	every := r.cfg.IdleTTL / 4
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				r.log.Info().Int("evicted", n).Msg("idle viewers evicted")
			}
		}
	}
}

// Close tears down every viewer. Later Gets return already closed viewers.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	vs := r.viewers
	r.viewers = map[string]*Viewer{}
	observability.Viewers.Set(0)
	r.mu.Unlock()

	for _, v := range vs {
		v.close()
	}
}
