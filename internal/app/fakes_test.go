package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"anyplace_viewer/internal/app"
	"anyplace_viewer/internal/domain"
)

// ---- fakes ----

type fakeAPI struct {
	mu        sync.Mutex
	buildings domain.BuildingList
	bErr      error
	bCalls    int
	pois      map[string][]domain.POI
	poisErr   error
	queries   []domain.PoiQuery
	onSearch  func(q domain.PoiQuery) // runs while the request is "in flight"
	regs      []domain.AccountRegistration
	regErr    error
}

func (f *fakeAPI) RegisterAccount(ctx context.Context, a domain.AccountRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = append(f.regs, a)
	return f.regErr
}

func (f *fakeAPI) ListBuildings(ctx context.Context, campus string) (domain.BuildingList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bCalls++
	return f.buildings, f.bErr
}

func (f *fakeAPI) SearchPois(ctx context.Context, q domain.PoiQuery) ([]domain.POI, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	hook := f.onSearch
	f.mu.Unlock()
	if hook != nil {
		hook(q)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poisErr != nil {
		return nil, f.poisErr
	}
	return f.pois[q.Letters], nil
}

func (f *fakeAPI) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeAPI) registrations() []domain.AccountRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AccountRegistration(nil), f.regs...)
}

// manualScheduler only runs timers when the test says so.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) app.Timer {
	t := &manualTimer{f: f}
	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()
	return t
}

// FireAll runs every timer armed so far, stopped ones included, as a late
// timer goroutine would. It returns how many were armed.
func (s *manualScheduler) FireAll() int {
	s.mu.Lock()
	ts := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, t := range ts {
		t.f()
	}
	return len(ts)
}

func (s *manualScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

type mapCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (c *mapCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = b
	return nil
}

func (c *mapCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// mockIdentity is a testify mock of the identity provider.
type mockIdentity struct{ mock.Mock }

func (m *mockIdentity) ProfileFromToken(token string) (domain.Profile, error) {
	args := m.Called(token)
	return args.Get(0).(domain.Profile), args.Error(1)
}

func (m *mockIdentity) SignOut(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type memMarkers struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (m *memMarkers) Get(ctx context.Context, device, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[device+"/"+name]
	return v, ok && v != "", nil
}

func (m *memMarkers) Set(ctx context.Context, device, name, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[device+"/"+name] = value
	return nil
}

func (m *memMarkers) Clear(ctx context.Context, device, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, device+"/"+name)
	return nil
}

var errBoom = errors.New("boom")
