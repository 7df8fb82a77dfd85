package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anyplace_viewer/internal/app"
	"anyplace_viewer/internal/domain"
)

type widgetFixture struct {
	api    *fakeAPI
	sched  *manualScheduler
	alerts *app.AlertLog
	w      *app.SearchWidget
}

func newWidget(t *testing.T, api *fakeAPI, cache domain.Cache) widgetFixture {
	t.Helper()
	f := widgetFixture{api: api, sched: &manualScheduler{}, alerts: app.NewAlertLog(zerolog.Nop())}
	var ttl time.Duration
	if cache != nil {
		ttl = time.Minute
	}
	f.w = app.NewSearchWidget(
		app.SearchConfig{Campus: "ucy", CacheTTL: ttl},
		app.SearchDeps{API: api, Cache: cache, Alerts: f.alerts, Scheduler: f.sched, Logger: zerolog.Nop()},
	)
	t.Cleanup(f.w.Close)
	return f
}

func campusAPI() *fakeAPI {
	return &fakeAPI{
		buildings: domain.BuildingList{Buildings: []domain.Building{{ID: "b1", Name: "Hotel X"}}},
		pois: map[string][]domain.POI{
			"caf": {{ID: "p1", BuildingID: "b1", Name: "Cafeteria"}},
			"a":   {{ID: "pa", BuildingID: "b1", Name: "A"}},
			"b":   {{ID: "pb", BuildingID: "b1", Name: "B"}},
		},
	}
}

func TestSearch_AnnotatesBuildingName(t *testing.T) {
	f := newWidget(t, campusAPI(), nil)
	require.NoError(t, f.w.Load(context.Background()))

	f.w.Query("caf")
	require.Equal(t, 1, f.sched.FireAll())

	v := f.w.View()
	require.Len(t, v.Pois, 1)
	assert.Equal(t, "Cafeteria", v.Pois[0].Name)
	assert.Equal(t, "Hotel X", v.Pois[0].BuildingName)
	assert.Equal(t, "caf", v.ResultsQuery)
	assert.Equal(t, "idle", v.Phase)
}

func TestSearch_EmptyQuerySendsNothing(t *testing.T) {
	f := newWidget(t, campusAPI(), nil)
	f.w.Query("caf")
	f.sched.FireAll()
	before := f.w.View().Pois

	v := f.w.Query("")
	assert.Empty(t, v.Pois)
	assert.Equal(t, 0, f.sched.Armed())
	f.sched.FireAll()
	assert.Equal(t, 1, f.api.searchCount())
	assert.Equal(t, before, f.w.View().Pois)
}

func TestSearch_BurstIssuesOneRequestForLastQuery(t *testing.T) {
	f := newWidget(t, campusAPI(), nil)
	for _, q := range []string{"c", "ca", "caf"} {
		f.w.Query(q)
	}
	require.Equal(t, 3, f.sched.FireAll())

	require.Equal(t, 1, f.api.searchCount())
	assert.Equal(t, "caf", f.api.queries[0].Letters)
	assert.Equal(t, "ucy", f.api.queries[0].Campus)
}

func TestSearch_StaleResponseDoesNotClobber(t *testing.T) {
	api := campusAPI()
	f := newWidget(t, api, nil)

	// while "a" is in flight the user types "b"
	api.onSearch = func(q domain.PoiQuery) {
		if q.Letters == "a" {
			f.w.Query("b")
		}
	}
	f.w.Query("a")
	f.sched.FireAll() // fires "a", arms "b"

	v := f.w.View()
	assert.Empty(t, v.Pois, "response for a must be discarded")
	assert.Equal(t, "b", v.Query)
	assert.Equal(t, "pending", v.Phase)

	f.sched.FireAll()
	v = f.w.View()
	require.Len(t, v.Pois, 1)
	assert.Equal(t, "pb", v.Pois[0].ID)
}

func TestSearch_RepeatServedWithoutRequest(t *testing.T) {
	f := newWidget(t, campusAPI(), nil)
	f.w.Query("caf")
	f.sched.FireAll()
	first := f.w.View().Pois

	v := f.w.Query("caf")
	assert.Equal(t, 0, f.sched.Armed())
	assert.Equal(t, first, v.Pois)
	assert.Equal(t, 1, f.api.searchCount())
}

func TestSearch_SelectBuildingForcesRefetch(t *testing.T) {
	f := newWidget(t, campusAPI(), nil)
	f.w.Query("caf")
	f.sched.FireAll()

	f.w.SelectBuilding("b1")
	assert.Equal(t, "b1", f.w.Selected())
	f.w.Query("caf")
	f.sched.FireAll()
	assert.Equal(t, 2, f.api.searchCount())
}

func TestSearch_GreeklishForwarded(t *testing.T) {
	api := campusAPI()
	api.buildings.Greeklish = true
	f := newWidget(t, api, nil)
	require.NoError(t, f.w.Load(context.Background()))

	f.w.Query("caf")
	f.sched.FireAll()
	assert.True(t, api.queries[0].Greeklish)
}

func TestSearch_BuildingLoadFailureAlerts(t *testing.T) {
	api := campusAPI()
	api.bErr = errBoom
	f := newWidget(t, api, nil)

	require.ErrorIs(t, f.w.Load(context.Background()), errBoom)
	alerts := f.alerts.Drain()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityDanger, alerts[0].Severity)
	assert.Equal(t, "Something went wrong while fetching buildings.", alerts[0].Message)
}

func TestSearch_FailureAsymmetry(t *testing.T) {
	api := campusAPI()
	f := newWidget(t, api, nil)
	f.w.Query("caf")
	f.sched.FireAll()

	api.poisErr = errBoom
	f.w.Query("cafe")
	f.sched.FireAll()
	assert.Empty(t, f.alerts.Drain(), "keystroke failures stay silent")
	assert.Equal(t, "caf", f.w.View().ResultsQuery, "previous results kept")

	f.w.LoadAllPois(context.Background())
	alerts := f.alerts.Drain()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Something went wrong while fetching POIs", alerts[0].Message)
}

func TestSearch_LoadAllPoisCancelsPending(t *testing.T) {
	api := campusAPI()
	api.pois[""] = []domain.POI{{ID: "p1"}, {ID: "p2"}}
	f := newWidget(t, api, nil)

	f.w.Query("caf")
	v := f.w.LoadAllPois(context.Background())
	assert.Len(t, v.Pois, 2)

	f.sched.FireAll() // stale "caf" timer
	assert.Equal(t, 1, api.searchCount())
}

func TestSearch_SharedCache(t *testing.T) {
	cache := &mapCache{}
	api := campusAPI()
	a := newWidget(t, api, cache)
	b := newWidget(t, api, cache)
	require.NoError(t, b.w.Load(context.Background()))

	a.w.Query("caf")
	a.sched.FireAll()
	b.w.Query("caf")
	b.sched.FireAll()

	assert.Equal(t, 1, api.searchCount())
	v := b.w.View()
	require.Len(t, v.Pois, 1)
	assert.Equal(t, "Hotel X", v.Pois[0].BuildingName, "cached entries are annotated per viewer")
}

func TestSearch_ClosedWidgetIgnoresTimers(t *testing.T) {
	f := newWidget(t, campusAPI(), nil)
	f.w.Query("caf")
	f.w.Close()
	f.sched.FireAll()
	assert.Equal(t, 0, f.api.searchCount())
}

func TestSearch_BuildingsOrderedAndFiltered(t *testing.T) {
	api := &fakeAPI{buildings: domain.BuildingList{Buildings: []domain.Building{
		{ID: "b2", Name: "Far Hall", Lat: 0, Lon: 2, HasCoords: true},
		{ID: "b1", Name: "Near Hall", Lat: 0, Lon: 1, HasCoords: true},
		{ID: "b3", Name: "Annex", Lat: 0, Lon: 0.5, HasCoords: true},
	}}}
	f := newWidget(t, api, nil)
	require.NoError(t, f.w.Load(context.Background()))

	got := f.w.Buildings(app.OrderByDistance, domain.LatLng{}, "hall")
	assert.Equal(t, []string{"Near Hall", "Far Hall"}, names(got))

	f.w.SelectBuilding("b1")
	got = f.w.Buildings(app.OrderByDistance, domain.LatLng{}, "")
	assert.Equal(t, []string{"Annex", "Far Hall", "Near Hall"}, names(got))
}

func TestSearch_UnreadableCacheEntryIsAMiss(t *testing.T) {
	cache := &mapCache{store: map[string][]byte{"pois:ucy:false:caf": []byte("{not json")}}
	f := newWidget(t, campusAPI(), cache)
	require.NoError(t, f.w.Load(context.Background()))

	f.w.Query("caf")
	f.sched.FireAll()

	assert.Equal(t, 1, f.api.searchCount(), "backend consulted")
	v := f.w.View()
	require.Len(t, v.Pois, 1)
	assert.Equal(t, "Cafeteria", v.Pois[0].Name)

	var cached []domain.POI
	ok, err := cache.Get(context.Background(), "pois:ucy:false:caf", &cached)
	require.True(t, ok)
	require.NoError(t, err, "entry rewritten with fresh results")
	assert.Len(t, cached, 1)
}

func TestSearch_CanceledLoadAllDoesNotAlert(t *testing.T) {
	api := campusAPI()
	api.pois[""] = []domain.POI{{ID: "p1"}}
	f := newWidget(t, api, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := f.w.LoadAllPois(ctx)

	assert.Empty(t, v.Pois)
	assert.Equal(t, "idle", v.Phase)
	assert.Empty(t, f.alerts.Drain())
}
