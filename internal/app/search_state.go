package app

import "anyplace_viewer/internal/domain"

// SearchPhase is where the most recently recorded query is in its lifecycle.
type SearchPhase int

const (
	PhaseIdle SearchPhase = iota
	PhasePending
	PhaseFired
)

func (p SearchPhase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseFired:
		return "fired"
	}
	return "idle"
}

// SearchState is an immutable snapshot of the POI search. Reduce never
// mutates its input; Results is replaced, never written in place.
type SearchState struct {
	Query      string // most recently recorded query
	Generation uint64 // bumped on every recorded query; the staleness token
	Phase      SearchPhase

	Results      []domain.POI
	ResultsQuery string // query Results are valid for
	LastFetched  string // last query that completed successfully
	hasFetched   bool
}

type SearchEvent interface{ searchEvent() }

// QueryChanged is a keystroke: the search box now holds Query.
type QueryChanged struct{ Query string }

// DebounceElapsed fires when the timer armed for Generation runs out.
type DebounceElapsed struct{ Generation uint64 }

// AllRequested asks for every POI of the campus (empty letters), bypassing
// the debounce.
type AllRequested struct{}

// SearchResolved carries the backend outcome for the request of Generation.
type SearchResolved struct {
	Generation uint64
	Query      string
	Pois       []domain.POI
	Err        error
}

// ScopeChanged records a building selection. A non-empty selection forgets
// the last fetched query.
type ScopeChanged struct{ BuildingID string }

func (QueryChanged) searchEvent()    {}
func (DebounceElapsed) searchEvent() {}
func (AllRequested) searchEvent()    {}
func (SearchResolved) searchEvent()  {}
func (ScopeChanged) searchEvent()    {}

type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectArmTimer
	EffectFetch
	EffectServeCached
	EffectAlert
	EffectDiscard
	EffectApplied
	EffectFailed
)

// SearchEffect tells the driver what to do after a transition.
type SearchEffect struct {
	Kind       EffectKind
	Generation uint64
	Query      string
	Message    string
}

const msgPoisFailed = "Something went wrong while fetching POIs"

// Reduce is the whole debounce / staleness algorithm.
func Reduce(s SearchState, ev SearchEvent) (SearchState, SearchEffect) {
	switch e := ev.(type) {
	case QueryChanged:
		if e.Query == "" {
			return s, SearchEffect{}
		}
		if s.hasFetched && e.Query == s.LastFetched && s.ResultsQuery == e.Query {
			s.Query = e.Query
			s.Generation++ // supersede anything pending or in flight
			s.Phase = PhaseIdle
			return s, SearchEffect{Kind: EffectServeCached, Generation: s.Generation, Query: e.Query}
		}
		if e.Query == s.Query && s.Phase != PhaseIdle {
			return s, SearchEffect{}
		}
		s.Query = e.Query
		s.Generation++
		s.Phase = PhasePending
		return s, SearchEffect{Kind: EffectArmTimer, Generation: s.Generation, Query: e.Query}

	case DebounceElapsed:
		if e.Generation != s.Generation || s.Phase != PhasePending {
			return s, SearchEffect{}
		}
		s.Phase = PhaseFired
		return s, SearchEffect{Kind: EffectFetch, Generation: s.Generation, Query: s.Query}

	case AllRequested:
		s.Query = ""
		s.Generation++
		s.Phase = PhaseFired
		return s, SearchEffect{Kind: EffectFetch, Generation: s.Generation}

	case SearchResolved:
		if e.Generation != s.Generation {
			return s, SearchEffect{Kind: EffectDiscard, Generation: e.Generation, Query: e.Query}
		}
		s.Phase = PhaseIdle
		if e.Err != nil {
			// Only the explicit load-everything request is surfaced; a failed
			// keystroke search keeps the previous results silently.
			if e.Query == "" {
				return s, SearchEffect{Kind: EffectAlert, Generation: e.Generation, Message: msgPoisFailed}
			}
			return s, SearchEffect{Kind: EffectFailed, Generation: e.Generation, Query: e.Query}
		}
		s.Results = e.Pois
		s.ResultsQuery = e.Query
		s.LastFetched = e.Query
		s.hasFetched = true
		return s, SearchEffect{Kind: EffectApplied, Generation: e.Generation, Query: e.Query}

	case ScopeChanged:
		if e.BuildingID != "" {
			s.LastFetched = ""
			s.hasFetched = false
		}
		return s, SearchEffect{}
	}
	return s, SearchEffect{}
}
