package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"anyplace_viewer/internal/app"
	"anyplace_viewer/internal/domain"
)

type Handlers struct{ Viewers *app.Registry }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1/session", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Post("/signin", h.signIn)
		r.Post("/signin-failure", h.signInFailure)
		r.Post("/signout", h.signOut)
		r.Post("/controls", h.toggleControls)
		r.Post("/tab", h.setTab)
		r.Post("/identity", h.showIdentity)
	})
	s.mux.Get("/v1/buildings", h.listBuildings)
	s.mux.Post("/v1/buildings/select", h.selectBuilding)
	s.mux.Get("/v1/pois", h.searchPois)
	s.mux.Post("/v1/pois/all", h.allPois)
	s.mux.Get("/v1/alerts", h.drainAlerts)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func (h *Handlers) viewer(r *http.Request) *app.Viewer {
	return h.Viewers.Get(DeviceFromContext(r.Context()))
}

// ---- session ----

type sessionView struct {
	domain.Session
	FullControls bool `json:"full_controls"`
	Tab          int  `json:"tab"`
}

func viewOf(b *app.SessionBar) sessionView {
	return sessionView{Session: b.Snapshot(), FullControls: b.FullControls(), Tab: b.ActiveTab()}
}

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, viewOf(h.viewer(r).Session))
}

func (h *Handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var a domain.Assertion
	if err := render.DecodeJSON(r.Body, &a); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected a sign-in assertion")
		return
	}
	res, err := h.viewer(r).Session.OnSignInSuccess(r.Context(), a)
	if errors.Is(err, domain.ErrProfileUnavailable) {
		writeProblem(w, http.StatusUnprocessableEntity, "Profile unavailable", "the assertion carries no usable profile")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Sign-in failed", "")
		return
	}
	render.JSON(w, r, res)
}

func (h *Handlers) signInFailure(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := render.DecodeJSON(r.Body, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected {\"reason\": ...}")
		return
	}
	h.viewer(r).Session.OnSignInFailure(in.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) signOut(w http.ResponseWriter, r *http.Request) {
	v := h.viewer(r)
	v.Session.SignOut(r.Context())
	render.JSON(w, r, viewOf(v.Session))
}

func (h *Handlers) toggleControls(w http.ResponseWriter, r *http.Request) {
	on := h.viewer(r).Session.ToggleFullControls()
	render.JSON(w, r, map[string]bool{"full_controls": on})
}

func (h *Handlers) setTab(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Tab int `json:"tab"`
	}
	if err := render.DecodeJSON(r.Body, &in); err != nil || in.Tab < 1 {
		writeProblem(w, http.StatusBadRequest, "Invalid tab", "tab must be a positive integer")
		return
	}
	b := h.viewer(r).Session
	b.SetTab(in.Tab)
	render.JSON(w, r, map[string]int{"tab": b.ActiveTab()})
}

func (h *Handlers) showIdentity(w http.ResponseWriter, r *http.Request) {
	if !h.viewer(r).Session.ShowIdentity() {
		writeProblem(w, http.StatusUnauthorized, "Not signed in", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- buildings & pois ----

type buildingsView struct {
	Selected  string            `json:"selected,omitempty"`
	Buildings []domain.Building `json:"buildings"`
}

func (h *Handlers) listBuildings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, ok := app.ParseOrderMode(q.Get("order"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid order", "order must be name or distance")
		return
	}
	var center domain.LatLng
	if mode == app.OrderByDistance {
		lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
		lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
		if err1 != nil || err2 != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid center", "lat and lng are required for distance order")
			return
		}
		center = domain.LatLng{Lat: lat, Lng: lng}
	}

	v := h.viewer(r)
	if err := v.WaitLoaded(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Buildings not loaded", "")
		return
	}
	out := buildingsView{
		Selected:  v.Search.Selected(),
		Buildings: v.Search.Buildings(mode, center, q.Get("q")),
	}
	if out.Buildings == nil {
		out.Buildings = []domain.Building{}
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listBuildings body")
	}
}

func (h *Handlers) selectBuilding(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BuildingID string `json:"buid"`
	}
	if err := render.DecodeJSON(r.Body, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected {\"buid\": ...}")
		return
	}
	s := h.viewer(r).Search
	s.SelectBuilding(in.BuildingID)
	render.JSON(w, r, map[string]string{"selected": s.Selected()})
}

func (h *Handlers) searchPois(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.viewer(r).Search.Query(r.URL.Query().Get("q")))
}

func (h *Handlers) allPois(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.viewer(r).Search.LoadAllPois(r.Context()))
}

func (h *Handlers) drainAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.viewer(r).Alerts.Drain()
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	render.JSON(w, r, alerts)
}
