package app

import (
	"math"
	"slices"
	"strings"

	"anyplace_viewer/internal/domain"
)

type OrderMode string

const (
	OrderByName     OrderMode = "name"
	OrderByDistance OrderMode = "distance"
)

func ParseOrderMode(s string) (OrderMode, bool) {
	switch OrderMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderByName:
		return OrderByName, true
	case OrderByDistance:
		return OrderByDistance, true
	}
	return "", false
}

// planarDistance is the Euclidean distance on raw degrees. It is not a
// geodesic distance; near the poles and the date line the order it yields
// differs from true proximity.
func planarDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Sqrt(math.Pow(lat2-lat1, 2) + math.Pow(lon2-lon1, 2))
}

// OrderBuildings returns a sorted copy of bs. Distance mode falls back to name
// order when a building is already selected as the search scope. Buildings
// without coordinates go last in distance mode.
func OrderBuildings(bs []domain.Building, mode OrderMode, center domain.LatLng, scoped bool) []domain.Building {
	out := slices.Clone(bs)
	if mode != OrderByDistance || scoped {
		slices.SortStableFunc(out, func(a, b domain.Building) int { return strings.Compare(a.Name, b.Name) })
		return out
	}
	dist := func(b domain.Building) float64 {
		if !b.HasCoords {
			return math.Inf(1)
		}
		return planarDistance(b.Lat, b.Lon, center.Lat, center.Lng)
	}
	slices.SortStableFunc(out, func(a, b domain.Building) int {
		da, db := dist(a), dist(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// FilterBuildings keeps buildings whose name contains text, ignoring case.
func FilterBuildings(bs []domain.Building, text string) []domain.Building {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return bs
	}
	out := make([]domain.Building, 0, len(bs))
	for _, b := range bs {
		if strings.Contains(strings.ToLower(b.Name), text) {
			out = append(out, b)
		}
	}
	return out
}

// AnnotatePois returns a copy of pois with BuildingName joined from names.
func AnnotatePois(pois []domain.POI, names map[string]string) []domain.POI {
	out := make([]domain.POI, len(pois))
	for i, p := range pois {
		p.BuildingName = names[p.BuildingID]
		out[i] = p
	}
	return out
}

// BuildingNames indexes building names by id.
func BuildingNames(bs []domain.Building) map[string]string {
	m := make(map[string]string, len(bs))
	for _, b := range bs {
		m[b.ID] = b.Name
	}
	return m
}
