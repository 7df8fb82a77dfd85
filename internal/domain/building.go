package domain

// Building as served by the Anyplace mapping API.
type Building struct {
	ID          string  `json:"buid"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Address     string  `json:"address,omitempty"`
	URL         string  `json:"url,omitempty"`
	Published   bool    `json:"is_published"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	HasCoords   bool    `json:"has_coords"` // false when the backend sent unparsable coordinates
}

// POI is a point of interest tied to a building. BuildingName is filled in
// memory from the building list, never persisted.
type POI struct {
	ID           string  `json:"puid"`
	BuildingID   string  `json:"buid"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	FloorNumber  string  `json:"floor_number"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	BuildingName string  `json:"buname,omitempty"`
}

type LatLng struct{ Lat, Lng float64 }

// BuildingList is the result of a bulk building fetch.
type BuildingList struct {
	Buildings []Building
	Greeklish bool
}

type PoiQuery struct {
	Campus    string
	Letters   string
	Greeklish bool
}
