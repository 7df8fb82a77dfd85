package anyplace

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"anyplace_viewer/internal/domain"
)

/********** wire shapes **********/

type signAccountReq struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

type buildingsReq struct {
	Campus string `json:"cuid"`
}

type poisReq struct {
	Campus    string `json:"cuid"`
	Letters   string `json:"letters"`
	Greeklish string `json:"greeklish"`
}

type errorEnvelope struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// The mapping API serves every scalar as a string ("52.52", "true"), but older
// deployments emit native JSON numbers and booleans. flex accepts both.
type flex string

func (f *flex) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flex(v)
		return nil
	}
	*f = flex(s)
	return nil
}

type buildingDTO struct {
	Buid        string `json:"buid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
	URL         string `json:"url"`
	Published   flex   `json:"is_published"`
	Lat         flex   `json:"coordinates_lat"`
	Lon         flex   `json:"coordinates_lon"`
}

type buildingsResp struct {
	Buildings []buildingDTO `json:"buildings"`
	Greeklish flex          `json:"greeklish"`
}

type poiDTO struct {
	Puid        string `json:"puid"`
	Buid        string `json:"buid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	FloorNumber flex   `json:"floor_number"`
	Lat         flex   `json:"coordinates_lat"`
	Lon         flex   `json:"coordinates_lon"`
}

type poisResp struct {
	Pois []poiDTO `json:"pois"`
}

/********** mapping **********/

func mapBuildings(in buildingsResp) domain.BuildingList {
	out := domain.BuildingList{
		Buildings: make([]domain.Building, 0, len(in.Buildings)),
		Greeklish: parseBool(in.Greeklish),
	}
	for _, b := range in.Buildings {
		lat, okLat := parseFloat(b.Lat)
		lon, okLon := parseFloat(b.Lon)
		out.Buildings = append(out.Buildings, domain.Building{
			ID:          b.Buid,
			Name:        b.Name,
			Description: placeholder(b.Description),
			Address:     placeholder(b.Address),
			URL:         placeholder(b.URL),
			Published:   parseBool(b.Published),
			Lat:         lat,
			Lon:         lon,
			HasCoords:   okLat && okLon,
		})
	}
	return out
}

func mapPois(in []poiDTO) []domain.POI {
	out := make([]domain.POI, 0, len(in))
	for _, p := range in {
		lat, _ := parseFloat(p.Lat)
		lon, _ := parseFloat(p.Lon)
		out = append(out, domain.POI{
			ID:          p.Puid,
			BuildingID:  p.Buid,
			Name:        p.Name,
			Description: placeholder(p.Description),
			FloorNumber: string(p.FloorNumber),
			Lat:         lat,
			Lon:         lon,
		})
	}
	return out
}

// parseFloat accepts "52.5" and the comma-decimal "52,5".
func parseFloat(f flex) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(string(f), ",", "."))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseBool(f flex) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(string(f)))
	return err == nil && v
}

// The backend stores "-" for absent optional text fields.
func placeholder(s string) string {
	if strings.TrimSpace(s) == "-" {
		return ""
	}
	return s
}
