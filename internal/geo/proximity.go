package geo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	log "propertypackaging/internal/logging"
)

var ErrNoAmenities = errors.New("No amenities found")

const (
	searchRadius  = 50000
	searchLimit   = 100
	airportRadius = 200000
	airportLimit  = 20
	trainRadius   = 100000
	trainLimit    = 30
)

var allCategories = []string{
	"childcare.kindergarten",
	"education.school",
	"commercial.supermarket",
	"healthcare.hospital",
	"public_transport.train",
	"railway.train",
	"public_transport.bus",
	"beach",
	"airport",
	"populated_place.city",
	"childcare",
}

type amenityKind struct {
	name       string
	count      int
	categories []string
}

var requiredAmenities = []amenityKind{
	{"kindergarten", 1, []string{"childcare.kindergarten"}},
	{"schools", 3, []string{"education.school"}},
	{"supermarkets", 2, []string{"commercial.supermarket"}},
	{"hospitals", 2, []string{"healthcare.hospital"}},
	{"train_station", 1, []string{"public_transport.train", "railway.train"}},
	{"bus_stop", 1, []string{"public_transport.bus"}},
	{"beach", 1, []string{"beach"}},
	{"airport", 1, []string{"airport"}},
	{"child_daycare", 3, []string{"childcare"}},
}

var majorSupermarkets = []string{"coles", "woolworths", "aldi", "iga"}

var capitalCities = []string{"sydney", "melbourne", "brisbane", "perth", "adelaide", "hobart", "darwin", "canberra"}

// stateCapitals accepts abbreviations and full state names, upper-cased.
var stateCapitals = map[string]string{
	"NSW":                          "sydney",
	"NEW SOUTH WALES":              "sydney",
	"VIC":                          "melbourne",
	"VICTORIA":                     "melbourne",
	"QLD":                          "brisbane",
	"QUEENSLAND":                   "brisbane",
	"WA":                           "perth",
	"WESTERN AUSTRALIA":            "perth",
	"SA":                           "adelaide",
	"SOUTH AUSTRALIA":              "adelaide",
	"TAS":                          "hobart",
	"TASMANIA":                     "hobart",
	"NT":                           "darwin",
	"NORTHERN TERRITORY":           "darwin",
	"ACT":                          "canberra",
	"AUSTRALIAN CAPITAL TERRITORY": "canberra",
}

func stateCapital(state string) (string, bool) {
	city, ok := stateCapitals[strings.ToUpper(strings.Join(strings.Fields(state), " "))]
	return city, ok
}

// PlaceSearcher is the part of the places API the proximity finder needs.
type PlaceSearcher interface {
	Places(ctx context.Context, q PlacesQuery) ([]Place, error)
}

type Amenity struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
	Category string  `json:"category"`
	Address  string  `json:"address,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Origin is the property the amenities are measured from. Address and State
// are optional.
type Origin struct {
	Lat     float64
	Lon     float64
	Address string
	State   string
}

type ProximityResult struct {
	Proximity   string      `json:"proximity"`
	Amenities   []Amenity   `json:"amenities"`
	Coordinates Coordinates `json:"coordinates"`
	// APICalls counts the places searches made, for usage logging.
	APICalls int `json:"-"`
}

type Finder struct {
	places PlaceSearcher
}

func NewFinder(places PlaceSearcher) *Finder {
	return &Finder{places: places}
}

// Find collects the nearest required amenities and capital cities around o
// and renders them as proximity text.
func (f *Finder) Find(ctx context.Context, o Origin) (*ProximityResult, error) {
	all, err := f.places.Places(ctx, PlacesQuery{
		Categories: allCategories,
		Lat:        o.Lat,
		Lon:        o.Lon,
		Radius:     searchRadius,
		Limit:      searchLimit,
	})
	if err != nil {
		return nil, err
	}
	calls := 1

	wider, n := f.widen(ctx, o, all)
	all = append(all, wider...)
	calls += n

	for i := range all {
		if all[i].Distance <= 0 && (all[i].Lat != 0 || all[i].Lon != 0) {
			all[i].Distance = Haversine(o.Lat, o.Lon, all[i].Lat, all[i].Lon)
		}
	}

	var amenities []Amenity
	for _, kind := range requiredAmenities {
		amenities = append(amenities, selectAmenities(kind, all)...)
	}
	amenities = append(amenities, capitalCityAmenities(all, o.State)...)

	sort.SliceStable(amenities, func(i, j int) bool {
		return amenities[i].Distance < amenities[j].Distance
	})

	if len(amenities) == 0 {
		log.WithFields(log.Fields{
			"event":  "proximity_empty",
			"places": len(all),
		}).Warn("No amenities found")
		return nil, ErrNoAmenities
	}

	var lines []string
	if o.Address != "" {
		lines = append(lines, o.Address)
	}
	for _, a := range amenities {
		dist, drive := FormatDistance(a.Distance)
		lines = append(lines, fmt.Sprintf("%s (%s), %s", dist, drive, a.Name))
	}

	return &ProximityResult{
		Proximity:   strings.Join(lines, "\n"),
		Amenities:   amenities,
		Coordinates: Coordinates{Lat: o.Lat, Lon: o.Lon},
		APICalls:    calls,
	}, nil
}

// widen searches further out for airports and train stations when the main
// search found none. Both searches run concurrently and their failures are
// logged, not returned.
func (f *Finder) widen(ctx context.Context, o Origin, found []Place) ([]Place, int) {
	needAirport, needTrain := true, true
	for _, p := range found {
		if p.hasCategory("airport") {
			needAirport = false
		}
		if p.hasCategory("train", "railway") {
			needTrain = false
		}
	}

	var (
		mu       sync.Mutex
		airports []Place
		trains   []Place
		calls    int
	)
	g, gctx := errgroup.WithContext(ctx)

	if needAirport {
		calls++
		g.Go(func() error {
			res, err := f.places.Places(gctx, PlacesQuery{
				Categories: []string{"airport"},
				Lat:        o.Lat,
				Lon:        o.Lon,
				Radius:     airportRadius,
				Limit:      airportLimit,
			})
			if err != nil {
				log.WithFields(log.Fields{"event": "airport_search_failed", "error": err.Error()}).Warn("Wider airport search failed")
				return nil
			}
			mu.Lock()
			airports = res
			mu.Unlock()
			return nil
		})
	}
	if needTrain {
		calls++
		g.Go(func() error {
			res, err := f.places.Places(gctx, PlacesQuery{
				Categories: allCategories,
				Lat:        o.Lat,
				Lon:        o.Lon,
				Radius:     trainRadius,
				Limit:      trainLimit,
			})
			if err != nil {
				log.WithFields(log.Fields{"event": "train_search_failed", "error": err.Error()}).Warn("Wider train station search failed")
				return nil
			}
			var matched []Place
			for _, p := range res {
				if p.hasCategory("train", "railway") {
					matched = append(matched, p)
				}
			}
			mu.Lock()
			trains = matched
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return append(airports, trains...), calls
}

// matchesCategory reports whether a place category is cat or one of its
// subcategories.
func matchesCategory(placeCat, cat string) bool {
	return placeCat == cat || strings.HasPrefix(placeCat, cat+".")
}

func selectAmenities(kind amenityKind, all []Place) []Amenity {
	var matched []Place
	for _, p := range all {
		if placeMatches(p, kind.categories) {
			matched = append(matched, p)
		}
	}

	if kind.name == "supermarkets" {
		sort.SliceStable(matched, func(i, j int) bool {
			mi, mj := isMajorChain(matched[i].Name), isMajorChain(matched[j].Name)
			if mi != mj {
				return mi
			}
			return matched[i].Distance < matched[j].Distance
		})
	} else {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Distance < matched[j].Distance
		})
	}

	if len(matched) < kind.count {
		log.WithFields(log.Fields{
			"event":    "amenity_short",
			"amenity":  kind.name,
			"found":    len(matched),
			"required": kind.count,
		}).Debug("Fewer amenities than required")
	}
	if len(matched) > kind.count {
		matched = matched[:kind.count]
	}

	out := make([]Amenity, 0, len(matched))
	for _, p := range matched {
		out = append(out, Amenity{
			Name:     displayName(p, kind.name),
			Distance: p.Distance,
			Category: kind.name,
			Address:  p.AddressLine1,
		})
	}
	return out
}

func placeMatches(p Place, categories []string) bool {
	for _, cat := range categories {
		for _, pc := range p.Categories {
			if matchesCategory(pc, cat) {
				return true
			}
		}
	}
	return false
}

func isMajorChain(name string) bool {
	lower := strings.ToLower(name)
	for _, chain := range majorSupermarkets {
		if strings.Contains(lower, chain) {
			return true
		}
	}
	return false
}

// displayName falls back to the address, then to the amenity kind, for
// unnamed places. "beach (beach)" style fallbacks collapse to "Beach".
func displayName(p Place, kind string) string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		switch {
		case p.AddressLine1 != "":
			name = p.AddressLine1
		case p.AddressLine2 != "":
			name = p.AddressLine2
		default:
			first := "unknown"
			if len(p.Categories) > 0 {
				first = p.Categories[0]
			}
			name = fmt.Sprintf("%s (%s)", kind, first)
		}
	}
	if strings.Contains(name, "("+kind+")") {
		name = strings.ToUpper(kind[:1]) + strings.Replace(kind[1:], "_", " ", 1)
	}
	return strings.TrimSpace(name)
}

// capitalCityAmenities returns the closest capital city and, when it differs,
// the closest capital of the property's own state.
func capitalCityAmenities(all []Place, state string) []Amenity {
	var capitals []Place
	for _, p := range all {
		if !placeHasExact(p, "populated_place.city") {
			continue
		}
		if capitalName(p.Name) != "" {
			capitals = append(capitals, p)
		}
	}
	if len(capitals) == 0 {
		return nil
	}
	sort.SliceStable(capitals, func(i, j int) bool {
		return capitals[i].Distance < capitals[j].Distance
	})

	picked := []Place{capitals[0]}
	if len(capitals) > 1 {
		if city, ok := stateCapital(state); ok {
			for i, p := range capitals {
				if strings.Contains(strings.ToLower(p.Name), city) {
					if i != 0 {
						picked = append(picked, p)
					}
					break
				}
			}
		}
	}

	out := make([]Amenity, 0, len(picked))
	for _, p := range picked {
		name := p.Name
		if name == "" {
			name = p.AddressLine1
		}
		if name == "" {
			name = "City"
		}
		out = append(out, Amenity{
			Name:     name,
			Distance: p.Distance,
			Category: "capital_city",
			Address:  p.AddressLine1,
		})
	}
	return out
}

func placeHasExact(p Place, cat string) bool {
	for _, c := range p.Categories {
		if c == cat {
			return true
		}
	}
	return false
}

func capitalName(name string) string {
	lower := strings.ToLower(name)
	for _, c := range capitalCities {
		if strings.Contains(lower, c) {
			return c
		}
	}
	return ""
}
