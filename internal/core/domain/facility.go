package domain

import "time"

const (
	// AddressUnavailable replaces a missing address.
	AddressUnavailable = "Address not available"
	// FieldUnavailable replaces any other missing descriptive text field.
	FieldUnavailable = "N/A"
)

// NearbyFacility is a catalog entry joined with distance, occupancy and the
// rate/info fields. Descriptive text falls back to explicit markers; absent
// numeric fields are null.
type NearbyFacility struct {
	ID                     string   `json:"id"`
	Latitude               float64  `json:"latitude"`
	Longitude              float64  `json:"longitude"`
	DistanceKm             float64  `json:"distance_km"`
	WalkingMinutes         int      `json:"walking_minutes"`
	DirectionsURL          string   `json:"directions_url"`
	Address                string   `json:"address"`
	Agency                 string   `json:"agency"`
	Type                   string   `json:"type"`
	ParkingSystemType      string   `json:"parking_system_type"`
	ShortTermParkingPeriod string   `json:"short_term_parking_period"`
	FreeParkingPeriod      string   `json:"free_parking_period"`
	NightParkingFlag       *int     `json:"night_parking_flag"`
	BasementFlag           *int     `json:"basement_flag"`
	DeckCount              *int     `json:"deck_count"`
	GantryHeight           *float64 `json:"gantry_height"`
	EstimatedFee           *float64 `json:"estimated_fee"`
	Occupancy
	// Partial is set when the record was built without live data.
	Partial bool `json:"partial"`
}

// FetchStatus describes the outcome of the most recent asynchronous run.
type FetchStatus string

const (
	StatusIdle    FetchStatus = "idle"
	StatusLoading FetchStatus = "loading"
	StatusReady   FetchStatus = "ready"
	StatusEmpty   FetchStatus = "empty"
	StatusFailed  FetchStatus = "failed"
)

// NearbyState is the published output of the nearby resolver.
type NearbyState struct {
	Results []NearbyFacility `json:"results"`
	Loading bool             `json:"loading"`
	// Status separates "no candidates in radius" (empty) from a failed fetch.
	Status    FetchStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// AvailabilityState is the published output of the availability refresher.
type AvailabilityState struct {
	Availability AvailabilityMap `json:"availability"`
	Loading      bool            `json:"loading"`
	Error        *string         `json:"error"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FocusState is the published output of the detail fetcher. Facility is nil
// while a fetch is pending or when nothing is selected.
type FocusState struct {
	ID       *string         `json:"id"`
	Facility *NearbyFacility `json:"facility"`
	Loading  bool            `json:"loading"`
}

// Anchor is where the user is considering parking. Exactly one source is set.
type Anchor struct {
	Current  *GeoPoint `json:"current"`
	Selected *GeoPoint `json:"selected"`
}

// Point resolves the effective anchor; the device fix wins.
func (a Anchor) Point() *GeoPoint {
	if a.Current != nil {
		return a.Current
	}
	return a.Selected
}

// Place is one geocoding search result.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// AuthSession is the outcome of a successful login exchange.
type AuthSession struct {
	Email        string    `json:"email"`
	BackendToken string    `json:"-"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SortKey orders the nearby list.
type SortKey string

const (
	SortByDistance     SortKey = "distance"
	SortByPrice        SortKey = "price"
	SortByAvailability SortKey = "availability"
)
