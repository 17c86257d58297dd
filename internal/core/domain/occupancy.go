package domain

// CongestionLevel is the three-tier (+unknown) classification of an occupancy ratio.
type CongestionLevel string

const (
	CongestionLow     CongestionLevel = "low"
	CongestionMedium  CongestionLevel = "medium"
	CongestionHigh    CongestionLevel = "high"
	CongestionUnknown CongestionLevel = "unknown"
)

// Occupancy is derived from a lot-count pair and never stored as ground truth.
// Nil fields serialize as null.
type Occupancy struct {
	AvailableLots   *int            `json:"available_lots"`
	TotalLots       *int            `json:"total_lots"`
	LotType         *string         `json:"lot_type"`
	OccupancyRatio  *float64        `json:"occupancy_ratio"`
	CongestionLevel CongestionLevel `json:"congestion_level"`
}

// Known reports whether a ratio could be derived.
func (o Occupancy) Known() bool {
	return o.OccupancyRatio != nil
}

// UnknownOccupancy is the entry used for facilities the service returned nothing for.
func UnknownOccupancy() Occupancy {
	return Occupancy{CongestionLevel: CongestionUnknown}
}

// AvailabilityMap maps facility id to its latest occupancy.
type AvailabilityMap map[string]Occupancy

// LotCount is one lot-type entry in a lots response.
type LotCount struct {
	Type      string `json:"type"`
	Total     *int   `json:"total"`
	Available *int   `json:"available"`
}

// LotsRecord is the lots endpoint payload for one facility.
type LotsRecord struct {
	ID   string     `json:"id"`
	Lots []LotCount `json:"lots"`
}

// Rate is one estimated charge for the queried window.
type Rate struct {
	EstimatedFee *float64 `json:"estimatedFee"`
}

// RateRecord is the parking-rate endpoint payload for one facility.
type RateRecord struct {
	ID                     string   `json:"id"`
	Address                *string  `json:"address"`
	Agency                 *string  `json:"agency"`
	Type                   *string  `json:"type"`
	ParkingSystemType      *string  `json:"parkingSystemType"`
	ShortTermParkingPeriod *string  `json:"shortTermParkingPeriod"`
	FreeParkingPeriod      *string  `json:"freeParkingPeriod"`
	NightParkingFlag       *int     `json:"nightParkingFlag"`
	BasementFlag           *int     `json:"basementFlag"`
	DeckCount              *int     `json:"deckCount"`
	GantryHeight           *float64 `json:"gantryHeight"`
	Rates                  []Rate   `json:"rates"`
}

// InfoRecord is the descriptive info endpoint payload for one facility.
type InfoRecord struct {
	ID                     string   `json:"id"`
	Address                *string  `json:"address"`
	Agency                 *string  `json:"agency"`
	Type                   *string  `json:"type"`
	ParkingSystemType      *string  `json:"parkingSystemType"`
	ShortTermParkingPeriod *string  `json:"shortTermParkingPeriod"`
	FreeParkingPeriod      *string  `json:"freeParkingPeriod"`
	NightParkingFlag       *int     `json:"nightParkingFlag"`
	BasementFlag           *int     `json:"basementFlag"`
	DeckCount              *int     `json:"deckCount"`
	GantryHeight           *float64 `json:"gantryHeight"`
}
