package domain

import (
	"errors"
	"fmt"
	"time"
)

// FacilityLocation is one car park from the static catalog. Immutable once loaded.
type FacilityLocation struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point returns the facility coordinate.
func (f FacilityLocation) Point() GeoPoint {
	return GeoPoint{Lat: f.Latitude, Lon: f.Longitude}
}

// LotType is the vehicle lot code understood by the query service.
type LotType string

const (
	LotTypeCar            LotType = "C"
	LotTypeHeavyVehicle   LotType = "H"
	LotTypeMotorcycle     LotType = "Y"
	LotTypeMotorcycleSide LotType = "S"
	LotTypeLoading        LotType = "L"
	LotTypeMechanized     LotType = "M"
	DefaultLotType                = LotTypeCar
)

var lotTypeLabels = map[LotType]string{
	LotTypeCar:            "Cars",
	LotTypeHeavyVehicle:   "Heavy Vehicles",
	LotTypeMotorcycle:     "Motorcycles",
	LotTypeMotorcycleSide: "Motorcycles with side car",
	LotTypeLoading:        "Loading/Unloading",
	LotTypeMechanized:     "Mechanized",
}

// LotTypeInfo pairs a lot code with its display label.
type LotTypeInfo struct {
	Code  LotType `json:"code"`
	Label string  `json:"label"`
}

// LotTypes lists every supported lot code in display order.
func LotTypes() []LotTypeInfo {
	order := []LotType{LotTypeCar, LotTypeHeavyVehicle, LotTypeMotorcycle, LotTypeMotorcycleSide, LotTypeLoading, LotTypeMechanized}
	out := make([]LotTypeInfo, 0, len(order))
	for _, t := range order {
		out = append(out, LotTypeInfo{Code: t, Label: lotTypeLabels[t]})
	}
	return out
}

// Label returns the human-readable name, or the raw code if unknown.
func (t LotType) Label() string {
	if l, ok := lotTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// ParseLotType validates a lot code. An empty string yields DefaultLotType.
func ParseLotType(s string) (LotType, error) {
	if s == "" {
		return DefaultLotType, nil
	}
	t := LotType(s)
	if _, ok := lotTypeLabels[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLotType, s)
	}
	return t, nil
}

var (
	ErrInvalidWindow  = errors.New("time window end must be after start")
	ErrUnknownLotType = errors.New("unknown lot type")
)

// WindowLayout is the wire format of parking start/end times.
const WindowLayout = "2006-01-02 15:04:05"

// TimeWindow is the parking period the occupancy and rate queries are asked about.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow returns a validated window.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	w := TimeWindow{Start: start, End: end}
	return w, w.Validate()
}

// DefaultWindow starts at now and lasts d.
func DefaultWindow(now time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Start: now, End: now.Add(d)}
}

// Validate enforces End > Start.
func (w TimeWindow) Validate() error {
	if !w.End.After(w.Start) {
		return ErrInvalidWindow
	}
	return nil
}

// Equal compares both instants.
func (w TimeWindow) Equal(o TimeWindow) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

// Hours is the window length in hours.
func (w TimeWindow) Hours() float64 {
	return w.End.Sub(w.Start).Hours()
}
