package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
)

var errInvalidPoint = errors.New("lat must be in [-90, 90] and lon in [-180, 180]")

type pointRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type windowRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type lotTypeRequest struct {
	LotType string `json:"lot_type"`
}

type radiusRequest struct {
	RadiusKm float64 `json:"radius_km"`
}

type focusRequest struct {
	ID string `json:"id"`
}

// sessionFrom resolves the :id route param to a live session.
func sessionFrom(c *fiber.Ctx, deps *Dependencies) (*usecases.Session, error) {
	id := c.Params("id")
	c.Locals(localsSessionID, id)
	return deps.Sessions.Get(id)
}

func parsePoint(c *fiber.Ctx) (domain.GeoPoint, error) {
	var req pointRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("invalid body: %w", err)
	}
	if req.Lat == nil || req.Lon == nil {
		return domain.GeoPoint{}, errors.New("lat and lon are required")
	}
	p := domain.GeoPoint{Lat: *req.Lat, Lon: *req.Lon}
	if !p.Valid() {
		return domain.GeoPoint{}, errInvalidPoint
	}
	return p, nil
}

// parseWindowTime accepts RFC 3339 or the wire layout, the latter read in loc.
func parseWindowTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(domain.WindowLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q must be RFC 3339 or %q", s, domain.WindowLayout)
	}
	return t, nil
}

// CreateSessionHandler starts a locator session anchored at the map center.
func CreateSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := deps.Sessions.Create()
		c.Locals(localsSessionID, s.ID)
		c.Location("/v1/sessions/" + s.ID)
		return c.Status(fiber.StatusCreated).JSON(s.Snapshot())
	}
}

// GetSessionHandler returns the session inputs.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(s.Snapshot())
	}
}

// DeleteSessionHandler ends a session and cancels its runs.
func DeleteSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(localsSessionID, c.Params("id"))
		if err := deps.Sessions.Delete(c.Params("id")); err != nil {
			return errFromUsecase(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// SetLocationHandler applies a device fix.
func SetLocationHandler(deps *Dependencies) fiber.Handler {
	return pointHandler(deps, (*usecases.Session).SetCurrentLocation)
}

// SelectLocationHandler applies a manual location pick.
func SelectLocationHandler(deps *Dependencies) fiber.Handler {
	return pointHandler(deps, (*usecases.Session).SelectLocation)
}

func pointHandler(deps *Dependencies, apply func(*usecases.Session, domain.GeoPoint) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		p, err := parsePoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if err := apply(s, p); err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(s.Snapshot())
	}
}

// SetWindowHandler changes the parking window.
func SetWindowHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		var req windowRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid body")
		}
		start, err := parseWindowTime(req.Start, deps.location())
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		end, err := parseWindowTime(req.End, deps.location())
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		w, err := domain.NewTimeWindow(start, end)
		if err != nil {
			return errFromUsecase(c, err)
		}
		if err := s.SetWindow(w); err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(s.Snapshot())
	}
}

// SetLotTypeHandler changes the vehicle lot filter.
func SetLotTypeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		var req lotTypeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid body")
		}
		t, err := domain.ParseLotType(req.LotType)
		if err != nil {
			return errFromUsecase(c, err)
		}
		if err := s.SetLotType(t); err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(s.Snapshot())
	}
}

// SetRadiusHandler changes the nearby search radius.
func SetRadiusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		var req radiusRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid body")
		}
		if req.RadiusKm <= 0 || req.RadiusKm > 50 {
			return errBadRequest(c, "radius_km must be in (0, 50]")
		}
		if err := s.SetRadius(req.RadiusKm); err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(s.Snapshot())
	}
}

// NearbyHandler returns the nearby list with live availability merged in.
func NearbyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		key, err := usecases.ParseSortKey(c.Query("sort"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.JSON(s.Nearby(key))
	}
}

// AvailabilityHandler returns the availability map state.
func AvailabilityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(s.Availability())
	}
}

// RefetchAvailabilityHandler repeats the last availability query.
func RefetchAvailabilityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		if err := s.RefetchAvailability(); err != nil {
			return errFromUsecase(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "refetching"})
	}
}

// SetFocusHandler focuses one facility and starts its detail fetch.
func SetFocusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		var req focusRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid body")
		}
		req.ID = strings.TrimSpace(req.ID)
		if req.ID == "" {
			return errBadRequest(c, "id is required")
		}
		if err := s.Focus(req.ID); err != nil {
			return errFromUsecase(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(s.Focused())
	}
}

// FocusHandler returns the focused facility state.
func FocusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(s.Focused())
	}
}

// ClearFocusHandler drops the focused facility.
func ClearFocusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		if err := s.ClearFocus(); err != nil {
			return errFromUsecase(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
