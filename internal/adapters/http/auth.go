package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
)

const localsEmail = "email"

type loginRequest struct {
	AccessToken string `json:"access_token"`
}

// GoogleLoginHandler exchanges a Google access token for a session token.
func GoogleLoginHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Auth == nil {
			return errInternal(c, "login not available")
		}
		var req loginRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid body")
		}
		if strings.TrimSpace(req.AccessToken) == "" {
			return errBadRequest(c, "access_token is required")
		}

		sess, err := deps.Auth.Login(c.UserContext(), req.AccessToken)
		if err != nil {
			if errors.Is(err, usecases.ErrNotAuthenticated) {
				LoggerFromCtx(c.UserContext()).Warn("login rejected", "error", err)
				return errUnauthorized(c, "login failed")
			}
			return errFromUsecase(c, err)
		}
		return c.JSON(sess)
	}
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// session token and stores the caller's email in Locals.
func RequireAuth(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Auth == nil {
			return errUnauthorized(c, "authentication not configured")
		}
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return errUnauthorized(c, "bearer token required")
		}
		email, err := deps.Auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			return errUnauthorized(c, "invalid or expired token")
		}
		c.Locals(localsEmail, email)
		return c.Next()
	}
}

func emailFrom(c *fiber.Ctx) string {
	email, _ := c.Locals(localsEmail).(string)
	return email
}

// ListFavoritesHandler returns the caller's favorite facility ids.
func ListFavoritesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ids, err := deps.Favorites.List(c.UserContext(), emailFrom(c))
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(fiber.Map{"ids": ids})
	}
}

// ToggleFavoriteHandler adds or removes one favorite.
func ToggleFavoriteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		if id == "" {
			return errBadRequest(c, "id is required")
		}
		ids, added, err := deps.Favorites.Toggle(c.UserContext(), emailFrom(c), id)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(fiber.Map{"ids": ids, "added": added})
	}
}

// SessionFavoritesHandler decorates the caller's favorites with the
// session's availability and distance from its effective anchor.
func SessionFavoritesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := sessionFrom(c, deps)
		if err != nil {
			return errFromUsecase(c, err)
		}
		avail := s.Availability().Availability
		origin := s.Snapshot().Effective
		views, err := deps.Favorites.Details(c.UserContext(), emailFrom(c), avail, origin)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(fiber.Map{"data": views})
	}
}
