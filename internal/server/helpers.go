package server

import (
	"strconv"

	"tidepool/internal/models"

	"github.com/gofiber/fiber/v2"
)

// parseID parses a uint route parameter, responding with InvalidArgument on
// failure. When ok is false the response has already been written.
func parseID(c *fiber.Ctx, name string) (uint, bool) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		_ = models.RespondWithError(c, models.NewInvalidArgumentError("invalid "+name))
		return 0, false
	}
	return uint(id), true
}

// currentUserID returns the identity resolved by the auth middleware, or 0
// when the request is unauthenticated.
func currentUserID(c *fiber.Ctx) uint {
	if uid, ok := c.Locals("userID").(uint); ok {
		return uid
	}
	return 0
}
