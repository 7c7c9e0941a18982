// Package routing maps the table-parametrized URL space onto the generic
// controllers. Every route carries {app, table}; the resolver middleware
// turns those into a registered entity before any handler runs.
package routing

import (
	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
)

// Resolver extracts the :app and :table parameters, looks the entity up in
// the registry and attaches it to the request via c.Locals. Unknown names
// stop the request with a 404 before any controller runs.
func Resolver(reg *metadata.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		app := c.Params("app")
		if reg.GetApplication(app) == nil {
			return apperr.UnknownApplication(app)
		}
		table := c.Params("table")
		entity := reg.GetEntity(app, table)
		if entity == nil {
			return apperr.UnknownTable(app, table)
		}
		c.Locals("app", app)
		c.Locals("entity", entity)
		return c.Next()
	}
}
