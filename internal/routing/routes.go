package routing

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/admin"
	"geoform-backend/internal/auth"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/public"
)

// Register wires the admin and public route trees. Static path segments
// (grid.json, geojson, form, confirm) must be registered before the :id
// parameter, or Fiber would swallow them.
func Register(app *fiber.App, reg *metadata.Registry, adminCtl *admin.Controller, publicCtl *public.Controller, authHandler *auth.Handler, jwtSecret string) {
	resolverMW := Resolver(reg)
	authMW := auth.Middleware(jwtSecret)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authHandler.Logout)

	app.Get("/locale", SwitchLocale)

	adm := app.Group("/admin/:app/:table", authMW, resolverMW)
	adm.Get("/", adminCtl.Index)
	adm.Get("/grid.json", adminCtl.Grid)
	adm.Post("/grid.json", adminCtl.Grid)
	adm.Get("/geojson", adminCtl.GeoJSON)
	adm.Get("/:id/duplicate", adminCtl.Duplicate)
	adm.Get("/:id", adminCtl.Edit)
	adm.Post("/:id", adminCtl.Save)
	adm.Delete("/:id", adminCtl.Delete)

	pub := app.Group("/:app/:table", resolverMW)
	pub.Get("/form", publicCtl.Form)
	pub.Post("/form", publicCtl.Submit)
	pub.Get("/confirm", publicCtl.Confirm)
	pub.Post("/confirm", publicCtl.ConfirmSubmit)
	pub.Get("/view/:hash", publicCtl.View)
}

// SwitchLocale stores the requested language in a cookie and sends the
// client back where it came from.
func SwitchLocale(c *fiber.Ctx) error {
	lang := c.Query("language")
	if lang == "" {
		lang = "en"
	}
	c.Cookie(&fiber.Cookie{
		Name:    "_LOCALE_",
		Value:   lang,
		Expires: time.Now().Add(365 * 24 * time.Hour),
	})
	referrer := c.Get("Referer")
	if referrer == "" {
		referrer = "/"
	}
	return c.Redirect(referrer, fiber.StatusFound)
}
