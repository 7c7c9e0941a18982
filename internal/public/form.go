package public

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/schema"
	"geoform-backend/internal/store"
	"geoform-backend/internal/widget"
)

func entityFromCtx(c *fiber.Ctx) *metadata.Entity {
	entity, _ := c.Locals("entity").(*metadata.Entity)
	return entity
}

func appFromCtx(c *fiber.Ctx) string {
	app, _ := c.Locals("app").(string)
	return app
}

func respondError(c *fiber.Ctx, appErr *apperr.AppError) error {
	return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
}

// FormResponse wraps the public form view. CaptchaRequired tells the
// client to render the challenge on the confirmation step.
type FormResponse struct {
	Form            *schema.FormView `json:"form"`
	Submission      string           `json:"submission,omitempty"`
	CaptchaRequired bool             `json:"captcha_required,omitempty"`
}

// Form renders the empty public form. With a submission query parameter
// it restores the exact values of a pending submission, so going back
// from the confirmation step loses nothing.
func (ctl *Controller) Form(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	bound := ctl.bind(c, entity, "new")

	values := map[string]any{}
	if id := c.Query("submission"); id != "" {
		if stored, ok := ctl.loadSubmission(c, id); ok {
			values = stored
		}
	}
	return c.JSON(FormResponse{Form: bound.Form(values, nil)})
}

// Submit validates the posted values. Valid submissions are parked in the
// session and the client is sent to the confirmation step, unless the
// entity skips confirmation, in which case the record is persisted right
// away.
func (ctl *Controller) Submit(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	app := appFromCtx(c)
	bound := ctl.bind(c, entity, "new")

	var values map[string]any
	if err := c.BodyParser(&values); err != nil {
		return respondError(c, apperr.BadRequest("Invalid request body"))
	}

	graph, details := bound.Objectify(values)
	if len(details) > 0 {
		return c.Status(fiber.StatusOK).JSON(FormResponse{
			Form: bound.Form(values, details),
		})
	}

	if entity.SkipConfirmation {
		return ctl.persistSubmission(c, entity, app, bound, graph)
	}

	id := uuid.NewString()
	if err := ctl.storeSubmission(c, id, values); err != nil {
		return fmt.Errorf("store submission: %w", err)
	}
	url := fmt.Sprintf("/%s/%s/confirm?submission=%s", app, entity.Name, id)
	return c.Redirect(url, fiber.StatusFound)
}

// Confirm renders the pending submission read-only before the final step.
func (ctl *Controller) Confirm(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	id := c.Query("submission")

	values, ok := ctl.loadSubmission(c, id)
	if !ok {
		return respondError(c, apperr.BadRequest("Missing or unknown submission identifier"))
	}

	bound := ctl.bind(c, entity, "new")
	return c.JSON(FormResponse{
		Form:            bound.Form(values, nil),
		Submission:      id,
		CaptchaRequired: ctl.captcha != nil,
	})
}

// ConfirmSubmit finalizes a pending submission: the CAPTCHA response is
// verified when configured, the values are validated once more against
// the current database state, and the record is persisted. The session
// entry is removed so the submission id cannot be replayed.
func (ctl *Controller) ConfirmSubmit(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	app := appFromCtx(c)

	id := c.Query("submission")
	if id == "" {
		id = c.FormValue("submission")
	}
	values, ok := ctl.loadSubmission(c, id)
	if !ok {
		return respondError(c, apperr.BadRequest("Missing or unknown submission identifier"))
	}

	bound := ctl.bind(c, entity, "new")
	if ctl.captcha != nil {
		response := c.FormValue("captcha")
		if err := ctl.captcha.Verify(c.Context(), response, c.IP()); err != nil {
			if !errors.Is(err, widget.ErrCaptchaFailed) {
				return fmt.Errorf("captcha: %w", err)
			}
			details := []apperr.ErrorDetail{{
				Field:   "captcha",
				Rule:    "captcha",
				Message: "CAPTCHA verification failed, please try again",
			}}
			return c.Status(fiber.StatusOK).JSON(FormResponse{
				Form:            bound.Form(values, details),
				Submission:      id,
				CaptchaRequired: true,
			})
		}
	}

	graph, details := bound.Objectify(values)
	if len(details) > 0 {
		return c.Status(fiber.StatusOK).JSON(FormResponse{
			Form:            bound.Form(values, details),
			Submission:      id,
			CaptchaRequired: ctl.captcha != nil,
		})
	}

	if err := ctl.persistSubmission(c, entity, app, bound, graph); err != nil {
		return err
	}
	ctl.dropSubmission(c, id)
	return nil
}

// persistSubmission writes the graph, assigning the public hash that the
// read-only view is keyed by. The hash is immutable after this point.
func (ctl *Controller) persistSubmission(c *fiber.Ctx, entity *metadata.Entity, app string, bound *schema.Bound, graph *schema.ObjectGraph) error {
	hash := ""
	if entity.HashField != "" {
		hash = strings.ReplaceAll(uuid.NewString(), "-", "")
		graph.Fields[entity.HashField] = hash
	}

	savedID, err := bound.Persist(graph)
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return respondError(c, apperr.Conflict("A record with this value already exists"))
		}
		return fmt.Errorf("persist submission for %s: %w", entity.Name, err)
	}

	if hash == "" {
		return c.JSON(fiber.Map{"success": true, "id": fmt.Sprintf("%v", savedID)})
	}
	return c.Redirect(fmt.Sprintf("/%s/%s/view/%s", app, entity.Name, hash), fiber.StatusFound)
}
