package public

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/store"
)

// View serves the read-only record behind its public hash. The hash is
// the only handle an anonymous submitter ever gets back.
func (ctl *Controller) View(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	hash := c.Params("hash")

	if entity.HashField == "" {
		return respondError(c, apperr.NotFound(entity.Name, hash))
	}

	pb := ctl.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(entity.FieldNames(), ", "), entity.Table, entity.HashField, pb.Add(hash))
	record, err := store.QueryRow(c.Context(), ctl.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, apperr.NotFound(entity.Name, hash))
		}
		return fmt.Errorf("view %s by hash: %w", entity.Name, err)
	}

	bound := ctl.bind(c, entity, fmt.Sprintf("%v", record[entity.PrimaryKey.Field]))
	children, links, err := bound.FetchRelated(record[entity.PrimaryKey.Field])
	if err != nil {
		return fmt.Errorf("view relations for %s: %w", entity.Name, err)
	}
	values := bound.Dictify(record, children, links)

	return c.JSON(FormResponse{Form: bound.Form(values, nil)})
}
