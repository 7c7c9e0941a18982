// Package schema derives a validation/serialization layer from entity
// metadata: a Template is built once per entity and bound per request to a
// database handle and the request's route parameters.
package schema

import (
	"context"

	"geoform-backend/internal/store"
)

// ReqContext carries the request-scoped values a bound schema needs. It is
// passed explicitly into every validate/serialize call instead of being
// stashed on schema nodes.
type ReqContext struct {
	Ctx   context.Context
	Store *store.Store

	// ID identifies the object being edited, taken from the URL. The
	// literal "new" (or an empty string) marks a create: uniqueness checks
	// then exclude nothing.
	ID string
}

// IsNew reports whether the request targets a not-yet-persisted object.
func (rc ReqContext) IsNew() bool {
	return rc.ID == "" || rc.ID == "new"
}
