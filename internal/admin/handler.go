package admin

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/audit"
	"geoform-backend/internal/auth"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/schema"
	"geoform-backend/internal/store"
	"geoform-backend/internal/widget"
)

// userMessages are the one-shot banner texts selectable via the msg query
// parameter on the edit view.
var userMessages = map[string]string{
	"update_success": "Your modifications have been saved.",
	"create_success": "The item has been created.",
	"copy":           "Please edit and save the copy.",
}

// Controller is the generic CRUD surface over the registered entities. One
// instance serves every entity; the current entity arrives on the request
// context, resolved by the routing layer.
type Controller struct {
	store     *store.Store
	reg       *metadata.Registry
	audit     *audit.Recorder             // optional
	templates map[string]*schema.Template // keyed by app + "/" + entity name
}

func NewController(s *store.Store, reg *metadata.Registry) (*Controller, error) {
	ctl := &Controller{
		store:     s,
		reg:       reg,
		templates: make(map[string]*schema.Template),
	}
	for _, e := range reg.EveryEntity() {
		tpl, err := schema.New(e, reg)
		if err != nil {
			return nil, err
		}
		ctl.templates[e.App+"/"+e.Name] = tpl
	}
	return ctl, nil
}

// Template exposes the admin schema template of an entity, so callers can
// attach custom validators at startup.
func (ctl *Controller) Template(app, entity string) *schema.Template {
	return ctl.templates[app+"/"+entity]
}

// WithAudit attaches an action recorder. Save and Delete report to it.
func (ctl *Controller) WithAudit(rec *audit.Recorder) *Controller {
	ctl.audit = rec
	return ctl
}

func (ctl *Controller) record(c *fiber.Ctx, action string, entity *metadata.Entity, recordID string) {
	if ctl.audit == nil {
		return
	}
	ctl.audit.Record(audit.Entry{
		Action:   action,
		App:      entity.App,
		Entity:   entity.Name,
		RecordID: recordID,
		UserID:   auth.UserID(c),
	})
}

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

func (ctl *Controller) bind(c *fiber.Ctx, entity *metadata.Entity, id string) *schema.Bound {
	tpl := ctl.templates[entity.App+"/"+entity.Name]
	return tpl.Bind(schema.ReqContext{
		Ctx:   c.Context(),
		Store: ctl.store,
		ID:    id,
	})
}

// IndexResponse is the static grid configuration served by Index.
type IndexResponse struct {
	Entity        string       `json:"entity"`
	Title         string       `json:"title,omitempty"`
	Columns       []ColumnDesc `json:"columns"`
	Actions       []ItemAction `json:"actions"`
	DefaultAction string       `json:"default_action"`
	GridURL       string       `json:"grid_url"`
}

type ColumnDesc struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Sortable   bool   `json:"sortable"`
	Filterable bool   `json:"filterable"`
}

// Index returns the grid configuration: columns in declared order with
// resolved labels, plus the top-level actions. No side effects.
func (ctl *Controller) Index(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	app := appFromCtx(c)

	var columns []ColumnDesc
	for _, lf := range ListFieldsFor(entity) {
		columns = append(columns, ColumnDesc{
			Key:        lf.Key,
			Label:      lf.Label,
			Sortable:   lf.Sortable,
			Filterable: lf.Filterable,
		})
	}

	return c.JSON(IndexResponse{
		Entity:        entity.Name,
		Title:         entity.Title,
		Columns:       columns,
		Actions:       gridActions(app, entity.Name),
		DefaultAction: "edit",
		GridURL:       indexURL(app, entity.Name) + "/grid.json",
	})
}

// EditResponse wraps the form view with the row actions and the optional
// one-shot banner.
type EditResponse struct {
	Form    *schema.FormView `json:"form"`
	Actions []ItemAction     `json:"actions,omitempty"`
	Message string           `json:"message,omitempty"`
}

// Edit serves the edit form of one record. The id literal "new" yields a
// transient, unpersisted instance instead of a lookup.
func (ctl *Controller) Edit(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	app := appFromCtx(c)
	id := c.Params("id")
	bound := ctl.bind(c, entity, id)

	var values map[string]any
	if id == "new" {
		values = map[string]any{}
	} else {
		record, err := bound.FetchRecord(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return respondError(c, apperr.NotFound(entity.Name, id))
			}
			return fmt.Errorf("fetch %s/%s: %w", entity.Name, id, err)
		}
		children, links, err := bound.FetchRelated(record[entity.PrimaryKey.Field])
		if err != nil {
			return fmt.Errorf("fetch relations for %s/%s: %w", entity.Name, id, err)
		}
		values = bound.Dictify(record, children, links)
	}

	resp := EditResponse{Form: bound.Form(values, nil)}
	if id != "new" {
		resp.Actions = itemActions(app, entity.Name, id)
	}
	if msg := c.Query("msg"); msg != "" {
		resp.Message = userMessages[msg]
	}
	return c.JSON(resp)
}

// Save validates the posted values and persists the object graph in a
// single transaction. Validation failures re-render the form with inline
// errors and HTTP 200; success redirects to the edit view.
func (ctl *Controller) Save(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	app := appFromCtx(c)
	id := c.Params("id")
	bound := ctl.bind(c, entity, id)

	values, err := parseBody(c, entity)
	if err != nil {
		return respondError(c, apperr.BadRequest("Invalid request body"))
	}

	graph, details := bound.Objectify(values)
	if len(details) > 0 {
		return c.Status(fiber.StatusOK).JSON(EditResponse{
			Form: bound.Form(values, details),
		})
	}

	savedID, err := bound.Persist(graph)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, apperr.NotFound(entity.Name, id))
		}
		if errors.Is(err, store.ErrUniqueViolation) {
			return respondError(c, apperr.Conflict("A record with this value already exists"))
		}
		return fmt.Errorf("save %s/%s: %w", entity.Name, id, err)
	}

	action := "update"
	msg := "update_success"
	if id == "new" {
		action = "create"
		msg = "create_success"
	}
	ctl.record(c, action, entity, fmt.Sprintf("%v", savedID))
	url := fmt.Sprintf("%s?msg=%s", itemURL(app, entity.Name, fmt.Sprintf("%v", savedID)), msg)
	return c.Redirect(url, fiber.StatusFound)
}

// DeleteResponse is the payload of a successful delete.
type DeleteResponse struct {
	Success  bool   `json:"success"`
	Redirect string `json:"redirect"`
}

// Delete removes the record and its owned children with one transaction
// commit. Client-side confirmation already happened; none is asked here.
func (ctl *Controller) Delete(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	app := appFromCtx(c)
	id := c.Params("id")
	bound := ctl.bind(c, entity, id)

	if _, err := bound.FetchRecord(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, apperr.NotFound(entity.Name, id))
		}
		return fmt.Errorf("fetch %s/%s: %w", entity.Name, id, err)
	}

	tx, err := ctl.store.BeginTx(c.Context())
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ctl.deleteOwned(c, tx, entity, id); err != nil {
		return fmt.Errorf("delete children of %s/%s: %w", entity.Name, id, err)
	}

	pb := ctl.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		entity.Table, entity.PrimaryKey.Field, pb.Add(id))
	affected, err := store.Exec(c.Context(), tx, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", entity.Name, id, err)
	}
	if affected == 0 {
		return respondError(c, apperr.NotFound(entity.Name, id))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	ctl.record(c, "delete", entity, id)

	return c.JSON(DeleteResponse{
		Success:  true,
		Redirect: indexURL(app, entity.Name),
	})
}

// deleteOwned removes cascade-owned child rows and many-to-many join rows
// before the parent goes away.
func (ctl *Controller) deleteOwned(c *fiber.Ctx, tx store.Querier, entity *metadata.Entity, id string) error {
	for _, rel := range ctl.reg.RelationsForSource(entity.App, entity.Name) {
		pb := ctl.store.Dialect.NewParamBuilder()
		var sqlStr string
		switch {
		case rel.IsManyToMany():
			sqlStr = fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
				rel.JoinTable, rel.SourceJoinKey, pb.Add(id))
		case rel.Owned():
			target := ctl.reg.GetEntity(rel.App, rel.Target)
			if target == nil {
				continue
			}
			sqlStr = fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
				target.Table, rel.TargetKey, pb.Add(id))
		default:
			continue
		}
		if _, err := store.Exec(c.Context(), tx, sqlStr, pb.Params()...); err != nil {
			return err
		}
	}
	return nil
}

// Duplicate builds a transient copy of the record and renders it as a
// fresh "new" form. Nothing is persisted until the copy is saved.
func (ctl *Controller) Duplicate(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	id := c.Params("id")

	rc := schema.ReqContext{Ctx: c.Context(), Store: ctl.store, ID: "new"}
	values, err := ctl.Copy(rc, entity, id, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, apperr.NotFound(entity.Name, id))
		}
		return fmt.Errorf("duplicate %s/%s: %w", entity.Name, id, err)
	}

	bound := ctl.bind(c, entity, "new")
	return c.JSON(EditResponse{
		Form:    bound.Form(values, nil),
		Message: userMessages["copy"],
	})
}

// parseBody decodes the posted record values: JSON bodies directly,
// multipart forms field-by-field with uploads read into memory.
func parseBody(c *fiber.Ctx, entity *metadata.Entity) (map[string]any, error) {
	ct := string(c.Request().Header.ContentType())
	if strings.HasPrefix(ct, fiber.MIMEMultipartForm) {
		return parseMultipart(c, entity)
	}
	var values map[string]any
	if err := c.BodyParser(&values); err != nil {
		return nil, err
	}
	return values, nil
}

const maxUploadSize = 10 << 20

func parseMultipart(c *fiber.Ctx, entity *metadata.Entity) (map[string]any, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	for key, vals := range form.Value {
		if len(vals) == 1 {
			values[key] = vals[0]
		} else {
			anyVals := make([]any, len(vals))
			for i, v := range vals {
				anyVals[i] = v
			}
			values[key] = anyVals
		}
	}
	for key, files := range form.File {
		fd, err := readFirstUpload(files)
		if err != nil {
			return nil, err
		}
		if fd != nil {
			values[key] = fd
		}
	}
	return values, nil
}

func readFirstUpload(files []*multipart.FileHeader) (*widget.FileData, error) {
	if len(files) == 0 {
		return nil, nil
	}
	return widget.ReadUpload(files[0], maxUploadSize)
}
