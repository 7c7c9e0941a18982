package admin

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/store"
)

// GridResponse is the JSON payload backing the admin table.
type GridResponse struct {
	Rows  []map[string]any `json:"rows"`
	Total int64            `json:"total"`
}

type gridParams struct {
	Offset int
	Limit  int // -1 means no limit
	Search string
	Sort   string
	Order  string // asc or desc
}

// parseGridParams reads offset/limit/search/sort/order from the query
// string or the posted form. Non-numeric offsets become 0 and non-numeric
// limits become -1.
func parseGridParams(c *fiber.Ctx) gridParams {
	p := gridParams{
		Offset: atoiOr(param(c, "offset"), 0),
		Limit:  atoiOr(param(c, "limit"), -1),
		Search: strings.TrimSpace(param(c, "search")),
		Sort:   param(c, "sort"),
		Order:  param(c, "order"),
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit < -1 {
		p.Limit = -1
	}
	if p.Order != "desc" {
		p.Order = "asc"
	}
	return p
}

func param(c *fiber.Ctx, key string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return c.FormValue(key)
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Grid serves the paginated, sortable, filterable row data of one entity.
// Database failures at this boundary are masked: the client receives a
// fixed message and the original error is only logged.
func (ctl *Controller) Grid(c *fiber.Ctx) error {
	entity := entityFromCtx(c)
	app := appFromCtx(c)
	p := parseGridParams(c)
	listFields := ListFieldsFor(entity)

	where, whereParams := ctl.searchClause(entity, listFields, p.Search)

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", entity.Table, where)
	total, err := store.QueryCount(c.Context(), ctl.store.DB, countSQL, whereParams...)
	if err != nil {
		log.Printf("ERROR: grid count for %s: %v", entity.Name, err)
		return respondError(c, apperr.Database())
	}

	sqlStr := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(entity.FieldNames(), ", "), entity.Table, where,
		ctl.orderClause(entity, listFields, p.Sort, p.Order))
	sqlStr += ctl.store.Dialect.LimitOffset(p.Limit, p.Offset)

	rows, err := store.QueryRows(c.Context(), ctl.store.DB, sqlStr, whereParams...)
	if err != nil {
		log.Printf("ERROR: grid query for %s: %v", entity.Name, err)
		return respondError(c, apperr.Database())
	}
	if ctl.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, boolFieldNames(entity))
	}

	gridRows := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]any, len(listFields)+2)
		for _, lf := range listFields {
			obj[lf.Key] = lf.Renderer(row[lf.Key])
		}
		id := fmt.Sprintf("%v", row[entity.PrimaryKey.Field])
		obj["_id_"] = id
		obj["actions"] = actionMap(itemActions(app, entity.Name, id))
		gridRows = append(gridRows, obj)
	}

	return c.JSON(GridResponse{Rows: gridRows, Total: total})
}

// searchClause builds the OR-combined case-insensitive substring filter
// over all filterable list fields. Whitespace in the phrase matches any
// run of characters, mirroring a "word1...word2" search.
func (ctl *Controller) searchClause(entity *metadata.Entity, listFields []ListField, search string) (string, []any) {
	if search == "" {
		return "", nil
	}
	pattern := "%" + strings.Join(strings.Fields(search), "%") + "%"

	pb := ctl.store.Dialect.NewParamBuilder()
	var filters []string
	for _, lf := range listFields {
		if !lf.Filterable {
			continue
		}
		filters = append(filters, ctl.store.Dialect.ILike(lf.Key, pb, pattern))
	}
	if len(filters) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(filters, " OR "), pb.Params()
}

// orderClause applies the requested sort column when it resolves to a
// sortable list field, then the entity's declared default order, then every
// primary-key column, so pagination stays deterministic even for non-unique
// sort keys.
func (ctl *Controller) orderClause(entity *metadata.Entity, listFields []ListField, sort, order string) string {
	var parts []string
	used := make(map[string]bool)

	if sort != "" {
		if lf := findListField(listFields, sort); lf != nil && lf.Sortable {
			dir := "ASC"
			if order == "desc" {
				dir = "DESC"
			}
			parts = append(parts, fmt.Sprintf("%s %s", sort, dir))
			used[sort] = true
		}
	}
	for _, o := range entity.DefaultOrder {
		if used[o.Field] {
			continue
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", o.Field, dir))
		used[o.Field] = true
	}
	if !used[entity.PrimaryKey.Field] {
		parts = append(parts, entity.PrimaryKey.Field+" ASC")
	}
	return strings.Join(parts, ", ")
}

func boolFieldNames(entity *metadata.Entity) []string {
	var names []string
	for _, f := range entity.Fields {
		if f.Type == "boolean" {
			names = append(names, f.Name)
		}
	}
	return names
}
