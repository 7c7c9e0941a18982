package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/store"
	"geoform-backend/internal/widget"
)

var formatValidate = validator.New()

// Bound is a schema template bound to one request. It carries the request
// context every check needs; the underlying template stays untouched.
type Bound struct {
	tpl *Template
	rc  ReqContext
}

// ObjectGraph is the validated, typed result of Objectify: the parent's
// field values plus the relation writes derived from the posted data. It is
// transient until Persist is called.
type ObjectGraph struct {
	Entity *metadata.Entity
	Fields map[string]any

	// Children holds owned child rows per one_to_one/one_to_many relation.
	Children []ChildSet

	// Links holds many-to-many references: ids of existing target rows.
	Links []LinkSet
}

type ChildSet struct {
	Relation *metadata.Relation
	Target   *metadata.Entity
	Rows     []map[string]any
}

type LinkSet struct {
	Relation *metadata.Relation
	Target   *metadata.Entity
	IDs      []any
}

// Objectify validates the posted values and converts them into an object
// graph. All field errors are collected; a non-empty detail list means the
// graph is nil.
func (b *Bound) Objectify(values map[string]any) (*ObjectGraph, []apperr.ErrorDetail) {
	var details []apperr.ErrorDetail
	graph := &ObjectGraph{
		Entity: b.tpl.Entity,
		Fields: make(map[string]any),
	}

	for _, node := range b.tpl.fields {
		raw, present := values[node.field.Name]
		if !present || raw == nil || raw == "" {
			if node.field.Required && !node.field.Nullable {
				details = append(details, apperr.ErrorDetail{
					Field:   node.field.Name,
					Rule:    "required",
					Message: fmt.Sprintf("%s is required", node.field.Label()),
				})
			}
			continue
		}

		value, err := b.coerce(node.field, raw)
		if err != nil {
			details = append(details, apperr.ErrorDetail{
				Field:   node.field.Name,
				Rule:    "type",
				Message: err.Error(),
			})
			continue
		}

		if d := b.checkField(node, value); d != nil {
			details = append(details, *d)
			continue
		}
		graph.Fields[node.field.Name] = value
	}

	for _, rn := range b.tpl.relations {
		raw, present := values[rn.rel.Name]
		if !present {
			continue
		}
		if rn.rel.IsManyToMany() {
			ids, ds := b.objectifyLinks(rn, raw)
			if len(ds) > 0 {
				details = append(details, ds...)
				continue
			}
			graph.Links = append(graph.Links, LinkSet{Relation: rn.rel, Target: rn.target, IDs: ids})
		} else {
			rows, ds := b.objectifyChildren(rn, raw)
			if len(ds) > 0 {
				details = append(details, ds...)
				continue
			}
			graph.Children = append(graph.Children, ChildSet{Relation: rn.rel, Target: rn.target, Rows: rows})
		}
	}

	if len(details) > 0 {
		return nil, details
	}
	return graph, nil
}

// checkField runs the declarative validators of one field: enum membership,
// the compiled expression, the format tag, uniqueness, and any custom
// validators, in that order. The first failure wins for the field.
func (b *Bound) checkField(node *fieldNode, value any) *apperr.ErrorDetail {
	f := node.field

	if len(f.Enum) > 0 {
		s := fmt.Sprintf("%v", value)
		found := false
		for _, e := range f.Enum {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			return &apperr.ErrorDetail{
				Field:   f.Name,
				Rule:    "enum",
				Message: fmt.Sprintf("%s must be one of: %s", f.Label(), strings.Join(f.Enum, ", ")),
			}
		}
	}

	if prog := f.Program(); prog != nil {
		ok, err := expr.Run(prog, map[string]any{"value": value})
		if err != nil || ok != true {
			msg := f.ValidateMsg
			if msg == "" {
				msg = fmt.Sprintf("%s has an invalid value", f.Label())
			}
			return &apperr.ErrorDetail{Field: f.Name, Rule: "validate", Message: msg}
		}
	}

	if f.Format != "" {
		if err := formatValidate.Var(fmt.Sprintf("%v", value), f.Format); err != nil {
			return &apperr.ErrorDetail{
				Field:   f.Name,
				Rule:    "format",
				Message: fmt.Sprintf("%s is not a valid %s", f.Label(), f.Format),
			}
		}
	}

	if node.unique {
		if d := b.checkUnique(f, value); d != nil {
			return d
		}
	}

	for _, v := range node.validators {
		if d := v(b.rc, f, value); d != nil {
			return d
		}
	}
	return nil
}

// checkUnique rejects a value already present on another row. The row being
// edited is excluded by id; a create excludes nothing.
func (b *Bound) checkUnique(f *metadata.Field, value any) *apperr.ErrorDetail {
	e := b.tpl.Entity
	pb := b.rc.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
		e.Table, f.Name, pb.Add(value))
	if !b.rc.IsNew() {
		sqlStr += fmt.Sprintf(" AND %s != %s", e.PrimaryKey.Field, pb.Add(b.rc.ID))
	}
	count, err := store.QueryCount(b.rc.Ctx, b.rc.Store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return &apperr.ErrorDetail{
			Field:   f.Name,
			Rule:    "unique",
			Message: fmt.Sprintf("%s could not be checked for uniqueness", f.Label()),
		}
	}
	if count != 0 {
		return &apperr.ErrorDetail{
			Field:   f.Name,
			Rule:    "unique",
			Message: fmt.Sprintf("%v is already used", value),
		}
	}
	return nil
}

// objectifyLinks normalizes a many-to-many payload into a list of target
// primary keys and verifies every key against the related table with a
// single query. Missing keys are all reported at once.
func (b *Bound) objectifyLinks(rn *relNode, raw any) ([]any, []apperr.ErrorDetail) {
	pkField := rn.target.PrimaryKey.Field

	items, ok := raw.([]any)
	if !ok {
		return nil, []apperr.ErrorDetail{{
			Field:   rn.rel.Name,
			Rule:    "type",
			Message: fmt.Sprintf("%s must be a list", rn.rel.Name),
		}}
	}

	ids := make([]any, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			// partial dictionaries naming the target primary key only
			id, ok := v[pkField]
			if !ok {
				return nil, []apperr.ErrorDetail{{
					Field:   rn.rel.Name,
					Rule:    "type",
					Message: fmt.Sprintf("%s entries must name %s", rn.rel.Name, pkField),
				}}
			}
			ids = append(ids, normalizeID(id))
		default:
			ids = append(ids, normalizeID(item))
		}
	}

	if d := b.manyToManyValidator(rn, ids); d != nil {
		return nil, []apperr.ErrorDetail{*d}
	}
	return ids, nil
}

// manyToManyValidator checks that every requested key exists in the related
// table. One batched query regardless of list size: an OR across per-key
// AND conjunctions.
func (b *Bound) manyToManyValidator(rn *relNode, ids []any) *apperr.ErrorDetail {
	if len(ids) == 0 {
		return nil
	}
	pkField := rn.target.PrimaryKey.Field
	pb := b.rc.Store.Dialect.NewParamBuilder()

	conjunctions := make([]string, len(ids))
	for i, id := range ids {
		conjunctions[i] = fmt.Sprintf("(%s = %s)", pkField, pb.Add(id))
	}
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		pkField, rn.target.Table, strings.Join(conjunctions, " OR "))

	rows, err := store.QueryRows(b.rc.Ctx, b.rc.Store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return &apperr.ErrorDetail{
			Field:   rn.rel.Name,
			Rule:    "exists",
			Message: fmt.Sprintf("%s could not be verified", rn.rel.Name),
		}
	}

	found := make(map[string]bool, len(rows))
	for _, row := range rows {
		found[fmt.Sprintf("%v", row[pkField])] = true
	}
	var missing []string
	for _, id := range ids {
		if s := fmt.Sprintf("%v", id); !found[s] {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return &apperr.ErrorDetail{
			Field: rn.rel.Name,
			Rule:  "exists",
			Message: fmt.Sprintf("Values %s do not exist in table %s",
				strings.Join(missing, ", "), rn.target.Table),
		}
	}
	return nil
}

// objectifyChildren validates owned child rows. Each row may carry the
// child primary key (update) or omit it (insert); the parent foreign key is
// filled in at persist time.
func (b *Bound) objectifyChildren(rn *relNode, raw any) ([]map[string]any, []apperr.ErrorDetail) {
	items, ok := raw.([]any)
	if !ok {
		if m, isMap := raw.(map[string]any); isMap && rn.rel.IsOneToOne() {
			items = []any{m}
		} else {
			return nil, []apperr.ErrorDetail{{
				Field:   rn.rel.Name,
				Rule:    "type",
				Message: fmt.Sprintf("%s must be a list", rn.rel.Name),
			}}
		}
	}

	var details []apperr.ErrorDetail
	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			details = append(details, apperr.ErrorDetail{
				Field:   rn.rel.Name,
				Rule:    "type",
				Message: fmt.Sprintf("%s entries must be objects", rn.rel.Name),
			})
			continue
		}
		row := make(map[string]any)
		if pk, ok := m[rn.target.PrimaryKey.Field]; ok && pk != nil && pk != "" {
			row[rn.target.PrimaryKey.Field] = normalizeID(pk)
		}
		for _, f := range rn.target.WritableFields() {
			if f.Name == rn.rel.TargetKey {
				continue
			}
			raw, present := m[f.Name]
			if !present || raw == nil || raw == "" {
				if f.Required && !f.Nullable {
					details = append(details, apperr.ErrorDetail{
						Field:   fmt.Sprintf("%s[%d].%s", rn.rel.Name, i, f.Name),
						Rule:    "required",
						Message: fmt.Sprintf("%s is required", f.Label()),
					})
				}
				continue
			}
			value, err := b.coerce(&f, raw)
			if err != nil {
				details = append(details, apperr.ErrorDetail{
					Field:   fmt.Sprintf("%s[%d].%s", rn.rel.Name, i, f.Name),
					Rule:    "type",
					Message: err.Error(),
				})
				continue
			}
			row[f.Name] = value
		}
		rows = append(rows, row)
	}
	if len(details) > 0 {
		return nil, details
	}
	return rows, nil
}

// coerce converts a posted value to the field's storage type.
func (b *Bound) coerce(f *metadata.Field, raw any) (any, error) {
	switch f.Type {
	case "int", "integer", "bigint":
		switch v := raw.(type) {
		case float64:
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s must be an integer", f.Label())
			}
			return n, nil
		}
	case "float", "decimal":
		switch v := raw.(type) {
		case float64:
			return v, nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s must be a number", f.Label())
			}
			return n, nil
		}
	case "boolean":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			// checkbox widgets post "on"
			return v == "on" || v == "true" || v == "1", nil
		}
	case "uuid":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a UUID string", f.Label())
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("%s is not a valid UUID", f.Label())
		}
		return s, nil
	case "geometry":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a GeoJSON string", f.Label())
		}
		g, err := widget.DecodeGeoJSON(s, f.MapSRID, f.SRID)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", f.Label(), err)
		}
		encoded, err := widget.EncodeGeoJSON(g, f.SRID, f.SRID)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", f.Label(), err)
		}
		return encoded, nil
	case "binary":
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case *widget.FileData:
			return v.Data, nil
		}
		return nil, fmt.Errorf("%s must be uploaded file content", f.Label())
	}
	// string, text, timestamp, date, json pass through as-is
	return raw, nil
}

// normalizeID maps JSON numbers onto int64 so that ids compare and bind
// consistently.
func normalizeID(v any) any {
	if f, ok := v.(float64); ok {
		return int64(f)
	}
	return v
}
