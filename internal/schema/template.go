package schema

import (
	"fmt"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
)

// Validator checks one field value. A nil result means the value passed.
type Validator func(rc ReqContext, field *metadata.Field, value any) *apperr.ErrorDetail

type fieldNode struct {
	field      *metadata.Field
	unique     bool
	validators []Validator
}

type relNode struct {
	rel    *metadata.Relation
	target *metadata.Entity
}

// Template is the immutable, shareable schema for one entity. It is built
// once at startup and never mutated by request handling; Bind produces the
// per-request view.
type Template struct {
	Entity *metadata.Entity

	reg       *metadata.Registry
	fields    []*fieldNode
	relations []*relNode
}

// New builds the admin schema template from entity metadata. Relations
// sourced at the entity become nested nodes; many-to-many nodes are
// restricted to the target's primary key, so that edits can only reference
// existing rows.
func New(entity *metadata.Entity, reg *metadata.Registry) (*Template, error) {
	return build(entity, reg, false)
}

// NewPublic builds the public-form variant: admin-only fields are excluded
// from validation and rendering entirely.
func NewPublic(entity *metadata.Entity, reg *metadata.Registry) (*Template, error) {
	return build(entity, reg, true)
}

func build(entity *metadata.Entity, reg *metadata.Registry, public bool) (*Template, error) {
	t := &Template{Entity: entity, reg: reg}

	for _, f := range entity.WritableFields() {
		if public && f.AdminOnly {
			continue
		}
		field := entity.GetField(f.Name)
		node := &fieldNode{field: field}
		if field.Unique {
			node.unique = true
		}
		t.fields = append(t.fields, node)
	}

	for _, rel := range reg.RelationsForSource(entity.App, entity.Name) {
		target := reg.GetEntity(rel.App, rel.Target)
		if target == nil {
			return nil, fmt.Errorf("schema for %s: unknown relation target %s", entity.Name, rel.Target)
		}
		t.relations = append(t.relations, &relNode{rel: rel, target: target})
	}

	return t, nil
}

// AddUniqueValidator attaches a uniqueness check to a field. It composes
// with any validator already present: all of them must pass.
func (t *Template) AddUniqueValidator(fieldName string) error {
	node := t.node(fieldName)
	if node == nil {
		return fmt.Errorf("schema for %s: no such field %s", t.Entity.Name, fieldName)
	}
	node.unique = true
	return nil
}

// AddValidator attaches a custom validator to a field, composing with any
// existing validators.
func (t *Template) AddValidator(fieldName string, v Validator) error {
	node := t.node(fieldName)
	if node == nil {
		return fmt.Errorf("schema for %s: no such field %s", t.Entity.Name, fieldName)
	}
	node.validators = append(node.validators, v)
	return nil
}

func (t *Template) node(fieldName string) *fieldNode {
	for _, n := range t.fields {
		if n.field.Name == fieldName {
			return n
		}
	}
	return nil
}

// Relations returns the relation nodes of the template.
func (t *Template) Relations() []*metadata.Relation {
	rels := make([]*metadata.Relation, len(t.relations))
	for i, rn := range t.relations {
		rels[i] = rn.rel
	}
	return rels
}

// Bind produces the request-bound schema. The template itself is shared
// between requests and never mutated; all request state lives on the Bound
// value.
func (t *Template) Bind(rc ReqContext) *Bound {
	return &Bound{tpl: t, rc: rc}
}
