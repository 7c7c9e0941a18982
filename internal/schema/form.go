package schema

import (
	"log"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/widget"
)

// FormField is the render-ready description of one form input.
type FormField struct {
	Name     string              `json:"name"`
	Label    string              `json:"label"`
	Widget   metadata.WidgetKind `json:"widget"`
	Type     string              `json:"type"`
	Required bool                `json:"required,omitempty"`
	Options  []widget.Option     `json:"options,omitempty"`
	MapSRID  int                 `json:"map_srid,omitempty"`
	Multiple bool                `json:"multiple,omitempty"`
	Sub      []FormField         `json:"sub,omitempty"`
}

// FormView is the JSON payload a client renders a form from: the field
// descriptions, the current values, and any field-level errors.
type FormView struct {
	Entity string               `json:"entity"`
	Title  string               `json:"title,omitempty"`
	ID     string               `json:"id,omitempty"`
	Fields []FormField          `json:"fields"`
	Values map[string]any       `json:"values"`
	Errors []apperr.ErrorDetail `json:"errors,omitempty"`
}

// Form builds the render-ready form description: one entry per field node
// plus one per relation node, with relation-backed widget options populated
// from the database.
func (b *Bound) Form(values map[string]any, errs []apperr.ErrorDetail) *FormView {
	view := &FormView{
		Entity: b.tpl.Entity.Name,
		Title:  b.tpl.Entity.Title,
		Values: values,
		Errors: errs,
	}
	if !b.rc.IsNew() {
		view.ID = b.rc.ID
	}

	for _, node := range b.tpl.fields {
		f := node.field
		ff := FormField{
			Name:     f.Name,
			Label:    f.Label(),
			Widget:   f.DefaultWidget(),
			Type:     f.Type,
			Required: f.Required,
			MapSRID:  f.MapSRID,
		}
		switch {
		case f.Ref != "":
			target := b.tpl.reg.GetEntity(b.tpl.Entity.App, f.Ref)
			if target != nil {
				ff.Options = b.populate(widget.NewRelationSource(target, f.RefLabel))
			}
		case len(f.Enum) > 0:
			for _, e := range f.Enum {
				ff.Options = append(ff.Options, widget.Option{Value: e, Label: e})
			}
		}
		view.Fields = append(view.Fields, ff)
	}

	for _, rn := range b.tpl.relations {
		if rn.rel.IsManyToMany() {
			view.Fields = append(view.Fields, FormField{
				Name:     rn.rel.Name,
				Label:    rn.rel.Name,
				Widget:   metadata.WidgetChecklist,
				Type:     "relation",
				Multiple: true,
				Options:  b.populate(widget.NewRelationSource(rn.target, rn.rel.LabelField)),
			})
		} else {
			// owned child rows render as a nested sub-form
			var sub []FormField
			for _, f := range rn.target.WritableFields() {
				if f.Name == rn.rel.TargetKey {
					continue
				}
				sub = append(sub, FormField{
					Name:     f.Name,
					Label:    f.Label(),
					Widget:   f.DefaultWidget(),
					Type:     f.Type,
					Required: f.Required,
				})
			}
			view.Fields = append(view.Fields, FormField{
				Name:     rn.rel.Name,
				Label:    rn.rel.Name,
				Widget:   "subform",
				Type:     "relation",
				Multiple: !rn.rel.IsOneToOne(),
				Sub:      sub,
			})
		}
	}

	return view
}

func (b *Bound) populate(src *widget.RelationSource) []widget.Option {
	options, err := src.Populate(b.rc.Ctx, b.rc.Store.DB)
	if err != nil {
		log.Printf("WARN: populate widget options for %s: %v", src.Target.Name, err)
		return nil
	}
	return options
}
