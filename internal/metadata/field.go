package metadata

import "github.com/expr-lang/expr/vm"

// WidgetKind selects the form widget rendered for a field.
type WidgetKind string

const (
	WidgetText      WidgetKind = "text"
	WidgetTextArea  WidgetKind = "textarea"
	WidgetHidden    WidgetKind = "hidden"
	WidgetCheckbox  WidgetKind = "checkbox"
	WidgetSelect    WidgetKind = "select"
	WidgetRadio     WidgetKind = "radio"
	WidgetChecklist WidgetKind = "checklist"
	WidgetTypeahead WidgetKind = "typeahead"
	WidgetMap       WidgetKind = "map"
	WidgetFile      WidgetKind = "file"
	WidgetCaptcha   WidgetKind = "captcha"
)

// Field is the static descriptor for one entity attribute. It replaces the
// per-column info dictionaries of the original toolkit: everything a form,
// grid or validator needs to know about the attribute is declared here at
// registration time.
type Field struct {
	Name     string     `json:"name"`
	Title    string     `json:"title,omitempty"`
	Type     string     `json:"type"`
	Widget   WidgetKind `json:"widget,omitempty"`
	Required bool       `json:"required,omitempty"`
	Unique   bool       `json:"unique,omitempty"`
	Nullable bool       `json:"nullable,omitempty"`
	Enum     []string   `json:"enum,omitempty"`

	// AdminList marks the field as a grid column, AdminOnly hides it from
	// the public form.
	AdminList bool `json:"admin_list,omitempty"`
	AdminOnly bool `json:"admin_only,omitempty"`

	// NoDuplicate excludes the field from entity duplication. Scalars are
	// copied by default.
	NoDuplicate bool `json:"no_duplicate,omitempty"`

	// Validate is an expression over `value` evaluated during validation,
	// e.g. "value >= 18". ValidateMsg is the error shown when it fails.
	Validate    string `json:"validate,omitempty"`
	ValidateMsg string `json:"validate_msg,omitempty"`

	// Format names a well-known value format (email, url, uuid4, ...).
	Format string `json:"format,omitempty"`

	// Ref names the entity a foreign-key field points at; relation widgets
	// (select, radio, typeahead) populate their options from it. RefLabel
	// names the target field used as the option label.
	Ref      string `json:"ref,omitempty"`
	RefLabel string `json:"ref_label,omitempty"`

	// Geometry fields: storage SRID and the SRID used by the map widget.
	SRID    int `json:"srid,omitempty"`
	MapSRID int `json:"map_srid,omitempty"`

	Auto string `json:"auto,omitempty"` // "create" or "update" timestamp

	program *vm.Program // compiled Validate expression
}

// Label returns the display title, falling back to the raw field name.
func (f Field) Label() string {
	if f.Title != "" {
		return f.Title
	}
	return f.Name
}

// IsAuto returns true if the field value is managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// IsString reports whether the field holds plain text. Only string fields
// participate in grid substring search.
func (f Field) IsString() bool {
	return f.Type == "string" || f.Type == "text"
}

// IsGeometry reports whether the field holds a geometry value.
func (f Field) IsGeometry() bool {
	return f.Type == "geometry"
}

// DefaultWidget returns the widget used when none is declared.
func (f Field) DefaultWidget() WidgetKind {
	if f.Widget != "" {
		return f.Widget
	}
	switch {
	case f.IsGeometry():
		return WidgetMap
	case f.Type == "boolean":
		return WidgetCheckbox
	case f.Type == "binary":
		return WidgetFile
	case len(f.Enum) > 0:
		return WidgetSelect
	default:
		return WidgetText
	}
}

// Program returns the compiled Validate expression, or nil.
func (f Field) Program() *vm.Program {
	return f.program
}
