package metadata

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

type OrderField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Entity is the static descriptor for one persisted row type. An entity
// belongs to exactly one application and has exactly one primary-key field;
// HashField, when set, names the opaque public lookup column that is
// populated on first successful public submission.
type Entity struct {
	Name       string     `json:"name"`
	App        string     `json:"app"`
	Table      string     `json:"table"`
	Title      string     `json:"title,omitempty"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	HashField  string     `json:"hash_field,omitempty"`
	// SkipConfirmation persists public submissions directly instead of
	// parking them behind the confirmation step.
	SkipConfirmation bool         `json:"skip_confirmation,omitempty"`
	DefaultOrder     []OrderField `json:"default_order,omitempty"`
	Fields           []Field      `json:"fields"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// ListFields returns the fields flagged for the admin grid, in declaration
// order.
func (e *Entity) ListFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.AdminList {
			fields = append(fields, f)
		}
	}
	return fields
}

// WritableFields returns fields that can be set by the client. Excludes
// auto-generated PKs, auto timestamps and the public hash column.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		if f.Name == e.HashField {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// GeometryField returns the entity's designated geometry field, or nil.
// Entities carry at most one geometry column.
func (e *Entity) GeometryField() *Field {
	for i := range e.Fields {
		if e.Fields[i].IsGeometry() {
			return &e.Fields[i]
		}
	}
	return nil
}
