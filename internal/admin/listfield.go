package admin

import (
	"fmt"
	"time"

	"geoform-backend/internal/metadata"
)

// Renderer turns a stored value into the string shown in a grid cell.
type Renderer func(v any) string

// ListField pairs an entity field with a grid column: key, resolved label,
// cell renderer and the sort/filter capabilities of the column. Only plain
// string fields are substring-filterable.
type ListField struct {
	Key        string
	Label      string
	Sortable   bool
	Filterable bool
	Renderer   Renderer
}

// ListFieldsFor derives the grid columns from the fields flagged admin_list,
// in declaration order. Labels fall back to the raw field name when no title
// is declared.
func ListFieldsFor(entity *metadata.Entity) []ListField {
	var fields []ListField
	for _, f := range entity.ListFields() {
		fields = append(fields, ListField{
			Key:        f.Name,
			Label:      f.Label(),
			Sortable:   !f.IsGeometry(),
			Filterable: f.IsString(),
			Renderer:   defaultRenderer(f),
		})
	}
	return fields
}

// defaultRenderer stringifies a value; nil renders empty and geometries
// render as the fixed marker "Geometry".
func defaultRenderer(f metadata.Field) Renderer {
	if f.IsGeometry() {
		return func(v any) string {
			if v == nil {
				return ""
			}
			return "Geometry"
		}
	}
	return func(v any) string {
		switch val := v.(type) {
		case nil:
			return ""
		case time.Time:
			return val.Format("2006-01-02 15:04:05")
		case bool:
			if val {
				return "true"
			}
			return "false"
		default:
			return fmt.Sprintf("%v", val)
		}
	}
}

func findListField(fields []ListField, key string) *ListField {
	for i := range fields {
		if fields[i].Key == key {
			return &fields[i]
		}
	}
	return nil
}
