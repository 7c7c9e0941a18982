package schema

import (
	"fmt"
	"log"

	"geoform-backend/internal/widget"
)

// Dictify converts a stored record plus its relation data into the value
// map a form renders from. Geometries are reprojected into the map widget's
// SRID; binary columns are reduced to a presence marker.
func (b *Bound) Dictify(record map[string]any, children map[string][]map[string]any, links map[string][]any) map[string]any {
	values := make(map[string]any)

	for _, node := range b.tpl.fields {
		f := node.field
		v, ok := record[f.Name]
		if !ok || v == nil {
			continue
		}
		switch {
		case f.IsGeometry():
			s, ok := v.(string)
			if !ok {
				continue
			}
			g, err := widget.DecodeGeoJSON(s, f.SRID, f.SRID)
			if err != nil {
				log.Printf("WARN: dictify %s.%s: stored geometry is invalid: %v",
					b.tpl.Entity.Name, f.Name, err)
				continue
			}
			encoded, err := widget.EncodeGeoJSON(g, f.SRID, f.MapSRID)
			if err != nil {
				log.Printf("WARN: dictify %s.%s: %v", b.tpl.Entity.Name, f.Name, err)
				continue
			}
			values[f.Name] = encoded
		case f.Type == "binary":
			values[f.Name] = map[string]any{"uploaded": true}
		default:
			values[f.Name] = v
		}
	}

	if id, ok := record[b.tpl.Entity.PrimaryKey.Field]; ok && id != nil {
		values[b.tpl.Entity.PrimaryKey.Field] = fmt.Sprintf("%v", id)
	}

	for _, rn := range b.tpl.relations {
		if rn.rel.IsManyToMany() {
			if ids, ok := links[rn.rel.Name]; ok {
				values[rn.rel.Name] = ids
			}
		} else {
			if rows, ok := children[rn.rel.Name]; ok {
				values[rn.rel.Name] = rows
			}
		}
	}

	return values
}
