package admin

import (
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/schema"
)

// Copy loads a record with its relations and turns it into the value map
// of an unsaved duplicate. Owned child rows are cloned without their
// primary and foreign keys, so saving the copy inserts fresh rows;
// many-to-many links keep the original target ids and end up pointing at
// the same rows. The primary key, hash and non-duplicable fields are
// stripped, plus any field named in excludes.
func (ctl *Controller) Copy(rc schema.ReqContext, entity *metadata.Entity, id string, excludes []string) (map[string]any, error) {
	tpl := ctl.templates[entity.App+"/"+entity.Name]
	bound := tpl.Bind(rc)

	record, err := schema.FetchRecord(rc, entity, id)
	if err != nil {
		return nil, err
	}
	children, links, err := bound.FetchRelated(record[entity.PrimaryKey.Field])
	if err != nil {
		return nil, err
	}
	values := bound.Dictify(record, children, links)

	delete(values, entity.PrimaryKey.Field)
	if entity.HashField != "" {
		delete(values, entity.HashField)
	}
	for _, f := range entity.Fields {
		if f.IsAuto() || f.NoDuplicate {
			delete(values, f.Name)
		}
	}
	for _, name := range excludes {
		delete(values, name)
	}

	for _, rel := range tpl.Relations() {
		switch {
		case rel.NoDuplicate:
			delete(values, rel.Name)
		case rel.IsManyToMany():
			// shared by reference, keep as is
		case rel.Owned():
			target := ctl.reg.GetEntity(rel.App, rel.Target)
			if target == nil {
				continue
			}
			rows, _ := values[rel.Name].([]map[string]any)
			values[rel.Name] = stripChildKeys(rows, target, rel)
		default:
			// children not owned by this record stay with the original
			delete(values, rel.Name)
		}
	}
	return values, nil
}

func stripChildKeys(rows []map[string]any, target *metadata.Entity, rel *metadata.Relation) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		clone := make(map[string]any, len(row))
		for k, v := range row {
			clone[k] = v
		}
		delete(clone, target.PrimaryKey.Field)
		delete(clone, rel.TargetKey)
		for _, f := range target.Fields {
			if f.IsAuto() || f.NoDuplicate {
				delete(clone, f.Name)
			}
		}
		out = append(out, clone)
	}
	return out
}
