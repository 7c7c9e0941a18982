package widget

import (
	"context"
	"fmt"

	"geoform-backend/internal/metadata"
	"geoform-backend/internal/store"
)

// RelationSource is the capability backing select, radio, checklist and
// typeahead widgets: it loads the id/label option pairs of a related entity.
type RelationSource struct {
	Target     *metadata.Entity
	LabelField string
}

func NewRelationSource(target *metadata.Entity, labelField string) *RelationSource {
	if labelField == "" {
		labelField = target.PrimaryKey.Field
	}
	return &RelationSource{Target: target, LabelField: labelField}
}

// Populate loads all options of the related entity, ordered by label.
func (s *RelationSource) Populate(ctx context.Context, q store.Querier) ([]Option, error) {
	sqlStr := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		s.Target.PrimaryKey.Field, s.LabelField, s.Target.Table, s.LabelField)
	rows, err := store.QueryRows(ctx, q, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("populate options for %s: %w", s.Target.Name, err)
	}
	options := make([]Option, 0, len(rows))
	for _, row := range rows {
		options = append(options, Option{
			Value: fmt.Sprintf("%v", row[s.Target.PrimaryKey.Field]),
			Label: fmt.Sprintf("%v", row[s.LabelField]),
		})
	}
	return options, nil
}
