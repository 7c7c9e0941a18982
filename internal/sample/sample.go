// Package sample registers the demo application: a Person entity with an
// owned phone list, a shared tag list, a point geometry and a public
// submission form. It doubles as a worked example of the registration API.
package sample

import (
	"geoform-backend/internal/metadata"
)

// Register declares the demo application on the given registry.
func Register(reg *metadata.Registry) error {
	if err := reg.RegisterApplication(&metadata.Application{
		Name:  "demo",
		Title: "Demo",
	}); err != nil {
		return err
	}

	if err := reg.RegisterEntity(&metadata.Entity{
		Name:      "person",
		App:       "demo",
		Table:     "person",
		Title:     "Person",
		HashField: "hash",
		PrimaryKey: metadata.PrimaryKey{
			Field:     "id",
			Type:      "uuid",
			Generated: true,
		},
		DefaultOrder: []metadata.OrderField{{Field: "name"}},
		Fields: []metadata.Field{
			{Name: "id", Type: "uuid", Widget: metadata.WidgetHidden},
			{Name: "hash", Type: "string", AdminOnly: true},
			{Name: "name", Title: "Last name", Type: "string", Required: true, AdminList: true},
			{Name: "first_name", Title: "First name", Type: "string", Required: true, AdminList: true},
			{Name: "age", Title: "Age", Type: "int", Validate: "value >= 0 and value < 150", ValidateMsg: "Age must be between 0 and 149"},
			{Name: "email", Title: "Email", Type: "string", Format: "email", AdminList: true},
			{Name: "bio", Title: "Biography", Type: "text", Widget: metadata.WidgetTextArea},
			{Name: "eye_color", Title: "Eye color", Type: "string", Enum: []string{"brown", "blue", "green", "other"}},
			{Name: "validated", Title: "Validated", Type: "boolean", AdminOnly: true, AdminList: true, NoDuplicate: true},
			{Name: "position", Title: "Position", Type: "geometry", SRID: 4326, MapSRID: 3857},
			{Name: "photo", Title: "Photo", Type: "binary"},
			{Name: "created_at", Type: "timestamp", Auto: "create", AdminOnly: true},
		},
	}); err != nil {
		return err
	}

	if err := reg.RegisterEntity(&metadata.Entity{
		Name:  "phone",
		App:   "demo",
		Table: "phone",
		Title: "Phone",
		PrimaryKey: metadata.PrimaryKey{
			Field:     "id",
			Type:      "bigint",
			Generated: true,
		},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint", Widget: metadata.WidgetHidden},
			{Name: "number", Title: "Number", Type: "string", Required: true, AdminList: true},
			{Name: "person_id", Type: "uuid", Widget: metadata.WidgetHidden},
		},
	}); err != nil {
		return err
	}

	if err := reg.RegisterEntity(&metadata.Entity{
		Name:  "tag",
		App:   "demo",
		Table: "tag",
		Title: "Tag",
		PrimaryKey: metadata.PrimaryKey{
			Field:     "id",
			Type:      "bigint",
			Generated: true,
		},
		DefaultOrder: []metadata.OrderField{{Field: "label"}},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint", Widget: metadata.WidgetHidden},
			{Name: "label", Title: "Label", Type: "string", Required: true, Unique: true, AdminList: true},
		},
	}); err != nil {
		return err
	}

	if err := reg.RegisterRelation(&metadata.Relation{
		Name:      "phones",
		Type:      "one_to_many",
		App:       "demo",
		Source:    "person",
		Target:    "phone",
		TargetKey: "person_id",
		OnDelete:  "cascade",
	}); err != nil {
		return err
	}

	return reg.RegisterRelation(&metadata.Relation{
		Name:          "tags",
		Type:          "many_to_many",
		App:           "demo",
		Source:        "person",
		Target:        "tag",
		JoinTable:     "person_tag",
		SourceJoinKey: "person_id",
		TargetJoinKey: "tag_id",
		LabelField:    "label",
	})
}
