// Package widget adapts form-field types to entity data shapes. Widgets are
// plain descriptors; relation-backed widgets hold a RelationSource instead
// of inheriting behavior.
package widget

// Option is one selectable value of a relation-backed widget.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
