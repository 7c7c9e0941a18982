package metadata

type Relation struct {
	Name          string `json:"name"`
	Type          string `json:"type"` // one_to_one, one_to_many, many_to_many
	App           string `json:"app"`
	Source        string `json:"source"`
	Target        string `json:"target"`
	SourceKey     string `json:"source_key"`
	TargetKey     string `json:"target_key,omitempty"`
	JoinTable     string `json:"join_table,omitempty"`
	SourceJoinKey string `json:"source_join_key,omitempty"`
	TargetJoinKey string `json:"target_join_key,omitempty"`
	OnDelete      string `json:"on_delete"` // cascade, set_null, restrict

	// LabelField names the target field used as the option label by
	// relation widgets. Defaults to the target primary key.
	LabelField string `json:"label_field,omitempty"`

	// NoDuplicate excludes the relation from entity duplication.
	NoDuplicate bool `json:"no_duplicate,omitempty"`
}

func (r *Relation) IsManyToMany() bool {
	return r.Type == "many_to_many"
}

func (r *Relation) IsOneToMany() bool {
	return r.Type == "one_to_many"
}

func (r *Relation) IsOneToOne() bool {
	return r.Type == "one_to_one"
}

// Owned reports whether the relation's children belong to the source row.
// Owned children are deleted with their parent and deep-copied by duplicate;
// anything else is shared by reference.
func (r *Relation) Owned() bool {
	return !r.IsManyToMany() && r.OnDelete == "cascade"
}
