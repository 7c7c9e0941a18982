package metadata

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
)

// Application is a named group of entities sharing a URL prefix.
type Application struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// Registry holds all registered applications, entities and relations. It is
// built once at startup and passed explicitly to handlers; there is no
// module-level registry.
type Registry struct {
	mu                sync.RWMutex
	apps              map[string]*Application
	entities          map[string]*Entity     // keyed by app + "/" + entity name
	relationsBySource map[string][]*Relation // keyed by app + "/" + source entity
	relationsByName   map[string]*Relation   // keyed by app + "/" + relation name
}

func NewRegistry() *Registry {
	return &Registry{
		apps:              make(map[string]*Application),
		entities:          make(map[string]*Entity),
		relationsBySource: make(map[string][]*Relation),
		relationsByName:   make(map[string]*Relation),
	}
}

func key(app, name string) string {
	return app + "/" + name
}

// RegisterApplication adds an application to the registry.
func (r *Registry) RegisterApplication(app *Application) error {
	if app.Name == "" {
		return fmt.Errorf("application name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[app.Name]; ok {
		return fmt.Errorf("application %s already registered", app.Name)
	}
	r.apps[app.Name] = app
	return nil
}

// RegisterEntity validates the entity descriptor, compiles its field
// validator expressions and adds it to the registry.
func (r *Registry) RegisterEntity(e *Entity) error {
	if e.Name == "" || e.Table == "" {
		return fmt.Errorf("entity name and table are required")
	}
	if e.PrimaryKey.Field == "" {
		return fmt.Errorf("entity %s: primary key field is required", e.Name)
	}
	if !e.HasField(e.PrimaryKey.Field) {
		return fmt.Errorf("entity %s: primary key %s is not a declared field", e.Name, e.PrimaryKey.Field)
	}
	if e.HashField != "" && !e.HasField(e.HashField) {
		return fmt.Errorf("entity %s: hash field %s is not a declared field", e.Name, e.HashField)
	}
	for _, o := range e.DefaultOrder {
		if !e.HasField(o.Field) {
			return fmt.Errorf("entity %s: default order field %s is not declared", e.Name, o.Field)
		}
	}
	geoms := 0
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.IsGeometry() {
			geoms++
		}
		if f.Validate != "" {
			prog, err := expr.Compile(f.Validate, expr.AsBool(), expr.AllowUndefinedVariables())
			if err != nil {
				return fmt.Errorf("entity %s: field %s: compile validator: %w", e.Name, f.Name, err)
			}
			f.program = prog
		}
	}
	if geoms > 1 {
		return fmt.Errorf("entity %s: at most one geometry field is supported", e.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[e.App]; !ok {
		return fmt.Errorf("entity %s: unknown application %s", e.Name, e.App)
	}
	for i := range e.Fields {
		if ref := e.Fields[i].Ref; ref != "" {
			if _, ok := r.entities[key(e.App, ref)]; !ok {
				return fmt.Errorf("entity %s: field %s references unknown entity %s",
					e.Name, e.Fields[i].Name, ref)
			}
		}
	}
	k := key(e.App, e.Name)
	if _, ok := r.entities[k]; ok {
		return fmt.Errorf("entity %s already registered in application %s", e.Name, e.App)
	}
	r.entities[k] = e
	return nil
}

// RegisterRelation validates relation endpoints and adds it to the registry.
func (r *Registry) RegisterRelation(rel *Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.entities[key(rel.App, rel.Source)]
	if !ok {
		return fmt.Errorf("relation %s: unknown source entity %s", rel.Name, rel.Source)
	}
	tgt, ok := r.entities[key(rel.App, rel.Target)]
	if !ok {
		return fmt.Errorf("relation %s: unknown target entity %s", rel.Name, rel.Target)
	}
	if rel.SourceKey == "" {
		rel.SourceKey = src.PrimaryKey.Field
	}
	if rel.IsManyToMany() {
		if rel.JoinTable == "" || rel.SourceJoinKey == "" || rel.TargetJoinKey == "" {
			return fmt.Errorf("relation %s: many_to_many requires join_table and join keys", rel.Name)
		}
	} else if rel.TargetKey == "" {
		return fmt.Errorf("relation %s: target_key is required", rel.Name)
	}
	if rel.LabelField == "" {
		rel.LabelField = tgt.PrimaryKey.Field
	}

	k := key(rel.App, rel.Name)
	if _, ok := r.relationsByName[k]; ok {
		return fmt.Errorf("relation %s already registered in application %s", rel.Name, rel.App)
	}
	r.relationsByName[k] = rel
	sk := key(rel.App, rel.Source)
	r.relationsBySource[sk] = append(r.relationsBySource[sk], rel)
	return nil
}

// GetApplication returns the application with the given name, or nil.
func (r *Registry) GetApplication(name string) *Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apps[name]
}

// GetEntity returns the entity registered under app/name, or nil.
func (r *Registry) GetEntity(app, name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[key(app, name)]
}

// AllEntities returns all entities of an application.
func (r *Registry) AllEntities(app string) []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var entities []*Entity
	for _, e := range r.entities {
		if e.App == app {
			entities = append(entities, e)
		}
	}
	return entities
}

// EveryEntity returns all registered entities across applications.
func (r *Registry) EveryEntity() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	return entities
}

// EveryRelation returns all registered relations.
func (r *Registry) EveryRelation() []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rels := make([]*Relation, 0, len(r.relationsByName))
	for _, rel := range r.relationsByName {
		rels = append(rels, rel)
	}
	return rels
}

// GetRelation returns a relation by name, or nil.
func (r *Registry) GetRelation(app, name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsByName[key(app, name)]
}

// RelationsForSource returns all relations whose source is the given entity.
func (r *Registry) RelationsForSource(app, entityName string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsBySource[key(app, entityName)]
}
