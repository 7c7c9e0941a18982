package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"geoform-backend/internal/metadata"
)

// Migrator creates database tables from registered entity metadata.
type Migrator struct {
	store *Store
}

func NewMigrator(s *Store) *Migrator {
	return &Migrator{store: s}
}

// Bootstrap creates the system tables (admin users).
func (m *Migrator) Bootstrap(ctx context.Context) error {
	d := m.store.Dialect
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS _users (
		id %s PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at %s NOT NULL DEFAULT (%s)
	)`, d.ColumnType("uuid"), d.ColumnType("timestamp"), d.NowExpr())
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create _users: %w", err)
	}

	ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS _refresh_tokens (
		id %s PRIMARY KEY,
		user_id %s NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
		token TEXT NOT NULL UNIQUE,
		expires_at %s NOT NULL
	)`, d.ColumnType("uuid"), d.ColumnType("uuid"), d.ColumnType("timestamp"))
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create _refresh_tokens: %w", err)
	}

	ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS _audit (
		id %s PRIMARY KEY,
		action TEXT NOT NULL,
		app TEXT NOT NULL,
		entity TEXT NOT NULL,
		record_id TEXT,
		user_id TEXT,
		at %s NOT NULL
	)`, d.ColumnType("uuid"), d.ColumnType("timestamp"))
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create _audit: %w", err)
	}
	return nil
}

// MigrateAll creates a table for every registered entity, a join table for
// every many-to-many relation, and unique indexes for unique and hash
// columns. Existing tables are left untouched.
func (m *Migrator) MigrateAll(ctx context.Context, reg *metadata.Registry) error {
	for _, e := range reg.EveryEntity() {
		if err := m.migrateEntity(ctx, e); err != nil {
			return err
		}
	}
	for _, rel := range reg.EveryRelation() {
		if !rel.IsManyToMany() {
			continue
		}
		if err := m.migrateJoinTable(ctx, reg, rel); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) migrateEntity(ctx context.Context, e *metadata.Entity) error {
	d := m.store.Dialect
	exists, err := d.TableExists(ctx, m.store.DB, e.Table)
	if err != nil {
		return fmt.Errorf("check table %s: %w", e.Table, err)
	}
	if exists {
		return nil
	}

	var cols []string
	for _, f := range e.Fields {
		col := fmt.Sprintf("%s %s", f.Name, d.ColumnType(f.Type))
		if f.Name == e.PrimaryKey.Field {
			col += " PRIMARY KEY"
			if e.PrimaryKey.Generated {
				if e.PrimaryKey.Type == "uuid" && d.UUIDDefault() != "" {
					col += " " + d.UUIDDefault()
				} else if e.PrimaryKey.Type != "uuid" {
					if d.Name() == "postgres" {
						col = fmt.Sprintf("%s %s PRIMARY KEY", f.Name, "BIGSERIAL")
					}
					// SQLite INTEGER PRIMARY KEY autoincrements on its own
				}
			}
		} else {
			if f.Required && !f.Nullable {
				col += " NOT NULL"
			}
			if f.IsAuto() {
				col += fmt.Sprintf(" DEFAULT (%s)", d.NowExpr())
			}
		}
		cols = append(cols, col)
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", e.Table, strings.Join(cols, ", "))
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", e.Table, err)
	}

	for _, f := range e.Fields {
		if !f.Unique && f.Name != e.HashField {
			continue
		}
		if f.Name == e.PrimaryKey.Field {
			continue
		}
		idx := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS ux_%s_%s ON %s (%s)",
			e.Table, f.Name, e.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", e.Table, f.Name, err)
		}
	}

	log.Printf("Created table %s for entity %s/%s", e.Table, e.App, e.Name)
	return nil
}

// migrateJoinTable creates the association table for a many-to-many
// relation. Association rows carry their own generated primary key so that
// extra attributes can be added alongside the two references.
func (m *Migrator) migrateJoinTable(ctx context.Context, reg *metadata.Registry, rel *metadata.Relation) error {
	d := m.store.Dialect
	exists, err := d.TableExists(ctx, m.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table %s: %w", rel.JoinTable, err)
	}
	if exists {
		return nil
	}

	src := reg.GetEntity(rel.App, rel.Source)
	tgt := reg.GetEntity(rel.App, rel.Target)
	if src == nil || tgt == nil {
		return fmt.Errorf("relation %s: unresolved endpoints", rel.Name)
	}

	idCol := "id INTEGER PRIMARY KEY"
	if d.Name() == "postgres" {
		idCol = "id BIGSERIAL PRIMARY KEY"
	}
	ddl := fmt.Sprintf(`CREATE TABLE %s (
		%s,
		%s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
		%s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
		UNIQUE (%s, %s)
	)`,
		rel.JoinTable, idCol,
		rel.SourceJoinKey, d.ColumnType(src.PrimaryKey.Type), src.Table, src.PrimaryKey.Field,
		rel.TargetJoinKey, d.ColumnType(tgt.PrimaryKey.Type), tgt.Table, tgt.PrimaryKey.Field,
		rel.SourceJoinKey, rel.TargetJoinKey)
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}

	log.Printf("Created join table %s for relation %s", rel.JoinTable, rel.Name)
	return nil
}
