package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"geoform-backend/internal/metadata"
	"geoform-backend/internal/store"
)

// Persist writes the object graph inside one transaction: the parent row is
// inserted or updated, owned children are reconciled, and many-to-many join
// rows are replaced. Nothing is written until the whole graph is ready, so
// a half-built relationship graph can never be flushed.
func (b *Bound) Persist(graph *ObjectGraph) (any, error) {
	entity := graph.Entity
	st := b.rc.Store

	tx, err := st.BeginTx(b.rc.Ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var parentID any
	if b.rc.IsNew() {
		parentID, err = insertRecord(b.rc, tx, entity, graph.Fields)
	} else {
		parentID = b.rc.ID
		err = updateRecord(b.rc, tx, entity, b.rc.ID, graph.Fields)
	}
	if err != nil {
		return nil, st.Dialect.MapError(err)
	}

	for _, cs := range graph.Children {
		if err := reconcileChildren(b.rc, tx, cs, parentID); err != nil {
			return nil, st.Dialect.MapError(err)
		}
	}
	for _, ls := range graph.Links {
		if err := replaceLinks(b.rc, tx, ls, parentID); err != nil {
			return nil, st.Dialect.MapError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return parentID, nil
}

func insertRecord(rc ReqContext, q store.Querier, entity *metadata.Entity, fields map[string]any) (any, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	pk := entity.PrimaryKey
	if pk.Generated && pk.Type == "uuid" {
		// UUIDs are generated in application code so both dialects behave
		// the same
		values[pk.Field] = uuid.NewString()
	}
	for _, f := range entity.Fields {
		if f.IsAuto() {
			delete(values, f.Name)
		}
	}

	cols := sortedKeys(values)
	pb := rc.Store.Dialect.NewParamBuilder()
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = pb.Add(values[c])
	}
	for _, f := range entity.Fields {
		if f.IsAuto() {
			cols = append(cols, f.Name)
			placeholders = append(placeholders, rc.Store.Dialect.NowExpr())
		}
	}

	var sqlStr string
	if len(cols) == 0 {
		sqlStr = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", entity.Table, pk.Field)
	} else {
		sqlStr = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			entity.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), pk.Field)
	}
	row, err := store.QueryRow(rc.Ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", entity.Table, err)
	}
	return row[pk.Field], nil
}

func updateRecord(rc ReqContext, q store.Querier, entity *metadata.Entity, id any, fields map[string]any) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == entity.PrimaryKey.Field {
			continue
		}
		values[k] = v
	}
	if len(values) == 0 {
		return nil
	}

	pb := rc.Store.Dialect.NewParamBuilder()
	sets := make([]string, 0, len(values))
	for _, c := range sortedKeys(values) {
		sets = append(sets, fmt.Sprintf("%s = %s", c, pb.Add(values[c])))
	}
	for _, f := range entity.Fields {
		if f.Auto == "update" {
			sets = append(sets, fmt.Sprintf("%s = %s", f.Name, rc.Store.Dialect.NowExpr()))
		}
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		entity.Table, strings.Join(sets, ", "), entity.PrimaryKey.Field, pb.Add(id))
	affected, err := store.Exec(rc.Ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update %s: %w", entity.Table, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// reconcileChildren diffs posted child rows against the stored ones: rows
// carrying a known primary key are updated, rows without one are inserted
// with the parent key set, and stored rows absent from the payload are
// deleted.
func reconcileChildren(rc ReqContext, q store.Querier, cs ChildSet, parentID any) error {
	rel := cs.Relation
	target := cs.Target
	pkField := target.PrimaryKey.Field

	existing, err := fetchChildren(rc, q, rel, target, parentID)
	if err != nil {
		return err
	}
	existingByPK := make(map[string]map[string]any, len(existing))
	for _, row := range existing {
		existingByPK[fmt.Sprintf("%v", row[pkField])] = row
	}

	seen := make(map[string]bool)
	for _, row := range cs.Rows {
		pk, hasPK := row[pkField]
		if hasPK {
			pkStr := fmt.Sprintf("%v", pk)
			if _, exists := existingByPK[pkStr]; exists {
				seen[pkStr] = true
				fields := make(map[string]any, len(row))
				for k, v := range row {
					if k == pkField {
						continue
					}
					fields[k] = v
				}
				if err := updateRecord(rc, q, target, pk, fields); err != nil {
					return err
				}
				continue
			}
			// unknown child id: treat as a fresh row rather than adopting
			// someone else's child
		}
		fields := make(map[string]any, len(row)+1)
		for k, v := range row {
			if k == pkField {
				continue
			}
			fields[k] = v
		}
		fields[rel.TargetKey] = parentID
		if _, err := insertRecord(rc, q, target, fields); err != nil {
			return err
		}
	}

	for pkStr, row := range existingByPK {
		if seen[pkStr] {
			continue
		}
		pb := rc.Store.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			target.Table, pkField, pb.Add(row[pkField]))
		if _, err := store.Exec(rc.Ctx, q, sqlStr, pb.Params()...); err != nil {
			return fmt.Errorf("delete child %s: %w", target.Table, err)
		}
	}
	return nil
}

// replaceLinks rewrites the association rows of a many-to-many relation:
// the old rows are deleted and fresh rows inserted, so every edit yields
// new association identities.
func replaceLinks(rc ReqContext, q store.Querier, ls LinkSet, parentID any) error {
	rel := ls.Relation

	pb := rc.Store.Dialect.NewParamBuilder()
	delSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		rel.JoinTable, rel.SourceJoinKey, pb.Add(parentID))
	if _, err := store.Exec(rc.Ctx, q, delSQL, pb.Params()...); err != nil {
		return fmt.Errorf("clear links %s: %w", rel.JoinTable, err)
	}

	for _, id := range ls.IDs {
		pb := rc.Store.Dialect.NewParamBuilder()
		insSQL := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
			rel.JoinTable, rel.SourceJoinKey, rel.TargetJoinKey,
			pb.Add(parentID), pb.Add(id))
		if _, err := store.Exec(rc.Ctx, q, insSQL, pb.Params()...); err != nil {
			return fmt.Errorf("insert link %s: %w", rel.JoinTable, err)
		}
	}
	return nil
}

// FetchRecord loads the parent row by primary key.
func (b *Bound) FetchRecord(id any) (map[string]any, error) {
	return FetchRecord(b.rc, b.tpl.Entity, id)
}

// FetchRecord loads one row of an entity by primary key.
func FetchRecord(rc ReqContext, entity *metadata.Entity, id any) (map[string]any, error) {
	pb := rc.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(entity.FieldNames(), ", "), entity.Table,
		entity.PrimaryKey.Field, pb.Add(id))
	return store.QueryRow(rc.Ctx, rc.Store.DB, sqlStr, pb.Params()...)
}

// FetchRelated loads all relation data of a record: owned child rows and
// many-to-many target ids, keyed by relation name.
func (b *Bound) FetchRelated(parentID any) (map[string][]map[string]any, map[string][]any, error) {
	children := make(map[string][]map[string]any)
	links := make(map[string][]any)

	for _, rn := range b.tpl.relations {
		if rn.rel.IsManyToMany() {
			ids, err := fetchLinkIDs(b.rc, b.rc.Store.DB, rn.rel, parentID)
			if err != nil {
				return nil, nil, err
			}
			links[rn.rel.Name] = ids
		} else {
			rows, err := fetchChildren(b.rc, b.rc.Store.DB, rn.rel, rn.target, parentID)
			if err != nil {
				return nil, nil, err
			}
			children[rn.rel.Name] = rows
		}
	}
	return children, links, nil
}

func fetchChildren(rc ReqContext, q store.Querier, rel *metadata.Relation, target *metadata.Entity, parentID any) ([]map[string]any, error) {
	pb := rc.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s",
		strings.Join(target.FieldNames(), ", "), target.Table,
		rel.TargetKey, pb.Add(parentID), target.PrimaryKey.Field)
	rows, err := store.QueryRows(rc.Ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("fetch children %s: %w", rel.Name, err)
	}
	return rows, nil
}

func fetchLinkIDs(rc ReqContext, q store.Querier, rel *metadata.Relation, parentID any) ([]any, error) {
	pb := rc.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s",
		rel.TargetJoinKey, rel.JoinTable, rel.SourceJoinKey, pb.Add(parentID), rel.TargetJoinKey)
	rows, err := store.QueryRows(rc.Ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("fetch links %s: %w", rel.Name, err)
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row[rel.TargetJoinKey])
	}
	return ids, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
