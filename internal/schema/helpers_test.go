package schema

import (
	"context"
	"fmt"
	"testing"

	"geoform-backend/internal/metadata"
	"geoform-backend/internal/sample"
	"geoform-backend/internal/store"
)

// setupDemo opens an in-memory store with the demo application migrated.
func setupDemo(t *testing.T) (context.Context, *store.Store, *metadata.Registry) {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewMemory(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)

	reg := metadata.NewRegistry()
	if err := sample.Register(reg); err != nil {
		t.Fatalf("register demo app: %v", err)
	}

	m := store.NewMigrator(st)
	if err := m.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := m.MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ctx, st, reg
}

// seedTags inserts tag rows and returns their generated ids.
func seedTags(t *testing.T, ctx context.Context, st *store.Store, labels ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(labels))
	for _, label := range labels {
		pb := st.Dialect.NewParamBuilder()
		row, err := store.QueryRow(ctx, st.DB, fmt.Sprintf(
			"INSERT INTO tag (label) VALUES (%s) RETURNING id", pb.Add(label)), pb.Params()...)
		if err != nil {
			t.Fatalf("seed tag %s: %v", label, err)
		}
		id, ok := row["id"].(int64)
		if !ok {
			t.Fatalf("unexpected tag id type %T", row["id"])
		}
		ids = append(ids, id)
	}
	return ids
}

func toIDString(v any) string {
	return fmt.Sprintf("%v", v)
}

func personBound(t *testing.T, ctx context.Context, st *store.Store, reg *metadata.Registry, id string) *Bound {
	t.Helper()
	tpl, err := New(reg.GetEntity("demo", "person"), reg)
	if err != nil {
		t.Fatalf("build person template: %v", err)
	}
	return tpl.Bind(ReqContext{Ctx: ctx, Store: st, ID: id})
}
