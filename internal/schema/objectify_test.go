package schema

import (
	"strings"
	"testing"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/store"
)

func hasDetail(details []apperr.ErrorDetail, field, rule string) bool {
	for _, d := range details {
		if d.Field == field && d.Rule == rule {
			return true
		}
	}
	return false
}

func TestObjectify_CollectsAllFieldErrors(t *testing.T) {
	ctx, st, reg := setupDemo(t)
	bound := personBound(t, ctx, st, reg, "new")

	graph, details := bound.Objectify(map[string]any{
		"email":     "not-an-email",
		"eye_color": "purple",
		"age":       float64(200),
	})
	if graph != nil {
		t.Fatal("expected nil graph on validation failure")
	}
	if !hasDetail(details, "name", "required") {
		t.Errorf("missing required error for name: %v", details)
	}
	if !hasDetail(details, "first_name", "required") {
		t.Errorf("missing required error for first_name: %v", details)
	}
	if !hasDetail(details, "email", "format") {
		t.Errorf("missing format error for email: %v", details)
	}
	if !hasDetail(details, "eye_color", "enum") {
		t.Errorf("missing enum error for eye_color: %v", details)
	}
	if !hasDetail(details, "age", "validate") {
		t.Errorf("missing expression error for age: %v", details)
	}
}

func TestObjectify_ExpressionValidatorMessage(t *testing.T) {
	ctx, st, reg := setupDemo(t)
	bound := personBound(t, ctx, st, reg, "new")

	_, details := bound.Objectify(map[string]any{
		"name":       "Peter",
		"first_name": "Smith",
		"age":        float64(-3),
	})
	if len(details) != 1 {
		t.Fatalf("expected exactly one detail, got %v", details)
	}
	if details[0].Message != "Age must be between 0 and 149" {
		t.Errorf("expected declared validate_msg, got %q", details[0].Message)
	}
}

func TestObjectify_CoercesCheckboxAndNumbers(t *testing.T) {
	ctx, st, reg := setupDemo(t)
	bound := personBound(t, ctx, st, reg, "new")

	graph, details := bound.Objectify(map[string]any{
		"name":       "Peter",
		"first_name": "Smith",
		"age":        "42",
		"validated":  "on",
	})
	if len(details) != 0 {
		t.Fatalf("unexpected validation errors: %v", details)
	}
	if graph.Fields["age"] != int64(42) {
		t.Errorf("expected age int64(42), got %T %v", graph.Fields["age"], graph.Fields["age"])
	}
	if graph.Fields["validated"] != true {
		t.Errorf("expected validated true, got %v", graph.Fields["validated"])
	}
}

func TestObjectify_RejectsInvalidGeometry(t *testing.T) {
	ctx, st, reg := setupDemo(t)
	bound := personBound(t, ctx, st, reg, "new")

	_, details := bound.Objectify(map[string]any{
		"name":       "Peter",
		"first_name": "Smith",
		"position":   "{not geojson",
	})
	if !hasDetail(details, "position", "type") {
		t.Fatalf("expected type error for position, got %v", details)
	}
}

func TestObjectify_UniqueFieldRejectsExistingValue(t *testing.T) {
	ctx, st, reg := setupDemo(t)
	seedTags(t, ctx, st, "friend")

	tpl, err := New(reg.GetEntity("demo", "tag"), reg)
	if err != nil {
		t.Fatalf("build tag template: %v", err)
	}
	bound := tpl.Bind(ReqContext{Ctx: ctx, Store: st, ID: "new"})

	_, details := bound.Objectify(map[string]any{"label": "friend"})
	if !hasDetail(details, "label", "unique") {
		t.Fatalf("expected unique error for label, got %v", details)
	}

	// editing the row itself must not conflict with its own value
	pb := st.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, st.DB, "SELECT id FROM tag WHERE label = "+pb.Add("friend"), pb.Params()...)
	if err != nil {
		t.Fatalf("fetch tag: %v", err)
	}
	boundEdit := tpl.Bind(ReqContext{Ctx: ctx, Store: st, ID: toIDString(row["id"])})
	_, details = boundEdit.Objectify(map[string]any{"label": "friend"})
	if len(details) != 0 {
		t.Fatalf("self-edit must pass uniqueness, got %v", details)
	}
}

func TestObjectify_ManyToManyReportsAllMissingKeys(t *testing.T) {
	ctx, st, reg := setupDemo(t)
	ids := seedTags(t, ctx, st, "friend")
	bound := personBound(t, ctx, st, reg, "new")

	_, details := bound.Objectify(map[string]any{
		"name":       "Peter",
		"first_name": "Smith",
		"tags":       []any{float64(ids[0]), float64(97), float64(98)},
	})
	if len(details) != 1 {
		t.Fatalf("expected exactly one relation error, got %v", details)
	}
	d := details[0]
	if d.Field != "tags" || d.Rule != "exists" {
		t.Fatalf("unexpected detail: %+v", d)
	}
	if !strings.Contains(d.Message, "97") || !strings.Contains(d.Message, "98") {
		t.Errorf("message must name every missing key, got %q", d.Message)
	}
	if strings.Contains(d.Message, toIDString(ids[0])) {
		t.Errorf("message must not name existing keys, got %q", d.Message)
	}
}

func TestObjectify_ChildRowsValidated(t *testing.T) {
	ctx, st, reg := setupDemo(t)
	bound := personBound(t, ctx, st, reg, "new")

	_, details := bound.Objectify(map[string]any{
		"name":       "Peter",
		"first_name": "Smith",
		"phones":     []any{map[string]any{}},
	})
	if !hasDetail(details, "phones[0].number", "required") {
		t.Fatalf("expected required error for phone number, got %v", details)
	}
}
