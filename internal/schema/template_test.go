package schema

import (
	"strings"
	"testing"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
)

func TestAddValidator_ComposesWithBuiltinChecks(t *testing.T) {
	ctx, st, reg := setupDemo(t)

	tpl, err := New(reg.GetEntity("demo", "person"), reg)
	if err != nil {
		t.Fatalf("build template: %v", err)
	}
	err = tpl.AddValidator("name", func(rc ReqContext, f *metadata.Field, value any) *apperr.ErrorDetail {
		if s, _ := value.(string); strings.HasPrefix(s, "X") {
			return &apperr.ErrorDetail{Field: f.Name, Rule: "custom", Message: "Names starting with X are reserved"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("add validator: %v", err)
	}

	bound := tpl.Bind(ReqContext{Ctx: ctx, Store: st, ID: "new"})
	_, details := bound.Objectify(map[string]any{
		"name":       "Xavier",
		"first_name": "A",
	})
	if !hasDetail(details, "name", "custom") {
		t.Errorf("custom validator did not fire: %v", details)
	}

	_, details = bound.Objectify(map[string]any{
		"name":       "Yvette",
		"first_name": "A",
	})
	if hasDetail(details, "name", "custom") {
		t.Errorf("custom validator fired on a valid value: %v", details)
	}
}

func TestAddValidator_UnknownFieldFails(t *testing.T) {
	_, _, reg := setupDemo(t)
	tpl, err := New(reg.GetEntity("demo", "person"), reg)
	if err != nil {
		t.Fatalf("build template: %v", err)
	}
	if err := tpl.AddValidator("nope", nil); err == nil {
		t.Error("expected error for unknown field")
	}
	if err := tpl.AddUniqueValidator("nope"); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestAddUniqueValidator_PromotesFieldToUnique(t *testing.T) {
	ctx, st, reg := setupDemo(t)

	tpl, err := New(reg.GetEntity("demo", "person"), reg)
	if err != nil {
		t.Fatalf("build template: %v", err)
	}
	if err := tpl.AddUniqueValidator("email"); err != nil {
		t.Fatalf("add unique validator: %v", err)
	}

	bound := tpl.Bind(ReqContext{Ctx: ctx, Store: st, ID: "new"})
	graph, details := bound.Objectify(map[string]any{
		"name":       "First",
		"first_name": "A",
		"email":      "taken@example.com",
	})
	if len(details) > 0 {
		t.Fatalf("unexpected errors: %v", details)
	}
	if _, err := bound.Persist(graph); err != nil {
		t.Fatalf("persist: %v", err)
	}

	bound = tpl.Bind(ReqContext{Ctx: ctx, Store: st, ID: "new"})
	_, details = bound.Objectify(map[string]any{
		"name":       "Second",
		"first_name": "B",
		"email":      "taken@example.com",
	})
	if !hasDetail(details, "email", "unique") {
		t.Errorf("expected uniqueness failure on email: %v", details)
	}
}
