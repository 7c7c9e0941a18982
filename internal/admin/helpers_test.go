package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/sample"
	"geoform-backend/internal/store"
)

type testEnv struct {
	ctx context.Context
	st  *store.Store
	reg *metadata.Registry
	ctl *Controller
	app *fiber.App
}

func setupEnv(t *testing.T) *testEnv {
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

	ctl, err := NewController(st, reg)
	if err != nil {
		t.Fatalf("build controller: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
		}
		return c.Status(500).JSON(apperr.ErrorResponse{
			Error: &apperr.AppError{Code: "INTERNAL_ERROR", Message: err.Error()},
		})
	}})

	resolver := func(c *fiber.Ctx) error {
		appName := c.Params("app")
		if reg.GetApplication(appName) == nil {
			return apperr.UnknownApplication(appName)
		}
		entity := reg.GetEntity(appName, c.Params("table"))
		if entity == nil {
			return apperr.UnknownTable(appName, c.Params("table"))
		}
		c.Locals("app", appName)
		c.Locals("entity", entity)
		return c.Next()
	}

	adm := app.Group("/admin/:app/:table", resolver)
	adm.Get("/", ctl.Index)
	adm.Get("/grid.json", ctl.Grid)
	adm.Post("/grid.json", ctl.Grid)
	adm.Get("/geojson", ctl.GeoJSON)
	adm.Get("/:id/duplicate", ctl.Duplicate)
	adm.Get("/:id", ctl.Edit)
	adm.Post("/:id", ctl.Save)
	adm.Delete("/:id", ctl.Delete)

	return &testEnv{ctx: ctx, st: st, reg: reg, ctl: ctl, app: app}
}

func (env *testEnv) seedPerson(t *testing.T, name, firstName, email string) string {
	t.Helper()
	id := uuid.NewString()
	pb := env.st.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO person (id, name, first_name, email) VALUES (%s, %s, %s, %s)",
		pb.Add(id), pb.Add(name), pb.Add(firstName), pb.Add(email))
	if _, err := store.Exec(env.ctx, env.st.DB, sqlStr, pb.Params()...); err != nil {
		t.Fatalf("seed person: %v", err)
	}
	return id
}

func (env *testEnv) seedTag(t *testing.T, label string) int64 {
	t.Helper()
	pb := env.st.Dialect.NewParamBuilder()
	row, err := store.QueryRow(env.ctx, env.st.DB, fmt.Sprintf(
		"INSERT INTO tag (label) VALUES (%s) RETURNING id", pb.Add(label)), pb.Params()...)
	if err != nil {
		t.Fatalf("seed tag: %v", err)
	}
	return row["id"].(int64)
}

func (env *testEnv) seedPhone(t *testing.T, personID, number string) int64 {
	t.Helper()
	pb := env.st.Dialect.NewParamBuilder()
	row, err := store.QueryRow(env.ctx, env.st.DB, fmt.Sprintf(
		"INSERT INTO phone (number, person_id) VALUES (%s, %s) RETURNING id",
		pb.Add(number), pb.Add(personID)), pb.Params()...)
	if err != nil {
		t.Fatalf("seed phone: %v", err)
	}
	return row["id"].(int64)
}

func (env *testEnv) linkTag(t *testing.T, personID string, tagID int64) {
	t.Helper()
	pb := env.st.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO person_tag (person_id, tag_id) VALUES (%s, %s)",
		pb.Add(personID), pb.Add(tagID))
	if _, err := store.Exec(env.ctx, env.st.DB, sqlStr, pb.Params()...); err != nil {
		t.Fatalf("link tag: %v", err)
	}
}

func (env *testEnv) get(t *testing.T, url string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("GET", url, nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func (env *testEnv) delete(t *testing.T, url string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("DELETE", url, nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

func (env *testEnv) postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, _ := http.NewRequest("POST", url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}
