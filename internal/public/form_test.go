package public

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/config"
	"geoform-backend/internal/metadata"
	"geoform-backend/internal/sample"
	"geoform-backend/internal/store"
)

type testEnv struct {
	ctx    context.Context
	st     *store.Store
	app    *fiber.App
	cookie string // session cookie carried between requests
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

	ctl, err := NewController(st, reg, config.CaptchaConfig{})
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

	pub := app.Group("/:app/:table", resolver)
	pub.Get("/form", ctl.Form)
	pub.Post("/form", ctl.Submit)
	pub.Get("/confirm", ctl.Confirm)
	pub.Post("/confirm", ctl.ConfirmSubmit)
	pub.Get("/view/:hash", ctl.View)

	return &testEnv{ctx: ctx, st: st, app: app}
}

// do runs a request against the test app, carrying the session cookie
// across calls the way a browser would.
func (env *testEnv) do(t *testing.T, method, target string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if env.cookie != "" {
		req.Header.Set("Cookie", env.cookie)
	}
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	if sc := resp.Header.Get("Set-Cookie"); sc != "" {
		env.cookie = strings.SplitN(sc, ";", 2)[0]
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

func validPerson() map[string]any {
	return map[string]any{
		"name":       "Tailor",
		"first_name": "Jane",
		"email":      "jane@example.com",
		"age":        30,
	}
}

func TestForm_RendersEmptyForm(t *testing.T) {
	env := setupEnv(t)
	resp := env.do(t, "GET", "/demo/person/form", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	form := decodeJSON[FormResponse](t, resp)
	if form.Form == nil || len(form.Form.Fields) == 0 {
		t.Fatalf("expected field descriptions, got %+v", form)
	}
	if form.Form.ID != "" {
		t.Errorf("public form should be transient, got id %q", form.Form.ID)
	}
}

func TestSubmit_ValidationErrorsRerenderForm(t *testing.T) {
	env := setupEnv(t)
	resp := env.do(t, "POST", "/demo/person/form", map[string]any{"email": "not-an-email"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	form := decodeJSON[FormResponse](t, resp)
	if len(form.Form.Errors) == 0 {
		t.Fatalf("expected validation errors")
	}

	row, err := store.QueryRow(env.ctx, env.st.DB, "SELECT COUNT(*) AS n FROM person")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if row["n"].(int64) != 0 {
		t.Errorf("invalid submission must not be persisted")
	}
}

func TestSubmit_ParksSubmissionAndRedirectsToConfirm(t *testing.T) {
	env := setupEnv(t)
	resp := env.do(t, "POST", "/demo/person/form", validPerson())
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "/demo/person/confirm?submission=") {
		t.Fatalf("redirect = %q", loc)
	}

	// nothing persisted before confirmation
	row, err := store.QueryRow(env.ctx, env.st.DB, "SELECT COUNT(*) AS n FROM person")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if row["n"].(int64) != 0 {
		t.Errorf("submission persisted before confirmation")
	}
}

func TestConfirm_UnknownSubmissionReturns400(t *testing.T) {
	env := setupEnv(t)
	resp := env.do(t, "GET", "/demo/person/confirm?submission=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConfirmFlow_PersistsRecordAndServesHashView(t *testing.T) {
	env := setupEnv(t)

	resp := env.do(t, "POST", "/demo/person/form", validPerson())
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("submit status = %d, want 302", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("parse redirect %q: %v", loc, err)
	}
	submission := u.Query().Get("submission")
	if submission == "" {
		t.Fatalf("no submission id in redirect %q", loc)
	}

	// confirmation page restores the parked values
	resp = env.do(t, "GET", loc, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d, want 200", resp.StatusCode)
	}
	confirm := decodeJSON[FormResponse](t, resp)
	if confirm.Submission != submission {
		t.Errorf("submission id = %q, want %q", confirm.Submission, submission)
	}
	if confirm.Form.Values["name"] != "Tailor" {
		t.Errorf("parked values not restored: %v", confirm.Form.Values)
	}
	if confirm.CaptchaRequired {
		t.Errorf("captcha should be off in this configuration")
	}

	// final step persists and redirects to the hash view
	resp = env.do(t, "POST", loc, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("confirm submit status = %d, want 302", resp.StatusCode)
	}
	viewURL := resp.Header.Get("Location")
	if !strings.HasPrefix(viewURL, "/demo/person/view/") {
		t.Fatalf("view redirect = %q", viewURL)
	}
	hash := strings.TrimPrefix(viewURL, "/demo/person/view/")
	if len(hash) != 32 || strings.Contains(hash, "-") {
		t.Errorf("hash %q should be a 32 character identifier", hash)
	}

	resp = env.do(t, "GET", viewURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("view status = %d, want 200", resp.StatusCode)
	}
	view := decodeJSON[FormResponse](t, resp)
	if view.Form.Values["name"] != "Tailor" || view.Form.Values["first_name"] != "Jane" {
		t.Errorf("view values = %v", view.Form.Values)
	}

	// the submission id is single-use
	resp = env.do(t, "POST", loc, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("replayed submission: status = %d, want 400", resp.StatusCode)
	}
}

func TestView_UnknownHashReturns404(t *testing.T) {
	env := setupEnv(t)
	resp := env.do(t, "GET", "/demo/person/view/deadbeefdeadbeefdeadbeefdeadbeef", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
