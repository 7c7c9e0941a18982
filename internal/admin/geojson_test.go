package admin

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"geoform-backend/internal/store"
)

func seedPersonAt(t *testing.T, env *testEnv, name, position string) string {
	t.Helper()
	id := uuid.NewString()
	pb := env.st.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO person (id, name, first_name, position) VALUES (%s, %s, %s, %s)",
		pb.Add(id), pb.Add(name), pb.Add("X"), pb.Add(position))
	if _, err := store.Exec(env.ctx, env.st.DB, sqlStr, pb.Params()...); err != nil {
		t.Fatalf("seed person: %v", err)
	}
	return id
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         any            `json:"id"`
		Geometry   map[string]any `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func TestGeoJSON_ExportsGeometryBearingRows(t *testing.T) {
	env := setupEnv(t)

	withPos := seedPersonAt(t, env, "Located", `{"type":"Point","coordinates":[6.6,46.5]}`)
	env.seedPerson(t, "Nowhere", "Y", "y@example.com") // no geometry, skipped

	resp := env.get(t, "/admin/demo/person/geojson")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	fc := decodeJSON[featureCollection](t, resp)

	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q", fc.Type)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("feature count = %d, want 1", len(fc.Features))
	}
	f := fc.Features[0]
	if f.ID != withPos {
		t.Errorf("feature id = %v, want %s", f.ID, withPos)
	}
	if f.Geometry["type"] != "Point" {
		t.Errorf("geometry = %v", f.Geometry)
	}
	if f.Properties["name"] != "Located" {
		t.Errorf("properties = %v", f.Properties)
	}
	if _, ok := f.Properties["position"]; ok {
		t.Errorf("geometry column should not appear in properties")
	}
}

func TestGeoJSON_ReprojectsOnRequest(t *testing.T) {
	env := setupEnv(t)
	seedPersonAt(t, env, "Located", `{"type":"Point","coordinates":[6.6,46.5]}`)

	resp := env.get(t, "/admin/demo/person/geojson?srid=3857")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	fc := decodeJSON[featureCollection](t, resp)
	if len(fc.Features) != 1 {
		t.Fatalf("feature count = %d, want 1", len(fc.Features))
	}
	coords := fc.Features[0].Geometry["coordinates"].([]any)
	// web mercator x for 6.6 degrees east is around 734,000 meters
	if x := coords[0].(float64); x < 700000 || x > 800000 {
		t.Errorf("x = %v, expected web mercator meters", x)
	}
}

func TestGeoJSON_BadSRIDReturns400(t *testing.T) {
	env := setupEnv(t)
	for _, srid := range []string{"abc", "2056"} {
		resp := env.get(t, "/admin/demo/person/geojson?srid="+srid)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("srid=%s: status = %d, want 400", srid, resp.StatusCode)
		}
	}
}

func TestGeoJSON_EntityWithoutGeometryReturns400(t *testing.T) {
	env := setupEnv(t)
	resp := env.get(t, "/admin/demo/tag/geojson")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
