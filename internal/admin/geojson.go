package admin

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/store"
	"geoform-backend/internal/widget"
)

// GeoJSON exports all records of a geometry-bearing entity as a feature
// collection. The srid query parameter selects the output projection,
// defaulting to WGS84.
func (ctl *Controller) GeoJSON(c *fiber.Ctx) error {
	entity := entityFromCtx(c)

	geomField := entity.GeometryField()
	if geomField == nil {
		return respondError(c, apperr.BadRequest(
			fmt.Sprintf("Table %s has no geometry column", entity.Name)))
	}

	outSRID := widget.SRIDWGS84
	if raw := c.Query("srid"); raw != "" {
		srid, err := strconv.Atoi(raw)
		if err != nil {
			return respondError(c, apperr.BadRequest("Invalid srid parameter"))
		}
		if srid != widget.SRIDWGS84 && srid != widget.SRIDMercator {
			return respondError(c, apperr.BadRequest(
				fmt.Sprintf("Unsupported output SRID %d", srid)))
		}
		outSRID = srid
	}

	listFields := ListFieldsFor(entity)
	sqlStr := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(entity.FieldNames(), ", "), entity.Table, entity.PrimaryKey.Field)
	rows, err := store.QueryRows(c.Context(), ctl.store.DB, sqlStr)
	if err != nil {
		log.Printf("ERROR: geojson %s: %v", entity.Name, err)
		return respondError(c, apperr.Database())
	}

	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		raw, _ := row[geomField.Name].(string)
		if raw == "" {
			continue
		}
		g, err := widget.DecodeGeoJSON(raw, geomField.SRID, outSRID)
		if err != nil {
			log.Printf("WARN: geojson %s/%v: %v",
				entity.Name, row[entity.PrimaryKey.Field], err)
			continue
		}
		feature := geojson.NewFeature(g)
		feature.ID = row[entity.PrimaryKey.Field]
		for _, lf := range listFields {
			if lf.Key == geomField.Name {
				continue
			}
			feature.Properties[lf.Key] = row[lf.Key]
		}
		fc.Append(feature)
	}

	return c.JSON(fc)
}
