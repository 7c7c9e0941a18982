package widget

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

const (
	SRIDWGS84    = 4326
	SRIDMercator = 3857
)

// DecodeGeoJSON parses a GeoJSON geometry string as posted by the map
// widget and reprojects it from the widget SRID into the storage SRID.
func DecodeGeoJSON(raw string, fromSRID, toSRID int) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	return Reproject(g.Geometry(), fromSRID, toSRID)
}

// EncodeGeoJSON reprojects a geometry from the storage SRID into the target
// SRID and serializes it as GeoJSON.
func EncodeGeoJSON(g orb.Geometry, fromSRID, toSRID int) (string, error) {
	projected, err := Reproject(g, fromSRID, toSRID)
	if err != nil {
		return "", err
	}
	data, err := geojson.NewGeometry(projected).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal GeoJSON: %w", err)
	}
	return string(data), nil
}

// Reproject transforms a geometry between the two supported spatial
// reference systems, WGS84 (4326) and web mercator (3857).
func Reproject(g orb.Geometry, fromSRID, toSRID int) (orb.Geometry, error) {
	if fromSRID == 0 {
		fromSRID = SRIDWGS84
	}
	if toSRID == 0 {
		toSRID = SRIDWGS84
	}
	if fromSRID == toSRID {
		return g, nil
	}
	switch {
	case fromSRID == SRIDWGS84 && toSRID == SRIDMercator:
		return project.Geometry(orb.Clone(g), project.WGS84.ToMercator), nil
	case fromSRID == SRIDMercator && toSRID == SRIDWGS84:
		return project.Geometry(orb.Clone(g), project.Mercator.ToWGS84), nil
	default:
		return nil, fmt.Errorf("unsupported reprojection %d -> %d", fromSRID, toSRID)
	}
}
