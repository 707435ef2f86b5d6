package service

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/isoplanner/backend/internal/domain"
)

// Export formats and their download names.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shp"

	GeoJSONFilename   = "isochrones.geojson"
	ShapefileFilename = "isochrones.zip"
)

const shapefileBase = "isochrones"

// FeatureCollection builds the standalone export document: one feature per
// result with properties {id, minutes, population, mode}.
func FeatureCollection(results []domain.IsochroneResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range results {
		f := geojson.NewFeature(orb.Clone(r.Geometry))
		f.Properties = geojson.Properties{
			"id":         r.ShortIdentifier,
			"minutes":    r.TimeInMinutes,
			"population": r.Population,
			"mode":       r.ModeLabel,
		}
		fc.Append(f)
	}
	return fc
}

// ExportDocument is one rendered export together with the counts of the
// session state it was rendered from.
type ExportDocument struct {
	Format       string
	Data         []byte
	FeatureCount int
	PointCount   int
}

// ExportGeoJSON serialises the session's results as a FeatureCollection.
func (s *IsochroneSession) ExportGeoJSON() (ExportDocument, error) {
	results, points := s.exportState()
	data, err := FeatureCollection(results).MarshalJSON()
	if err != nil {
		return ExportDocument{}, fmt.Errorf("export: failed to marshal feature collection: %w", err)
	}
	s.metrics.IncExport(FormatGeoJSON)
	return ExportDocument{Format: FormatGeoJSON, Data: data, FeatureCount: len(results), PointCount: points}, nil
}

// ExportShapefile writes the session's results as a zipped polygon shapefile.
func (s *IsochroneSession) ExportShapefile() (ExportDocument, error) {
	results, points := s.exportState()
	data, err := WriteShapefileZip(results)
	if err != nil {
		return ExportDocument{}, err
	}
	s.metrics.IncExport(FormatShapefile)
	return ExportDocument{Format: FormatShapefile, Data: data, FeatureCount: len(results), PointCount: points}, nil
}

// exportState reads results and the live point count under one lock.
func (s *IsochroneSession) exportState() ([]domain.IsochroneResult, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.IsochroneResult(nil), s.results...), len(s.points)
}

// WriteShapefileZip encodes results as .shp/.shx/.dbf files bundled in a zip
// archive. Attribute columns: ID, MINUTES, POP, MODE.
func WriteShapefileZip(results []domain.IsochroneResult) ([]byte, error) {
	dir, err := os.MkdirTemp("", "isochrones-shp-*")
	if err != nil {
		return nil, fmt.Errorf("export: failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := writeShapefile(filepath.Join(dir, shapefileBase+".shp"), results); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		if err := addFileToZip(zw, filepath.Join(dir, shapefileBase+ext)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: failed to finalise zip: %w", err)
	}
	return buf.Bytes(), nil
}

func writeShapefile(path string, results []domain.IsochroneResult) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("export: failed to create shapefile: %w", err)
	}
	defer w.Close()

	fields := []shp.Field{
		shp.StringField("ID", 32),
		shp.NumberField("MINUTES", 10),
		shp.FloatField("POP", 18, 2),
		shp.StringField("MODE", 32),
	}
	if err := w.SetFields(fields); err != nil {
		return fmt.Errorf("export: failed to set shapefile fields: %w", err)
	}

	for _, r := range results {
		parts := shapeParts(r.Geometry)
		if len(parts) == 0 {
			continue
		}
		polygon := shp.Polygon(*shp.NewPolyLine(parts))
		row := int(w.Write(&polygon))
		attrs := []interface{}{r.ShortIdentifier, r.TimeInMinutes, r.Population, r.ModeLabel}
		for field, value := range attrs {
			if err := w.WriteAttribute(row, field, value); err != nil {
				return fmt.Errorf("export: failed to write attribute %d: %w", field, err)
			}
		}
	}
	return nil
}

// shapeParts flattens polygon rings into shapefile parts. Shapefiles expect
// clockwise outer rings and counter-clockwise holes.
func shapeParts(g orb.Geometry) [][]shp.Point {
	var polygons []orb.Polygon
	switch geom := g.(type) {
	case orb.Polygon:
		polygons = []orb.Polygon{geom}
	case orb.MultiPolygon:
		polygons = geom
	default:
		return nil
	}

	var parts [][]shp.Point
	for _, poly := range polygons {
		for i, ring := range poly {
			if len(ring) == 0 {
				continue
			}
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			ring = ring.Clone()
			if ring.Orientation() != want {
				ring.Reverse()
			}
			part := make([]shp.Point, len(ring))
			for j, p := range ring {
				part[j] = shp.Point{X: p.X(), Y: p.Y()}
			}
			parts = append(parts, part)
		}
	}
	return parts
}

func addFileToZip(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("export: failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("export: failed to add %s to zip: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("export: failed to copy %s: %w", filepath.Base(path), err)
	}
	return nil
}
