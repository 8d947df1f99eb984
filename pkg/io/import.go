package io

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
)

// DefaultGeoJSONCRS is assumed for GeoJSON files without a "crs" member.
const DefaultGeoJSONCRS = "EPSG:4326"

// NodeOptions configures node import.
type NodeOptions struct {
	// IDField names the attribute holding the node ID.
	IDField string
	// CRS overrides the CRS declared by the file.
	CRS string
}

// RegionOptions configures region import.
type RegionOptions struct {
	// IDField names the attribute holding the region ID.
	IDField string
	// DemandField, if set, names a numeric attribute copied to Region.Demand.
	DemandField string
	// CRS overrides the CRS declared by the file.
	CRS string
}

// ImportNodes reads point features from a GeoJSON file or shapefile.
func ImportNodes(path string, opts NodeOptions) ([]spatial.Node, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		f, err := open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadNodesGeoJSON(f, opts)
	case ".shp":
		return readNodesShapefile(path, opts)
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported node file type %q", ext)
	}
}

// ImportRegions reads polygon features from a GeoJSON file or shapefile.
func ImportRegions(path string, opts RegionOptions) ([]spatial.Region, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		f, err := open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadRegionsGeoJSON(f, opts)
	case ".shp":
		return readRegionsShapefile(path, opts)
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported region file type %q", ext)
	}
}

// ReadNodesGeoJSON decodes a FeatureCollection of Point features.
func ReadNodesGeoJSON(r io.Reader, opts NodeOptions) ([]spatial.Node, error) {
	fc, crs, err := decodeCollection(r, opts.CRS)
	if err != nil {
		return nil, err
	}

	nodes := make([]spatial.Node, 0, len(fc.Features))
	seen := make(map[string]bool, len(fc.Features))
	for i, f := range fc.Features {
		id, err := featureID(f, opts.IDField, i)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate node id %q", id)
		}
		seen[id] = true

		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "node %q: geometry is %s, want Point", id, geometryType(f.Geometry))
		}
		nodes = append(nodes, spatial.Node{ID: id, Point: geom.Point{X: p[0], Y: p[1]}, CRS: crs})
	}
	return nodes, nil
}

// ReadRegionsGeoJSON decodes a FeatureCollection of Polygon and
// MultiPolygon features.
func ReadRegionsGeoJSON(r io.Reader, opts RegionOptions) ([]spatial.Region, error) {
	fc, crs, err := decodeCollection(r, opts.CRS)
	if err != nil {
		return nil, err
	}

	m := newRegionMerger(crs)
	for i, f := range fc.Features {
		id, err := featureID(f, opts.IDField, i)
		if err != nil {
			return nil, err
		}

		var g geom.Polygonal
		switch v := f.Geometry.(type) {
		case orb.Polygon:
			g = fromOrbPolygon(v)
		case orb.MultiPolygon:
			mp := make(geom.MultiPolygon, len(v))
			for j, p := range v {
				mp[j] = fromOrbPolygon(p)
			}
			g = mp
		default:
			return nil, errors.New(errors.ErrCodeInvalidFormat, "region %q: geometry is %s, want Polygon or MultiPolygon", id, geometryType(f.Geometry))
		}

		var demand *float64
		if opts.DemandField != "" {
			v, ok, err := numberProperty(f.Properties, opts.DemandField)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "region %q", id)
			}
			if ok {
				demand = &v
			}
		}
		if err := m.add(id, g, demand); err != nil {
			return nil, err
		}
	}
	return m.regions(), nil
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "%s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func decodeCollection(r io.Reader, override string) (*geojson.FeatureCollection, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode GeoJSON")
	}
	crs := override
	if crs == "" {
		crs = collectionCRS(fc)
	}
	return fc, crs, nil
}

// collectionCRS reads the legacy "crs" member:
//
//	"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3035"}}
func collectionCRS(fc *geojson.FeatureCollection) string {
	member, ok := fc.ExtraMembers["crs"].(map[string]any)
	if !ok {
		return DefaultGeoJSONCRS
	}
	props, ok := member["properties"].(map[string]any)
	if !ok {
		return DefaultGeoJSONCRS
	}
	if name, ok := props["name"].(string); ok && name != "" {
		return name
	}
	return DefaultGeoJSONCRS
}

func featureID(f *geojson.Feature, field string, index int) (string, error) {
	var raw any
	if field != "" {
		raw = f.Properties[field]
	}
	if raw == nil {
		raw = f.ID
	}
	id := stringify(raw)
	if id == "" {
		if field != "" {
			return "", errors.New(errors.ErrCodeInvalidInput, "feature %d has no %q attribute", index, field)
		}
		return "", errors.New(errors.ErrCodeInvalidInput, "feature %d has no id", index)
	}
	if err := errors.ValidateIdentifier("feature", id); err != nil {
		return "", err
	}
	return id, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// numberProperty returns the numeric value of key. Missing or null
// attributes report ok == false.
func numberProperty(props geojson.Properties, key string) (float64, bool, error) {
	switch v := props[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("attribute %q: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("attribute %q is %T, want a number", key, v)
	}
}

func fromOrbPolygon(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, len(p))
	for i, ring := range p {
		path := make(geom.Path, len(ring))
		for j, pt := range ring {
			path[j] = geom.Point{X: pt[0], Y: pt[1]}
		}
		out[i] = path
	}
	return out
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "empty"
	}
	return g.GeoJSONType()
}

// regionMerger collects region rows and merges rows sharing an ID.
type regionMerger struct {
	crs   string
	order []string
	byID  map[string]*spatial.Region
}

func newRegionMerger(crs string) *regionMerger {
	return &regionMerger{crs: crs, byID: make(map[string]*spatial.Region)}
}

func (m *regionMerger) add(id string, g geom.Polygonal, demand *float64) error {
	r, ok := m.byID[id]
	if !ok {
		m.order = append(m.order, id)
		m.byID[id] = &spatial.Region{ID: id, Geometry: g, CRS: m.crs, Demand: demand}
		return nil
	}

	merged := append(geom.MultiPolygon(nil), r.Geometry.Polygons()...)
	r.Geometry = append(merged, g.Polygons()...)

	switch {
	case demand == nil:
	case r.Demand == nil:
		r.Demand = demand
	case *r.Demand != *demand:
		return errors.New(errors.ErrCodeInvalidInput, "region %q has conflicting demand values %v and %v", id, *r.Demand, *demand)
	}
	return nil
}

func (m *regionMerger) regions() []spatial.Region {
	out := make([]spatial.Region, len(m.order))
	for i, id := range m.order {
		out[i] = *m.byID[id]
	}
	return out
}
