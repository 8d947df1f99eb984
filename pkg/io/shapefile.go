package io

import (
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/meazyme/v-allo/pkg/errors"
	"github.com/meazyme/v-allo/pkg/spatial"
)

func readNodesShapefile(path string, opts NodeOptions) ([]spatial.Node, error) {
	if opts.IDField == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "shapefile nodes need an id field")
	}
	crs, err := shapefileCRS(path, opts.CRS)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoder(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var nodes []spatial.Node
	seen := make(map[string]bool)
	for row := 0; ; row++ {
		g, fields, more := dec.DecodeRowFields(opts.IDField)
		if !more {
			break
		}
		id, err := shapefileID(fields, opts.IDField, row)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate node id %q", id)
		}
		seen[id] = true

		p, ok := g.(geom.Point)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "node %q: geometry is %T, want a point", id, g)
		}
		nodes = append(nodes, spatial.Node{ID: id, Point: p, CRS: crs})
	}
	if err := dec.Error(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode %s", path)
	}
	return nodes, nil
}

func readRegionsShapefile(path string, opts RegionOptions) ([]spatial.Region, error) {
	if opts.IDField == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "shapefile regions need an id field")
	}
	crs, err := shapefileCRS(path, opts.CRS)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoder(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	fields := []string{opts.IDField}
	if opts.DemandField != "" {
		fields = append(fields, opts.DemandField)
	}

	m := newRegionMerger(crs)
	for row := 0; ; row++ {
		g, attrs, more := dec.DecodeRowFields(fields...)
		if !more {
			break
		}
		id, err := shapefileID(attrs, opts.IDField, row)
		if err != nil {
			return nil, err
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "region %q: geometry is %T, want a polygon", id, g)
		}

		var demand *float64
		if opts.DemandField != "" {
			s := trimField(attrs[opts.DemandField])
			if s != "" {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "region %q attribute %q", id, opts.DemandField)
				}
				demand = &v
			}
		}
		if err := m.add(id, poly, demand); err != nil {
			return nil, err
		}
	}
	if err := dec.Error(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode %s", path)
	}
	return m.regions(), nil
}

func newDecoder(path string) (*shp.Decoder, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "%s does not exist", path)
	}
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "open shapefile %s", path)
	}
	return dec, nil
}

// shapefileCRS returns override if set, else the WKT text of the sibling
// .prj file.
func shapefileCRS(path, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	if strings.HasSuffix(path, ".SHP") {
		prj = strings.TrimSuffix(path, ".SHP") + ".PRJ"
	}
	data, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return "", errors.New(errors.ErrCodeProjection, "%s has no .prj file; pass a CRS explicitly", path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func shapefileID(fields map[string]string, field string, row int) (string, error) {
	raw, ok := fields[field]
	if !ok {
		return "", errors.New(errors.ErrCodeInvalidInput, "shapefile has no %q attribute", field)
	}
	id := trimField(raw)
	if id == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "row %d has an empty %q attribute", row, field)
	}
	if err := errors.ValidateIdentifier("feature", id); err != nil {
		return "", err
	}
	return id, nil
}

// trimField strips dBase padding and null markers.
func trimField(s string) string {
	return strings.Trim(s, "\x00* ")
}
