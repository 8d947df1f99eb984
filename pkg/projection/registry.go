package projection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meazyme/v-allo/pkg/errors"
)

// Entry describes a built-in EPSG code.
type Entry struct {
	Code   int
	Name   string
	Def    string // PROJ.4 definition
	Planar bool
}

// registry holds the EPSG codes that resolve without a WKT or PROJ.4 string.
var registry = map[int]Entry{
	4326:  {4326, "WGS 84", "+proj=longlat +datum=WGS84 +no_defs", false},
	4258:  {4258, "ETRS89", "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs", false},
	3035:  {3035, "ETRS89-extended / LAEA Europe", "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs", true},
	3857:  {3857, "WGS 84 / Pseudo-Mercator", "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs", true},
	25832: {25832, "ETRS89 / UTM zone 32N", "+proj=utm +zone=32 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs", true},
	25833: {25833, "ETRS89 / UTM zone 33N", "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs", true},
	32632: {32632, "WGS 84 / UTM zone 32N", "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs", true},
	32633: {32633, "WGS 84 / UTM zone 33N", "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs", true},
	2154:  {2154, "RGF93 / Lambert-93", "+proj=lcc +lat_1=49 +lat_2=44 +lat_0=46.5 +lon_0=3 +x_0=700000 +y_0=6600000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs", true},
	5070:  {5070, "NAD83 / Conus Albers", "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +datum=NAD83 +units=m +no_defs", true},
	27700: {27700, "OSGB 1936 / British National Grid", "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs", true},
}

// Registry returns the built-in EPSG entries sorted by code.
func Registry() []Entry {
	out := make([]Entry, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Lookup returns the registry entry for an EPSG code.
func Lookup(code int) (Entry, bool) {
	e, ok := registry[code]
	return e, ok
}

// Resolve turns a CRS identifier into a definition that proj.Parse accepts.
//
// Accepted forms:
//   - "EPSG:3035", "epsg:3035", "3035"
//   - "urn:ogc:def:crs:EPSG::3035"
//   - "urn:ogc:def:crs:OGC:1.3:CRS84" (longitude/latitude WGS 84)
//   - PROJ.4 strings starting with "+proj="
//   - WKT, as found in shapefile .prj files
func Resolve(crs string) (string, error) {
	s := strings.TrimSpace(crs)
	if s == "" {
		return "", errors.New(errors.ErrCodeProjection, "no CRS declared")
	}

	switch {
	case strings.HasPrefix(s, "+"):
		return s, nil
	case isWKT(s):
		return s, nil
	}

	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CRS84") {
		return registry[4326].Def, nil
	}

	codeStr := upper
	switch {
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:"):
		codeStr = upper[strings.LastIndex(upper, ":")+1:]
	case strings.HasPrefix(upper, "EPSG:"):
		codeStr = strings.TrimPrefix(upper, "EPSG:")
	}

	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return "", errors.New(errors.ErrCodeProjection, "unrecognized CRS %q", crs)
	}
	e, ok := registry[code]
	if !ok {
		return "", errors.New(errors.ErrCodeProjection, "EPSG:%d is not in the built-in registry; pass a PROJ.4 or WKT definition instead", code)
	}
	return e.Def, nil
}

// Canonical returns the "EPSG:<code>" form of a registry code.
func Canonical(code int) string {
	return fmt.Sprintf("EPSG:%d", code)
}

func isWKT(s string) bool {
	for _, prefix := range []string{"PROJCS[", "GEOGCS[", "PROJCRS[", "GEOGCRS[", "GEODCRS["} {
		if strings.HasPrefix(strings.ToUpper(s), prefix) {
			return true
		}
	}
	return false
}
