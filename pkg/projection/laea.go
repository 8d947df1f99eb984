package projection

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom/proj"

	"github.com/meazyme/v-allo/pkg/errors"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// isLAEA reports whether sr is a Lambert azimuthal equal-area projection,
// named "laea" in PROJ.4 strings and Lambert_Azimuthal_Equal_Area in WKT.
// The proj package has no transformer for it, so this package supplies one.
func isLAEA(sr *proj.SR) bool {
	switch strings.ToLower(sr.Name) {
	case "laea", "lambert_azimuthal_equal_area":
		return true
	}
	return false
}

// lambertAzimuthal returns the ellipsoidal Lambert azimuthal equal-area
// transforms of sr (EPSG method 9820, oblique and equatorial aspects).
// Forward maps radians to metres; inverse maps metres to radians.
func lambertAzimuthal(sr *proj.SR) (forward, inverse proj.Transformer, err error) {
	a, es := sr.A, sr.Es
	if math.IsNaN(a) || a <= 0 || math.IsNaN(es) {
		return nil, nil, fmt.Errorf("laea: no ellipsoid")
	}
	lat0 := orZero(sr.Lat0)
	lon0 := sr.Long0
	if math.IsNaN(lon0) {
		lon0 = orZero(sr.LongC)
	}
	x0, y0 := orZero(sr.X0), orZero(sr.Y0)

	e := math.Sqrt(es)
	q := func(sinPhi float64) float64 {
		if e < 1e-10 {
			return 2 * sinPhi
		}
		return (1 - es) * (sinPhi/(1-es*sinPhi*sinPhi) - math.Log((1-e*sinPhi)/(1+e*sinPhi))/(2*e))
	}
	qp := q(1)
	rq := a * math.Sqrt(qp/2)
	beta1 := math.Asin(q(math.Sin(lat0)) / qp)
	sinB1, cosB1 := math.Sincos(beta1)
	if math.Abs(cosB1) < 1e-10 {
		return nil, nil, fmt.Errorf("laea: polar aspect is not supported")
	}
	m1 := math.Cos(lat0) / math.Sqrt(1-es*math.Sin(lat0)*math.Sin(lat0))
	d := a * m1 / (rq * cosB1)

	// Series coefficients for latitude from authalic latitude.
	e4, e6 := es*es, es*es*es
	c2 := es/3 + 31*e4/180 + 517*e6/5040
	c4 := 23*e4/360 + 251*e6/3780
	c6 := 761 * e6 / 45360

	forward = func(lon, lat float64) (float64, float64, error) {
		ratio := q(math.Sin(lat)) / qp
		beta := math.Asin(math.Max(-1, math.Min(1, ratio)))
		sinB, cosB := math.Sincos(beta)
		sinL, cosL := math.Sincos(adjustLon(lon - lon0))
		den := 1 + sinB1*sinB + cosB1*cosB*cosL
		if den <= 1e-12 {
			return math.NaN(), math.NaN(), fmt.Errorf("laea: point is antipodal to the projection center")
		}
		b := rq * math.Sqrt(2/den)
		x := x0 + b*d*cosB*sinL
		y := y0 + (b/d)*(cosB1*sinB-sinB1*cosB*cosL)
		return x, y, nil
	}

	inverse = func(x, y float64) (float64, float64, error) {
		x -= x0
		y -= y0
		rho := math.Hypot(x/d, d*y)
		if rho < 1e-9 {
			return lon0, lat0, nil
		}
		s := rho / (2 * rq)
		if s > 1 {
			return math.NaN(), math.NaN(), fmt.Errorf("laea: point (%g, %g) is outside the projection", x+x0, y+y0)
		}
		ce := 2 * math.Asin(s)
		sinC, cosC := math.Sincos(ce)
		beta := math.Asin(cosC*sinB1 + d*y*sinC*cosB1/rho)
		lon := lon0 + math.Atan2(x*sinC, d*rho*cosB1*cosC-d*d*y*sinB1*sinC)
		lat := beta + c2*math.Sin(2*beta) + c4*math.Sin(4*beta) + c6*math.Sin(6*beta)
		return adjustLon(lon), lat, nil
	}
	return forward, inverse, nil
}

// geographic returns the longitude/latitude system on the datum of sr.
func geographic(sr *proj.SR) *proj.SR {
	g := *sr
	g.Name = "longlat"
	return &g
}

// checkSupported fails when no transformer exists for sr's projection.
func checkSupported(sr *proj.SR) error {
	var err error
	if isLAEA(sr) {
		_, _, err = lambertAzimuthal(sr)
	} else {
		_, _, err = sr.Transformers()
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeProjection, err, "projection %q is not supported", sr.Name)
	}
	return nil
}

// newTransform builds the src to dst transformer. Lambert azimuthal
// equal-area ends are projected here and the remaining geographic step,
// including any datum shift, is left to the proj package. A nil result
// means src and dst are equal.
func newTransform(src, dst *proj.SR) (proj.Transformer, error) {
	if err := checkSupported(src); err != nil {
		return nil, err
	}
	if err := checkSupported(dst); err != nil {
		return nil, err
	}

	var pre, post proj.Transformer
	from, to := src, dst
	if isLAEA(src) {
		_, inv, err := lambertAzimuthal(src)
		if err != nil {
			return nil, err
		}
		toMeter := src.ToMeter
		pre = func(x, y float64) (float64, float64, error) {
			lon, lat, err := inv(x*toMeter, y*toMeter)
			return lon * rad2deg, lat * rad2deg, err
		}
		from = geographic(src)
	}
	if isLAEA(dst) {
		fwd, _, err := lambertAzimuthal(dst)
		if err != nil {
			return nil, err
		}
		toMeter := dst.ToMeter
		post = func(lon, lat float64) (float64, float64, error) {
			x, y, err := fwd(lon*deg2rad, lat*deg2rad)
			return x / toMeter, y / toMeter, err
		}
		to = geographic(dst)
	}

	mid, err := from.NewTransform(to)
	if err != nil {
		return nil, err
	}
	if pre == nil && post == nil {
		return mid, nil
	}

	steps := make([]proj.Transformer, 0, 3)
	for _, s := range []proj.Transformer{pre, mid, post} {
		if s != nil {
			steps = append(steps, s)
		}
	}
	return func(x, y float64) (float64, float64, error) {
		var err error
		for _, s := range steps {
			if x, y, err = s(x, y); err != nil {
				return math.NaN(), math.NaN(), err
			}
		}
		return x, y, nil
	}, nil
}

func adjustLon(lon float64) float64 {
	if math.Abs(lon) <= math.Pi {
		return lon
	}
	return lon - 2*math.Pi*math.Floor((lon+math.Pi)/(2*math.Pi))
}

func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
