package domain

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Nominal rendered map size used to turn a center and zoom into bounds. The
// embedding iframes are close to this size.
const (
	ViewportWidthPx  = 1024
	ViewportHeightPx = 768

	MinZoom = 2
	MaxZoom = 16

	earthCircumference = 2 * math.Pi * 6378137.0
	tileSize           = 256
)

// Viewport is the visible map extent.
type Viewport struct {
	Center   orb.Point // lon, lat
	Zoom     float64
	Bounds   orb.Bound
	Animated bool
}

// ViewportAt returns the viewport centered on center at the given zoom.
func ViewportAt(center orb.Point, zoom float64) Viewport {
	zoom = clampZoom(zoom)
	mpp := metersPerPixel(zoom)
	c := project.WGS84.ToMercator(center)
	halfW := ViewportWidthPx / 2 * mpp
	halfH := ViewportHeightPx / 2 * mpp

	lo := project.Mercator.ToWGS84(orb.Point{c[0] - halfW, c[1] - halfH})
	hi := project.Mercator.ToWGS84(orb.Point{c[0] + halfW, c[1] + halfH})
	return Viewport{
		Center: center,
		Zoom:   zoom,
		Bounds: orb.Bound{Min: lo, Max: hi},
	}
}

// ViewportFor returns the highest whole zoom viewport containing b.
func ViewportFor(b orb.Bound) Viewport {
	lo := project.WGS84.ToMercator(b.Min)
	hi := project.WGS84.ToMercator(b.Max)
	center := project.Mercator.ToWGS84(orb.Point{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2})

	width := hi[0] - lo[0]
	height := hi[1] - lo[1]
	if width <= 0 && height <= 0 {
		return ViewportAt(center, MaxZoom)
	}

	zoom := float64(MaxZoom)
	if width > 0 {
		zoom = math.Min(zoom, math.Log2(ViewportWidthPx*earthCircumference/(tileSize*width)))
	}
	if height > 0 {
		zoom = math.Min(zoom, math.Log2(ViewportHeightPx*earthCircumference/(tileSize*height)))
	}
	return ViewportAt(center, math.Floor(zoom))
}

// boundsEpsilon absorbs float64 error in edge differences, so a move of
// exactly tol (48.01-48 is 0.00999...) counts as outside the tolerance.
const boundsEpsilon = 1e-9

// BoundsWithin reports whether every edge of a and b differs by less than tol degrees.
func BoundsWithin(a, b orb.Bound, tol float64) bool {
	limit := tol - boundsEpsilon
	return math.Abs(a.Left()-b.Left()) < limit &&
		math.Abs(a.Right()-b.Right()) < limit &&
		math.Abs(a.Bottom()-b.Bottom()) < limit &&
		math.Abs(a.Top()-b.Top()) < limit
}

func metersPerPixel(zoom float64) float64 {
	return earthCircumference / (tileSize * math.Exp2(zoom))
}

func clampZoom(z float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}
