package gptag

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// referenceTemplate is the locator's reference: a rendering of the
// data-independent marker cells with its corner features precomputed. Built
// once per Detector and immutable afterwards, so concurrent Detect calls can
// share it.
type referenceTemplate struct {
	lum      *mat.Dense
	features []featurePoint
	// corners is the outer grid boundary, clockwise from top-left, in
	// template pixels.
	corners [4]r2.Point
}

func newReferenceTemplate(cfg LocatorConfig) *referenceTemplate {
	img := RenderTemplate(cfg.TemplateCellPx)
	lum := frameToLuminance(img)
	side := float64(GridCells * cfg.TemplateCellPx)
	return &referenceTemplate{
		lum:      lum,
		features: detectFeatures(lum, cfg),
		corners: [4]r2.Point{
			{X: 0, Y: 0},
			{X: side, Y: 0},
			{X: side, Y: side},
			{X: 0, Y: side},
		},
	}
}

// locate finds tag-like regions in a frame by matching frame features against
// the reference template and fitting a robust homography. At most one
// candidate is returned per call; an empty slice means no region had enough
// inlier support.
func locate(frameLum *mat.Dense, tmpl *referenceTemplate, cfg LocatorConfig) []DetectionCandidate {
	frameFeatures := detectFeatures(frameLum, cfg)
	pairs := matchFeatures(tmpl.features, frameFeatures, cfg.MatchRatio)
	if len(pairs) < cfg.MinInliers {
		return nil
	}

	src := make([]r2.Point, len(pairs))
	dst := make([]r2.Point, len(pairs))
	for i, pr := range pairs {
		src[i] = tmpl.features[pr[0]].pt
		dst[i] = frameFeatures[pr[1]].pt
	}

	h, inliers, err := ransacHomography(src, dst, cfg)
	if err != nil {
		return nil
	}

	var corners [4]r2.Point
	for i, c := range tmpl.corners {
		corners[i] = applyHomography(h, c)
	}
	if !convexQuad(corners) {
		return nil
	}

	return []DetectionCandidate{{
		Corners:    corners,
		Homography: h,
		Score:      float64(len(inliers)) / float64(len(pairs)),
	}}
}

// convexQuad reports whether the corner quadrilateral is convex and
// consistently wound, rejecting homographies that fold the template.
func convexQuad(c [4]r2.Point) bool {
	sign := 0.0
	for i := 0; i < 4; i++ {
		a := c[(i+1)%4].Sub(c[i])
		b := c[(i+2)%4].Sub(c[(i+1)%4])
		cross := a.X*b.Y - a.Y*b.X
		if cross == 0 {
			return false
		}
		if sign == 0 {
			sign = cross
		} else if sign*cross < 0 {
			return false
		}
	}
	return true
}
