package gptag

import (
	"image"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// minCellContrast is the least luminance separation between the black border
// ring and the white quiet zone for bit sampling to be trusted.
const minCellContrast = 20.0

// Rectify inverse-warps the corner quadrilateral of a frame to the canonical
// square, so cell sampling coordinates are deterministic.
func Rectify(frame image.Image, corners [4]r2.Point, size int) (*RectifiedSample, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}
	return rectifyLum(frameToLuminance(frame), corners, size), nil
}

func rectifyLum(lum *mat.Dense, corners [4]r2.Point, size int) *RectifiedSample {
	s := float64(size)
	canonical := []r2.Point{{X: 0, Y: 0}, {X: s, Y: 0}, {X: s, Y: s}, {X: 0, Y: s}}
	h, err := homographyDLT(canonical, corners[:])
	if err != nil {
		// Degenerate quads are caught earlier by convexQuad; a flat sample
		// here simply fails the structural score downstream.
		return &RectifiedSample{Lum: mat.NewDense(size, size, nil), Size: size}
	}

	out := mat.NewDense(size, size, nil)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := applyHomography(h, r2.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			out.Set(y, x, bilinear(lum, p.X, p.Y))
		}
	}
	return &RectifiedSample{Lum: out, Size: size}
}

// ReadBits samples every grid cell of a rectified tag, resolves the 4-fold
// rotational ambiguity against the structural pattern, and returns the
// payload-region bits in canonical row-major order along with the number of
// clockwise quarter-turns the sampled grid was rotated by.
func ReadBits(s *RectifiedSample, cfg ExtractorConfig) ([]bool, int, error) {
	cellPx := float64(s.Size) / GridCells

	// Mean luminance per cell, sampled on a 5x5 sub-grid around each center.
	var means [GridCells][GridCells]float64
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			cx := (float64(c) + 0.5) * cellPx
			cy := (float64(r) + 0.5) * cellPx
			var sum float64
			for dy := -2; dy <= 2; dy++ {
				for dx := -2; dx <= 2; dx++ {
					sum += bilinear(s.Lum, cx+float64(dx)*cellPx/8, cy+float64(dy)*cellPx/8)
				}
			}
			means[r][c] = sum / 25
		}
	}

	// Adaptive threshold from rotation-invariant anchors: the border ring is
	// black, the quiet zone white, under every rotation hypothesis.
	var blackSum, whiteSum float64
	var blackN, whiteN int
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			switch {
			case layout.kind[r][c] == cellQuiet:
				whiteSum += means[r][c]
				whiteN++
			case r == borderIdxLo || r == borderIdxHi || c == borderIdxLo || c == borderIdxHi:
				blackSum += means[r][c]
				blackN++
			}
		}
	}
	black := blackSum / float64(blackN)
	white := whiteSum / float64(whiteN)
	if white-black < minCellContrast {
		return nil, 0, ErrOrientationAmbiguous
	}
	thresh := (black + white) / 2

	var bits [GridCells][GridCells]bool
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			bits[r][c] = means[r][c] < thresh
		}
	}

	rotation, err := resolveRotation(&bits, cfg)
	if err != nil {
		return nil, 0, err
	}

	payload := make([]bool, len(layout.payloadOrder))
	for i, ref := range layout.payloadOrder {
		rr, rc := rotateCellCW(ref.row, ref.col, rotation)
		payload[i] = bits[rr][rc]
	}
	return payload, rotation, nil
}

// resolveRotation scores the four grid rotations. Rotation discrimination
// uses only the four 5x5 corner blocks (three bullseyes plus the empty
// corner), which are the asymmetric part of the pattern; the winning rotation
// is then re-checked against the full structural pattern.
func resolveRotation(bits *[GridCells][GridCells]bool, cfg ExtractorConfig) (int, error) {
	var scores [4]float64
	for k := 0; k < 4; k++ {
		match, total := 0, 0
		for r := 0; r < GridCells; r++ {
			for c := 0; c < GridCells; c++ {
				if !inCornerBlock(r, c) {
					continue
				}
				rr, rc := rotateCellCW(r, c, k)
				total++
				if bits[rr][rc] == layout.bit[r][c] {
					match++
				}
			}
		}
		scores[k] = float64(match) / float64(total)
	}

	best, second := 0, -1
	for k := 1; k < 4; k++ {
		if scores[k] > scores[best] {
			second = best
			best = k
		} else if second < 0 || scores[k] > scores[second] {
			second = k
		}
	}
	if scores[best]-scores[second] < cfg.MinRotationMargin {
		return 0, ErrOrientationAmbiguous
	}

	// Full structural agreement under the winning rotation.
	match, total := 0, 0
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			if layout.kind[r][c] != cellStructural {
				continue
			}
			rr, rc := rotateCellCW(r, c, best)
			total++
			if bits[rr][rc] == layout.bit[r][c] {
				match++
			}
		}
	}
	if float64(match)/float64(total) < cfg.MinStructuralScore {
		return 0, ErrOrientationAmbiguous
	}
	return best, nil
}

// inCornerBlock reports whether a cell lies in one of the four 5x5 corner
// blocks of the inner grid.
func inCornerBlock(r, c int) bool {
	return (inFinder(r, c, finderNear, finderNear) ||
		inFinder(r, c, finderNear, finderFar) ||
		inFinder(r, c, finderFar, finderNear) ||
		inFinder(r, c, finderFar, finderFar))
}

// canonicalCorners reorders a located quadrilateral so index 0 is the tag's
// physical top-left after rotation resolution: canonical corner i appears at
// sampled corner (i+rotation)%4.
func canonicalCorners(corners [4]r2.Point, rotation int) [4]r2.Point {
	var out [4]r2.Point
	for i := 0; i < 4; i++ {
		out[i] = corners[(i+rotation)%4]
	}
	return out
}
