package gptag

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Oriented-patch corner features. Corners come from the min-eigenvalue of the
// local gradient structure tensor (Shi-Tomasi response); each keeps an
// intensity-centroid orientation and a rotated, normalized 8x8 patch
// descriptor, so matching tolerates in-plane rotation and (via the image
// pyramid) octave-scale changes.

const (
	descGrid       = 8
	descSize       = descGrid * descGrid
	patchRadius    = 12.0
	centroidRadius = 7
	// minPatchNorm rejects featureless patches before normalization.
	minPatchNorm = 1e-3
)

type featurePoint struct {
	// pt is the feature position in original-frame pixels.
	pt       r2.Point
	response float64
	desc     [descSize]float64
}

// detectFeatures finds corner features across a pyramid of lum, reporting
// positions in original-frame pixels.
func detectFeatures(lum *mat.Dense, cfg LocatorConfig) []featurePoint {
	pyr := buildPyramid(lum, cfg.PyramidLevels, 4*int(patchRadius))
	var out []featurePoint
	scale := 1.0
	for _, level := range pyr {
		out = append(out, detectAtLevel(level, scale, cfg)...)
		scale *= 2
	}
	return out
}

func detectAtLevel(m *mat.Dense, scale float64, cfg LocatorConfig) []featurePoint {
	rows, cols := m.Dims()
	margin := int(patchRadius*math.Sqrt2) + 2
	if rows <= 2*margin || cols <= 2*margin {
		return nil
	}

	// Sobel gradients.
	ix := mat.NewDense(rows, cols, nil)
	iy := mat.NewDense(rows, cols, nil)
	for r := 1; r < rows-1; r++ {
		for c := 1; c < cols-1; c++ {
			gx := m.At(r-1, c+1) + 2*m.At(r, c+1) + m.At(r+1, c+1) -
				m.At(r-1, c-1) - 2*m.At(r, c-1) - m.At(r+1, c-1)
			gy := m.At(r+1, c-1) + 2*m.At(r+1, c) + m.At(r+1, c+1) -
				m.At(r-1, c-1) - 2*m.At(r-1, c) - m.At(r-1, c+1)
			ix.Set(r, c, gx)
			iy.Set(r, c, gy)
		}
	}

	// Shi-Tomasi response: smaller eigenvalue of the structure tensor summed
	// over a 5x5 window.
	const winR = 2
	resp := mat.NewDense(rows, cols, nil)
	maxResp := 0.0
	for r := margin; r < rows-margin; r++ {
		for c := margin; c < cols-margin; c++ {
			var sxx, syy, sxy float64
			for dr := -winR; dr <= winR; dr++ {
				for dc := -winR; dc <= winR; dc++ {
					gx := ix.At(r+dr, c+dc)
					gy := iy.At(r+dr, c+dc)
					sxx += gx * gx
					syy += gy * gy
					sxy += gx * gy
				}
			}
			tr := sxx + syy
			det := math.Sqrt((sxx-syy)*(sxx-syy) + 4*sxy*sxy)
			lambda := (tr - det) / 2
			resp.Set(r, c, lambda)
			if lambda > maxResp {
				maxResp = lambda
			}
		}
	}
	if maxResp <= 0 {
		return nil
	}

	// Non-max suppression and quality gate.
	thresh := cfg.QualityLevel * maxResp
	type cand struct {
		r, c int
		v    float64
	}
	var cands []cand
	for r := margin; r < rows-margin; r++ {
		for c := margin; c < cols-margin; c++ {
			v := resp.At(r, c)
			if v < thresh {
				continue
			}
			isMax := true
			for dr := -1; dr <= 1 && isMax; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if (dr != 0 || dc != 0) && resp.At(r+dr, c+dc) > v {
						isMax = false
						break
					}
				}
			}
			if isMax {
				cands = append(cands, cand{r, c, v})
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].v > cands[j].v })

	// Greedy spacing, strongest first.
	minDistSq := cfg.MinFeatureDistPx * cfg.MinFeatureDistPx
	var kept []cand
	for _, cd := range cands {
		if len(kept) >= cfg.MaxFeatures {
			break
		}
		ok := true
		for _, k := range kept {
			dr := float64(cd.r - k.r)
			dc := float64(cd.c - k.c)
			if dr*dr+dc*dc < minDistSq {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, cd)
		}
	}

	out := make([]featurePoint, 0, len(kept))
	for _, cd := range kept {
		angle := patchOrientation(m, cd.r, cd.c)
		fp := featurePoint{
			pt: r2.Point{
				X: levelToFrame(float64(cd.c), scale),
				Y: levelToFrame(float64(cd.r), scale),
			},
			response: cd.v,
		}
		if sampleDescriptor(m, cd.r, cd.c, angle, &fp.desc) {
			out = append(out, fp)
		}
	}
	return out
}

// levelToFrame maps a pyramid-level pixel coordinate to original-frame
// pixels. A level pixel covers a scale x scale block, so its center sits at
// (coord+0.5)*scale - 0.5 in frame pixel-center coordinates; plain
// coord*scale would drift by half a block at coarse levels.
func levelToFrame(coord, scale float64) float64 {
	return (coord+0.5)*scale - 0.5
}

// patchOrientation is the intensity-centroid angle over a disc around the
// corner.
func patchOrientation(m *mat.Dense, r, c int) float64 {
	var m10, m01 float64
	for dr := -centroidRadius; dr <= centroidRadius; dr++ {
		for dc := -centroidRadius; dc <= centroidRadius; dc++ {
			if dr*dr+dc*dc > centroidRadius*centroidRadius {
				continue
			}
			v := m.At(r+dr, c+dc)
			m10 += float64(dc) * v
			m01 += float64(dr) * v
		}
	}
	return math.Atan2(m01, m10)
}

// sampleDescriptor fills an 8x8 patch sampled on a grid rotated to the
// feature orientation, then normalizes it to zero mean and unit norm.
// Returns false for featureless patches.
func sampleDescriptor(m *mat.Dense, r, c int, angle float64, desc *[descSize]float64) bool {
	cosA, sinA := math.Cos(angle), math.Sin(angle)
	step := 2 * patchRadius / float64(descGrid)
	i := 0
	for gy := 0; gy < descGrid; gy++ {
		dv := (float64(gy) - float64(descGrid-1)/2) * step
		for gx := 0; gx < descGrid; gx++ {
			du := (float64(gx) - float64(descGrid-1)/2) * step
			dx := cosA*du - sinA*dv
			dy := sinA*du + cosA*dv
			desc[i] = bilinear(m, float64(c)+dx, float64(r)+dy)
			i++
		}
	}

	mean := stat.Mean(desc[:], nil)
	var norm float64
	for i := range desc {
		desc[i] -= mean
		norm += desc[i] * desc[i]
	}
	norm = math.Sqrt(norm)
	if norm < minPatchNorm {
		return false
	}
	for i := range desc {
		desc[i] /= norm
	}
	return true
}

// matchFeatures pairs template features with frame features by normalized
// correlation, applying a Lowe ratio test and a mutual-best cross check.
// Returned pairs index into (tmpl, frame).
func matchFeatures(tmpl, frame []featurePoint, ratio float64) [][2]int {
	if len(tmpl) == 0 || len(frame) == 0 {
		return nil
	}

	bestOf := func(from, to []featurePoint, i int) (best int, dBest, dSecond float64) {
		best = -1
		dBest, dSecond = math.Inf(1), math.Inf(1)
		for j := range to {
			corr := dot64(&from[i].desc, &to[j].desc)
			d := 2 - 2*corr
			if d < dBest {
				dSecond = dBest
				dBest = d
				best = j
			} else if d < dSecond {
				dSecond = d
			}
		}
		return best, dBest, dSecond
	}

	// Frame-side best matches for the cross check.
	frameBest := make([]int, len(frame))
	for j := range frame {
		frameBest[j], _, _ = bestOf(frame, tmpl, j)
	}

	var pairs [][2]int
	for i := range tmpl {
		j, dBest, dSecond := bestOf(tmpl, frame, i)
		if j < 0 || dBest > ratio*ratio*dSecond {
			continue
		}
		// d = 2-2*corr, so requiring d < 1 keeps correlation above 0.5.
		if dBest >= 1 {
			continue
		}
		if frameBest[j] != i {
			continue
		}
		pairs = append(pairs, [2]int{i, j})
	}
	return pairs
}

func dot64(a, b *[descSize]float64) float64 {
	var s float64
	for i := 0; i < descSize; i++ {
		s += a[i] * b[i]
	}
	return s
}
