package gptag

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Homography estimation: normalized DLT for the minimal and least-squares
// fits, RANSAC over 4-point samples for robustness to outlier matches.

// homographyDLT fits the 3x3 projective transform mapping src[i] to dst[i]
// (n >= 4) via the normalized direct linear transform: both point sets are
// shifted to their centroid and scaled to mean distance sqrt(2), the 2n x 9
// system is solved by SVD, and the normalizations are folded back in.
func homographyDLT(src, dst []r2.Point) (*mat.Dense, error) {
	n := len(src)
	if n < 4 || len(dst) != n {
		return nil, ErrLocatorNoMatch
	}

	tSrc, srcN := normalizePoints(src)
	tDst, dstN := normalizePoints(dst)

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	// Full SVD: with a minimal 4-point sample the system is 8x9 and the null
	// vector only appears in the full V.
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, ErrLocatorNoMatch
	}
	var v mat.Dense
	svd.VTo(&v)
	_, vc := v.Dims()
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		h.Set(i/3, i%3, v.At(i, vc-1))
	}

	// Denormalize: H = tDst^-1 * Hn * tSrc.
	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return nil, ErrLocatorNoMatch
	}
	var tmp mat.Dense
	tmp.Mul(h, tSrc)
	h.Mul(&tDstInv, &tmp)

	if math.Abs(h.At(2, 2)) < 1e-12 {
		return nil, ErrLocatorNoMatch
	}
	h.Scale(1/h.At(2, 2), h)
	return h, nil
}

func normalizePoints(pts []r2.Point) (*mat.Dense, []r2.Point) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	s := 1.0
	if meanDist > 1e-12 {
		s = math.Sqrt2 / meanDist
	}

	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	return t, out
}

// applyHomography maps a point through h.
func applyHomography(h *mat.Dense, p r2.Point) r2.Point {
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	return r2.Point{
		X: (h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)) / w,
		Y: (h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)) / w,
	}
}

// ransacHomography fits a homography robust to outlier correspondences and
// returns it with the inlier indices. The final model is a least-squares DLT
// refit over the inliers of the best minimal sample.
func ransacHomography(src, dst []r2.Point, cfg LocatorConfig) (*mat.Dense, []int, error) {
	n := len(src)
	if n < 4 {
		return nil, nil, ErrLocatorNoMatch
	}

	threshSq := cfg.InlierThresholdPx * cfg.InlierThresholdPx
	//nolint:gosec
	rng := rand.New(rand.NewSource(42))

	var bestInliers []int
	for iter := 0; iter < cfg.RANSACIterations; iter++ {
		idx := sampleFourDistinct(rng, n)
		s := []r2.Point{src[idx[0]], src[idx[1]], src[idx[2]], src[idx[3]]}
		d := []r2.Point{dst[idx[0]], dst[idx[1]], dst[idx[2]], dst[idx[3]]}
		if nearCollinear(s) || nearCollinear(d) {
			continue
		}
		h, err := homographyDLT(s, d)
		if err != nil {
			continue
		}

		var inliers []int
		for i := 0; i < n; i++ {
			p := applyHomography(h, src[i])
			dx, dy := p.X-dst[i].X, p.Y-dst[i].Y
			if dx*dx+dy*dy <= threshSq {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
		}
	}

	if len(bestInliers) < cfg.MinInliers {
		return nil, nil, ErrLocatorNoMatch
	}

	s := make([]r2.Point, len(bestInliers))
	d := make([]r2.Point, len(bestInliers))
	for i, idx := range bestInliers {
		s[i] = src[idx]
		d[i] = dst[idx]
	}
	h, err := homographyDLT(s, d)
	if err != nil {
		return nil, nil, err
	}
	return h, bestInliers, nil
}

// nearCollinear reports whether any three of the four points are close to a
// line, which makes the minimal DLT ill-conditioned.
func nearCollinear(p []r2.Point) bool {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			for k := j + 1; k < 4; k++ {
				ab := p[j].Sub(p[i])
				ac := p[k].Sub(p[i])
				cross := ab.X*ac.Y - ab.Y*ac.X
				if math.Abs(cross) < 1e-6*(ab.Norm()*ac.Norm()+1e-12) {
					return true
				}
			}
		}
	}
	return false
}

func sampleFourDistinct(rng *rand.Rand, n int) [4]int {
	var idx [4]int
	for i := 0; i < 4; i++ {
		for {
			idx[i] = rng.Intn(n)
			unique := true
			for j := 0; j < i; j++ {
				if idx[i] == idx[j] {
					unique = false
					break
				}
			}
			if unique {
				break
			}
		}
	}
	return idx
}
