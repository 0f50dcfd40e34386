package gptag

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Planar perspective-n-point. The tag is a flat square of known physical
// size, so an initial pose comes from decomposing the homography between
// object-plane and normalized image coordinates; Gauss-Newton refinement over
// (rotation vector, translation) then minimizes reprojection error using all
// correspondences.

// EstimatePose solves the camera-relative pose of a planar tag from 2D-3D
// correspondences. Image points are raw frame pixels (distortion is removed
// here), object points are meters in the tag frame with Z=0 on the tag
// plane. The returned translation is meters in the camera frame.
func EstimatePose(imagePts []r2.Point, objectPts []r3.Vector, intr CameraIntrinsics, cfg PoseConfig) (*Pose, error) {
	if !intr.Valid() {
		return nil, ErrBadIntrinsics
	}
	n := len(imagePts)
	if n < 4 || len(objectPts) != n {
		return nil, ErrPoseDegenerate
	}

	// Normalized, undistorted image coordinates.
	norm := make([]r2.Point, n)
	for i, p := range imagePts {
		norm[i] = undistortPoint(intr, p)
	}
	planar := make([]r2.Point, n)
	for i, p := range objectPts {
		planar[i] = r2.Point{X: p.X, Y: p.Y}
	}

	h, err := homographyDLT(planar, norm)
	if err != nil {
		return nil, ErrPoseDegenerate
	}

	rot, trans, ok := decomposePlanarHomography(h)
	if !ok {
		return nil, ErrPoseDegenerate
	}

	w := rodriguesFromRot(rot)
	w, trans = refinePose(w, trans, norm, objectPts, cfg.RefineIterations)
	rot = rotFromRodrigues(w)

	if trans.Z <= 0 {
		return nil, ErrPoseDegenerate
	}

	// Mean reprojection error, in pixels.
	f := (intr.Fx + intr.Fy) / 2
	var sumErr float64
	for i, obj := range objectPts {
		proj, inFront := projectPoint(rot, trans, obj)
		if !inFront {
			return nil, ErrPoseDegenerate
		}
		sumErr += math.Hypot(proj.X-norm[i].X, proj.Y-norm[i].Y) * f
	}
	if sumErr/float64(n) > cfg.MaxReprojErrPx {
		return nil, ErrPoseDegenerate
	}

	return &Pose{
		Translation: trans,
		Rotation:    quatFromRot(rot),
		Frame:       FrameCamera,
	}, nil
}

// undistortPoint converts a raw pixel to normalized camera coordinates,
// iteratively removing Brown-Conrady distortion (k1, k2, p1, p2, k3).
func undistortPoint(intr CameraIntrinsics, p r2.Point) r2.Point {
	var k [5]float64
	copy(k[:], intr.Distortion)

	xd := (p.X - intr.Cx) / intr.Fx
	yd := (p.Y - intr.Cy) / intr.Fy
	x, y := xd, yd
	for iter := 0; iter < 10; iter++ {
		r2s := x*x + y*y
		radial := 1 + k[0]*r2s + k[1]*r2s*r2s + k[4]*r2s*r2s*r2s
		dx := 2*k[2]*x*y + k[3]*(r2s+2*x*x)
		dy := k[2]*(r2s+2*y*y) + 2*k[3]*x*y
		x = (xd - dx) / radial
		y = (yd - dy) / radial
	}
	return r2.Point{X: x, Y: y}
}

// decomposePlanarHomography extracts [r1 r2 t] from a homography between the
// object plane and normalized image coordinates, orthonormalizing the
// rotation by SVD.
func decomposePlanarHomography(h *mat.Dense) ([3][3]float64, r3.Vector, bool) {
	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	scale := (h1.Norm() + h2.Norm()) / 2
	if scale < 1e-12 {
		return [3][3]float64{}, r3.Vector{}, false
	}
	lambda := 1 / scale
	// The tag must sit in front of the camera.
	if h3.Z*lambda < 0 {
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2c := h2.Mul(lambda)
	r3c := r1.Cross(r2c)
	t := h3.Mul(lambda)

	raw := mat.NewDense(3, 3, []float64{
		r1.X, r2c.X, r3c.X,
		r1.Y, r2c.Y, r3c.Y,
		r1.Z, r2c.Z, r3c.Z,
	})
	var svd mat.SVD
	if ok := svd.Factorize(raw, mat.SVDFull); !ok {
		return [3][3]float64{}, r3.Vector{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		// Flip the last column of U to stay in SO(3).
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}

	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = rot.At(i, j)
		}
	}
	return out, t, true
}

// projectPoint maps an object point through (R, t) to normalized image
// coordinates. inFront is false when the point lands behind the camera.
func projectPoint(rot [3][3]float64, t r3.Vector, obj r3.Vector) (r2.Point, bool) {
	x := rot[0][0]*obj.X + rot[0][1]*obj.Y + rot[0][2]*obj.Z + t.X
	y := rot[1][0]*obj.X + rot[1][1]*obj.Y + rot[1][2]*obj.Z + t.Y
	z := rot[2][0]*obj.X + rot[2][1]*obj.Y + rot[2][2]*obj.Z + t.Z
	if z <= 1e-9 {
		return r2.Point{}, false
	}
	return r2.Point{X: x / z, Y: y / z}, true
}

// refinePose runs Gauss-Newton on the 6 pose parameters with a numeric
// Jacobian. Divergent steps leave the previous estimate in place.
func refinePose(w, t r3.Vector, norm []r2.Point, obj []r3.Vector, iterations int) (r3.Vector, r3.Vector) {
	params := [6]float64{w.X, w.Y, w.Z, t.X, t.Y, t.Z}

	residuals := func(p [6]float64) ([]float64, bool) {
		rot := rotFromRodrigues(r3.Vector{X: p[0], Y: p[1], Z: p[2]})
		tv := r3.Vector{X: p[3], Y: p[4], Z: p[5]}
		res := make([]float64, 2*len(obj))
		for i, o := range obj {
			proj, inFront := projectPoint(rot, tv, o)
			if !inFront {
				return nil, false
			}
			res[2*i] = proj.X - norm[i].X
			res[2*i+1] = proj.Y - norm[i].Y
		}
		return res, true
	}

	cost := func(res []float64) float64 {
		var s float64
		for _, r := range res {
			s += r * r
		}
		return s
	}

	res, ok := residuals(params)
	if !ok {
		return w, t
	}
	best := cost(res)

	const eps = 1e-6
	for iter := 0; iter < iterations; iter++ {
		m := len(res)
		jac := mat.NewDense(m, 6, nil)
		for j := 0; j < 6; j++ {
			pp, pm := params, params
			pp[j] += eps
			pm[j] -= eps
			rp, ok1 := residuals(pp)
			rm, ok2 := residuals(pm)
			if !ok1 || !ok2 {
				return vecsFromParams(params)
			}
			for i := 0; i < m; i++ {
				jac.Set(i, j, (rp[i]-rm[i])/(2*eps))
			}
		}

		rv := mat.NewVecDense(m, res)
		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		// Light damping keeps the solve well-posed near singular
		// configurations.
		for i := 0; i < 6; i++ {
			jtj.Set(i, i, jtj.At(i, i)+1e-9)
		}
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), rv)

		var delta mat.VecDense
		if err := delta.SolveVec(&jtj, &jtr); err != nil {
			break
		}

		next := params
		for j := 0; j < 6; j++ {
			next[j] -= delta.AtVec(j)
		}
		nres, ok := residuals(next)
		if !ok {
			break
		}
		ncost := cost(nres)
		if ncost >= best {
			break
		}
		params = next
		res = nres
		best = ncost
		if delta.Norm(2) < 1e-12 {
			break
		}
	}
	return vecsFromParams(params)
}

func vecsFromParams(p [6]float64) (r3.Vector, r3.Vector) {
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}, r3.Vector{X: p[3], Y: p[4], Z: p[5]}
}

// rotFromRodrigues converts an axis-angle vector to a rotation matrix.
func rotFromRodrigues(w r3.Vector) [3][3]float64 {
	theta := w.Norm()
	if theta < 1e-12 {
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	k := w.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return [3][3]float64{
		{c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s},
		{k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s},
		{k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v},
	}
}

// rodriguesFromRot converts a rotation matrix to an axis-angle vector.
func rodriguesFromRot(rot [3][3]float64) r3.Vector {
	tr := rot[0][0] + rot[1][1] + rot[2][2]
	cosTheta := (tr - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	}
	if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	axis := r3.Vector{
		X: rot[2][1] - rot[1][2],
		Y: rot[0][2] - rot[2][0],
		Z: rot[1][0] - rot[0][1],
	}
	sinTheta := math.Sin(theta)
	if math.Abs(sinTheta) < 1e-9 {
		// Near pi: recover the axis from the diagonal.
		ax := math.Sqrt(math.Max(0, (rot[0][0]+1)/2))
		ay := math.Sqrt(math.Max(0, (rot[1][1]+1)/2))
		az := math.Sqrt(math.Max(0, (rot[2][2]+1)/2))
		if rot[0][1] < 0 {
			ay = -ay
		}
		if rot[0][2] < 0 {
			az = -az
		}
		return r3.Vector{X: ax, Y: ay, Z: az}.Mul(theta)
	}
	return axis.Mul(theta / (2 * sinTheta))
}
