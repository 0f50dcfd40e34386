package gptag

import (
	"image"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Synthetic-image helpers shared by the package tests.

// testPayload is the reference tag used across the package tests: a 100 mm
// tag (0.36 cells/mm) in Umeå at 45.16 m altitude, lying flat.
func testPayload() TagPayload {
	return TagPayload{
		TagID:       123,
		VersionID:   CurrentVersion,
		Accuracy:    2,
		Scale:       0.36,
		Latitude:    63.8203894,
		Longitude:   20.3058847,
		Altitude:    45.16,
		Orientation: [4]float64{0, 0, 0, 1},
	}
}

// lumFromGray converts a grayscale image to a luminance matrix directly,
// bypassing the color conversion used on real frames.
func lumFromGray(img *image.Gray) *mat.Dense {
	b := img.Bounds()
	out := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(y, x, float64(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
		}
	}
	return out
}

// rot90CW returns the image rotated clockwise by k quarter-turns.
func rot90CW(img *image.Gray, k int) *image.Gray {
	out := img
	for i := 0; i < k%4; i++ {
		b := out.Bounds()
		w, h := b.Dx(), b.Dy()
		dst := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				dst.SetGray(x, y, out.GrayAt(y, h-1-x))
			}
		}
		out = dst
	}
	return out
}

// warpInto paints src into frame so that src's image corners land on the
// given frame-pixel quadrilateral (clockwise from top-left). Pixels outside
// the quadrilateral keep their existing value.
func warpInto(frame, src *image.Gray, corners [4]r2.Point) {
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	srcCorners := []r2.Point{{X: 0, Y: 0}, {X: sw, Y: 0}, {X: sw, Y: sh}, {X: 0, Y: sh}}

	// Map frame pixels back into the source.
	inv, err := homographyDLT(corners[:], srcCorners)
	if err != nil {
		panic(err)
	}

	minX, minY := corners[0].X, corners[0].Y
	maxX, maxY := minX, minY
	for _, c := range corners[1:] {
		minX = min2(minX, c.X)
		minY = min2(minY, c.Y)
		maxX = max2(maxX, c.X)
		maxY = max2(maxY, c.Y)
	}

	srcLum := lumFromGray(src)
	fb := frame.Bounds()
	for y := int(minY); y <= int(maxY); y++ {
		for x := int(minX); x <= int(maxX); x++ {
			if x < fb.Min.X || y < fb.Min.Y || x >= fb.Max.X || y >= fb.Max.Y {
				continue
			}
			p := applyHomography(inv, r2.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			if p.X < 0 || p.Y < 0 || p.X > sw-1 || p.Y > sh-1 {
				continue
			}
			v := bilinear(srcLum, p.X, p.Y)
			frame.Pix[(y-fb.Min.Y)*frame.Stride+(x-fb.Min.X)] = uint8(v + 0.5)
		}
	}
}

// syntheticFrame renders the payload and warps it into a white w x h frame at
// the given corner quadrilateral.
func syntheticFrame(p TagPayload, u, w, h int, corners [4]r2.Point) (*image.Gray, error) {
	marker, err := Render(p, u)
	if err != nil {
		return nil, err
	}
	frame := image.NewGray(image.Rect(0, 0, w, h))
	for i := range frame.Pix {
		frame.Pix[i] = 255
	}
	warpInto(frame, marker.Image().(*image.Gray), corners)
	return frame, nil
}

// noiseFrame is a deterministic uniform-noise frame with no tag structure.
func noiseFrame(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	frame := image.NewGray(image.Rect(0, 0, w, h))
	for i := range frame.Pix {
		frame.Pix[i] = uint8(rng.Intn(256))
	}
	return frame
}

// projectedCorners places a fronto-parallel square tag of physical side
// sideM at distance zM in front of a pinhole camera.
func projectedCorners(intr CameraIntrinsics, sideM, zM float64) [4]r2.Point {
	half := sideM / 2
	obj := [][2]float64{{-half, -half}, {half, -half}, {half, half}, {-half, half}}
	var out [4]r2.Point
	for i, o := range obj {
		out[i] = r2.Point{
			X: intr.Fx*o[0]/zM + intr.Cx,
			Y: intr.Fy*o[1]/zM + intr.Cy,
		}
	}
	return out
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
