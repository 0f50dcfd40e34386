package gptag

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestBilinear(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{0, 100, 100, 200})

	if got := bilinear(m, 0, 0); got != 0 {
		t.Errorf("corner sample = %v, want 0", got)
	}
	if got := bilinear(m, 0.5, 0.5); math.Abs(got-100) > 1e-12 {
		t.Errorf("center sample = %v, want 100", got)
	}
	if got := bilinear(m, 0.5, 0); math.Abs(got-50) > 1e-12 {
		t.Errorf("edge midpoint = %v, want 50", got)
	}
	// Out-of-range coordinates clamp to the border.
	if got := bilinear(m, -3, 10); got != 100 {
		t.Errorf("clamped sample = %v, want 100", got)
	}
}

func TestDownsample2(t *testing.T) {
	m := mat.NewDense(4, 4, []float64{
		0, 0, 100, 100,
		0, 0, 100, 100,
		200, 200, 40, 60,
		200, 200, 80, 20,
	})
	half := downsample2(m)
	rows, cols := half.Dims()
	if rows != 2 || cols != 2 {
		t.Fatalf("downsampled dims = %dx%d", rows, cols)
	}
	want := [][]float64{{0, 100}, {200, 50}}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if half.At(r, c) != want[r][c] {
				t.Errorf("half[%d][%d] = %v, want %v", r, c, half.At(r, c), want[r][c])
			}
		}
	}
}

func TestBuildPyramid(t *testing.T) {
	m := mat.NewDense(128, 96, nil)
	pyr := buildPyramid(m, 3, 16)
	if len(pyr) != 3 {
		t.Fatalf("pyramid has %d levels, want 3", len(pyr))
	}
	r1, c1 := pyr[1].Dims()
	if r1 != 64 || c1 != 48 {
		t.Errorf("level 1 dims = %dx%d", r1, c1)
	}

	// Levels below the minimum side are dropped.
	small := mat.NewDense(40, 40, nil)
	pyr = buildPyramid(small, 3, 16)
	if len(pyr) != 2 {
		t.Errorf("pyramid from 40x40 has %d levels, want 2", len(pyr))
	}
}

func TestFrameToLuminance(t *testing.T) {
	frame := noiseFrame(32, 24, 3)
	lum := frameToLuminance(frame)
	rows, cols := lum.Dims()
	if rows != 24 || cols != 32 {
		t.Fatalf("luminance dims = %dx%d, want 24x32", rows, cols)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := lum.At(r, c)
			if v < 0 || v > 255 {
				t.Fatalf("luminance %v out of range at (%d,%d)", v, r, c)
			}
		}
	}
}
