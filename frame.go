package gptag

import (
	"image"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/rimage"
)

// frameToLuminance converts any frame to a grayscale luminance matrix
// (rows x cols, 0-255).
func frameToLuminance(img image.Image) *mat.Dense {
	return rimage.ConvertColorImageToLuminanceFloat(rimage.ConvertImage(img))
}

// bilinear samples m at a fractional position, clamping to the border.
func bilinear(m *mat.Dense, x, y float64) float64 {
	rows, cols := m.Dims()
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x > float64(cols-1) {
		x = float64(cols - 1)
	}
	if y > float64(rows-1) {
		y = float64(rows - 1)
	}
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > cols-1 {
		x1 = cols - 1
	}
	if y1 > rows-1 {
		y1 = rows - 1
	}
	fx, fy := x-float64(x0), y-float64(y0)

	v00 := m.At(y0, x0)
	v01 := m.At(y0, x1)
	v10 := m.At(y1, x0)
	v11 := m.At(y1, x1)
	top := v00 + (v01-v00)*fx
	bot := v10 + (v11-v10)*fx
	return top + (bot-top)*fy
}

// downsample2 halves a luminance matrix with 2x2 box averaging.
func downsample2(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	hr, hc := rows/2, cols/2
	out := mat.NewDense(hr, hc, nil)
	for r := 0; r < hr; r++ {
		for c := 0; c < hc; c++ {
			s := m.At(2*r, 2*c) + m.At(2*r, 2*c+1) + m.At(2*r+1, 2*c) + m.At(2*r+1, 2*c+1)
			out.Set(r, c, s/4)
		}
	}
	return out
}

// buildPyramid returns m followed by successive 2x downsamples. Levels with
// fewer than minSide pixels on a side are dropped.
func buildPyramid(m *mat.Dense, levels, minSide int) []*mat.Dense {
	pyr := []*mat.Dense{m}
	cur := m
	for len(pyr) < levels {
		rows, cols := cur.Dims()
		if rows/2 < minSide || cols/2 < minSide {
			break
		}
		cur = downsample2(cur)
		pyr = append(pyr, cur)
	}
	return pyr
}
