package gptag

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// MarkerImage is a rendered marker: the binary cell grid and its raster at a
// fixed number of pixels per cell. Immutable once returned by Render.
type MarkerImage struct {
	cells         [GridCells][GridCells]bool
	pixelsPerCell int
	img           *image.Gray
}

// PixelsPerCell is the raster resolution U the marker was rendered at.
func (m *MarkerImage) PixelsPerCell() int { return m.pixelsPerCell }

// CellAt reports whether the cell at (row, col) is black.
func (m *MarkerImage) CellAt(row, col int) bool { return m.cells[row][col] }

// Image returns the marker raster, GridCells*U pixels on a side.
func (m *MarkerImage) Image() image.Image { return m.img }

// Render lays out a payload into the cell grid and rasterizes it at u pixels
// per cell. Structural cells are fixed; payload cells carry the encoded bits
// in row-major order, with the remaining capacity filled by the reserved
// texture.
func Render(p TagPayload, u int) (*MarkerImage, error) {
	if u < 1 {
		return nil, fmt.Errorf("pixels per cell must be >= 1, got %d", u)
	}
	bits, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}

	m := &MarkerImage{pixelsPerCell: u}
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			if layout.kind[r][c] == cellStructural {
				m.cells[r][c] = layout.bit[r][c]
			}
		}
	}
	for i, ref := range layout.payloadOrder {
		if i < len(bits) {
			m.cells[ref.row][ref.col] = bits[i]
		} else {
			m.cells[ref.row][ref.col] = reservedBit(i)
		}
	}

	m.img = rasterizeCells(&m.cells, u)
	return m, nil
}

// RenderTemplate rasterizes the data-independent part of the marker at u
// pixels per cell: the structural pattern plus the reserved filler texture,
// with the encoded-data cells left white. The filler cells are identical on
// every rendered tag and carry distinctive texture, which is what the
// locator's descriptor matching keys on; the repetitive bullseye and border
// cells alone would be ambiguous under the ratio test. The canonical 360 px
// template corresponds to u=10.
func RenderTemplate(u int) *image.Gray {
	var cells [GridCells][GridCells]bool
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			if layout.kind[r][c] == cellStructural {
				cells[r][c] = layout.bit[r][c]
			}
		}
	}
	dataBits, _ := EncodedBits(CurrentVersion)
	for i, ref := range layout.payloadOrder {
		if i >= dataBits {
			cells[ref.row][ref.col] = reservedBit(i)
		}
	}
	return rasterizeCells(&cells, u)
}

func rasterizeCells(cells *[GridCells][GridCells]bool, u int) *image.Gray {
	small := image.NewGray(image.Rect(0, 0, GridCells, GridCells))
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			v := color.Gray{Y: 255}
			if cells[r][c] {
				v = color.Gray{Y: 0}
			}
			small.SetGray(c, r, v)
		}
	}
	if u == 1 {
		return small
	}
	dst := image.NewGray(image.Rect(0, 0, GridCells*u, GridCells*u))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	return dst
}
