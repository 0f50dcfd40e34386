package gptag

// Grid geometry. The marker is a GridCells x GridCells cell grid: a two-cell
// white quiet zone, a one-cell black border ring, three 5x5 bullseye finder
// blocks, and a deliberately empty fourth corner that breaks the grid's
// 4-fold rotational symmetry. Every remaining interior cell is payload
// capacity, consumed in row-major order.
const (
	// GridCells is the marker edge length in cells.
	GridCells = 36

	quietCells  = 2
	borderIdxLo = quietCells
	borderIdxHi = GridCells - quietCells - 1
	innerIdxLo  = borderIdxLo + 1
	innerIdxHi  = borderIdxHi - 1

	finderSize = 5
	finderNear = innerIdxLo + 1          // 4
	finderFar  = innerIdxHi - finderSize // 27, one cell in from the border like finderNear
)

// cellKind classifies a grid cell.
type cellKind uint8

const (
	cellQuiet cellKind = iota
	cellStructural
	cellPayload
)

// cellRef addresses one grid cell.
type cellRef struct {
	row, col int
}

// gridLayout is the fixed cell classification shared by every version.
type gridLayout struct {
	kind [GridCells][GridCells]cellKind
	// bit is the expected value of structural cells (true = black).
	bit [GridCells][GridCells]bool
	// payloadOrder lists payload cells in row-major read/write order.
	payloadOrder []cellRef
}

var layout = buildLayout()

func buildLayout() *gridLayout {
	g := &gridLayout{}
	for r := 0; r < GridCells; r++ {
		for c := 0; c < GridCells; c++ {
			switch {
			case r < quietCells || r > GridCells-1-quietCells ||
				c < quietCells || c > GridCells-1-quietCells:
				g.kind[r][c] = cellQuiet
			case r == borderIdxLo || r == borderIdxHi || c == borderIdxLo || c == borderIdxHi:
				g.kind[r][c] = cellStructural
				g.bit[r][c] = true
			case inFinder(r, c, finderNear, finderNear):
				g.kind[r][c] = cellStructural
				g.bit[r][c] = finderBit(r-finderNear, c-finderNear)
			case inFinder(r, c, finderNear, finderFar):
				g.kind[r][c] = cellStructural
				g.bit[r][c] = finderBit(r-finderNear, c-finderFar)
			case inFinder(r, c, finderFar, finderNear):
				g.kind[r][c] = cellStructural
				g.bit[r][c] = finderBit(r-finderFar, c-finderNear)
			case inFinder(r, c, finderFar, finderFar):
				// The missing fourth bullseye: expected white, reserved.
				g.kind[r][c] = cellStructural
				g.bit[r][c] = false
			default:
				g.kind[r][c] = cellPayload
				g.payloadOrder = append(g.payloadOrder, cellRef{r, c})
			}
		}
	}
	return g
}

func inFinder(r, c, r0, c0 int) bool {
	return r >= r0 && r < r0+finderSize && c >= c0 && c < c0+finderSize
}

// finderBit is the bullseye pattern: black outer ring, white middle ring,
// black center.
func finderBit(dr, dc int) bool {
	d := dr - finderSize/2
	if d < 0 {
		d = -d
	}
	e := dc - finderSize/2
	if e < 0 {
		e = -e
	}
	if e > d {
		d = e
	}
	return d != 1
}

// PayloadCapacity is the number of payload cells in the grid.
func PayloadCapacity() int {
	return len(layout.payloadOrder)
}

// rotateCellCW maps a cell position through k clockwise quarter-turns of the
// grid.
func rotateCellCW(r, c, k int) (int, int) {
	for i := 0; i < k%4; i++ {
		r, c = c, GridCells-1-r
	}
	return r, c
}

// reservedBit is the deterministic filler texture for payload cells beyond
// the encoded bit length. The texture gives the locator gradient content to
// key on and is ignored on decode.
func reservedBit(index int) bool {
	x := uint64(index)*0x9E3779B97F4A7C15 + 0x5EED5EED5EED5EED
	x ^= x >> 33
	x *= 0xFF51AFD7ED558CCD
	x ^= x >> 33
	return x&1 == 1
}
