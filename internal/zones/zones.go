// Package zones owns the spatial partition of the field used to localise
// foul statistics. A Grid tiles the fixed 120x80 field extent into
// rectangular bins; the two supported resolutions are 5x3 and 6x4.
package zones

import "fmt"

// Field extent in StatsBomb length units.
const (
	FieldLength = 120.0
	FieldWidth  = 80.0
)

// Third identifies one of the three length-wise field bands.
type Third int

const (
	Defensive Third = iota
	Middle
	Attacking
)

func (t Third) String() string {
	switch t {
	case Defensive:
		return "defensive"
	case Middle:
		return "middle"
	case Attacking:
		return "attacking"
	}
	return fmt.Sprintf("Third(%d)", int(t))
}

// Grid is a partition of the field into XBins x YBins rectangular cells.
type Grid struct {
	XBins int `json:"x_bins"`
	YBins int `json:"y_bins"`
}

// The two supported resolutions.
var (
	Grid5x3 = Grid{XBins: 5, YBins: 3}
	Grid6x4 = Grid{XBins: 6, YBins: 4}
)

// ParseGrid parses a grid label like "5x3". Only the supported
// resolutions are accepted.
func ParseGrid(label string) (Grid, error) {
	switch label {
	case "5x3":
		return Grid5x3, nil
	case "6x4":
		return Grid6x4, nil
	}
	return Grid{}, fmt.Errorf("unsupported zone grid %q (want 5x3 or 6x4)", label)
}

// String returns the grid label ("5x3").
func (g Grid) String() string {
	return fmt.Sprintf("%dx%d", g.XBins, g.YBins)
}

// NumZones returns the total cell count.
func (g Grid) NumZones() int { return g.XBins * g.YBins }

// Index converts (xBin, yBin) to a flat zone index in row-major order
// (x varies fastest within a y row is NOT used; we keep x-major to match
// the fitted model's zone ordering).
func (g Grid) Index(xBin, yBin int) int { return xBin*g.YBins + yBin }

// Bin converts a flat zone index back to (xBin, yBin).
func (g Grid) Bin(index int) (xBin, yBin int) {
	return index / g.YBins, index % g.YBins
}

// Contains reports whether (xBin, yBin) is a valid cell of the grid.
func (g Grid) Contains(xBin, yBin int) bool {
	return xBin >= 0 && xBin < g.XBins && yBin >= 0 && yBin < g.YBins
}

// CellBounds returns the field-coordinate rectangle covered by a cell.
// The cells exactly tile the field: cell (x, y) spans
// [x*L/XBins, (x+1)*L/XBins) x [y*W/YBins, (y+1)*W/YBins).
func (g Grid) CellBounds(xBin, yBin int) (x0, y0, x1, y1 float64) {
	cw := FieldLength / float64(g.XBins)
	ch := FieldWidth / float64(g.YBins)
	return float64(xBin) * cw, float64(yBin) * ch,
		float64(xBin+1) * cw, float64(yBin+1) * ch
}

// ThirdOf assigns an xBin to a field third. Each outer band gets
// XBins/3 columns (integer division); any remainder columns round into
// the middle band, so a 5-column grid splits 1/3/1 and a 6-column grid
// splits 2/2/2.
func (g Grid) ThirdOf(xBin int) Third {
	band := g.XBins / 3
	switch {
	case xBin < band:
		return Defensive
	case xBin >= g.XBins-band:
		return Attacking
	default:
		return Middle
	}
}
