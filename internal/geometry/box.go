package geometry

import (
	"fmt"
	"math"
)

// Box is an axis-aligned rectangle in pixel coordinates, [X1,X2)×[Y1,Y2).
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Empty reports whether the box covers no pixels.
func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// IsSquare reports whether width equals height.
func (b Box) IsSquare() bool {
	return b.Width() == b.Height()
}

// Within reports whether the box lies inside [0,width]×[0,height].
func (b Box) Within(width, height int) bool {
	return b.X1 >= 0 && b.Y1 >= 0 && b.X2 <= width && b.Y2 <= height
}

// Slice returns the box as [x1, y1, x2, y2].
func (b Box) Slice() []int {
	return []int{b.X1, b.Y1, b.X2, b.Y2}
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}

// FromSlice builds a box from [x1, y1, x2, y2].
func FromSlice(v []int) (Box, error) {
	if len(v) != 4 {
		return Box{}, fmt.Errorf("box needs 4 coordinates, got %d", len(v))
	}
	return Box{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// Normalize orders the corners so that X1<=X2 and Y1<=Y2.
func (b Box) Normalize() Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Clamp intersects the box with [0,width]×[0,height]. The result may be empty.
func Clamp(b Box, width, height int) Box {
	b = b.Normalize()
	b.X1 = clampInt(b.X1, 0, width)
	b.X2 = clampInt(b.X2, 0, width)
	b.Y1 = clampInt(b.Y1, 0, height)
	b.Y2 = clampInt(b.Y2, 0, height)
	return b
}

// Ratio is a fraction expressed in basis points so box arithmetic stays integral.
type Ratio int

// RatioOf converts a float fraction (0.30) to basis points (3000), rounding to nearest.
func RatioOf(f float64) Ratio {
	return Ratio(math.Round(f * 10000))
}

// Of returns int(v * r) truncated toward zero.
func (r Ratio) Of(v int) int {
	return v * int(r) / 10000
}

func (r Ratio) Float() float64 {
	return float64(r) / 10000
}

// SquareWithMargin grows the box by margin on each axis, turns it into the
// smallest square enclosing the grown box (side at least minSize), re-centres
// it and slides it back inside the image without shrinking. When the square is
// larger than the image's shorter side it is capped to that side so the result
// stays both square and contained. An image with no area yields an empty box.
func SquareWithMargin(b Box, width, height int, margin Ratio, minSize int) Box {
	if width <= 0 || height <= 0 {
		return Box{}
	}
	b = b.Normalize()

	dw := margin.Of(b.Width())
	dh := margin.Of(b.Height())
	x1, x2 := b.X1-dw, b.X2+dw
	y1, y2 := b.Y1-dh, b.Y2+dh

	side := maxInt(x2-x1, y2-y1, minSize)
	side = minInt(side, minInt(width, height))
	if side <= 0 {
		side = 1
	}

	cx := floorDiv(x1+x2, 2)
	cy := floorDiv(y1+y2, 2)
	x1 = cx - floorDiv(side, 2)
	y1 = cy - floorDiv(side, 2)

	x1 = slide(x1, side, width)
	y1 = slide(y1, side, height)
	return Box{X1: x1, Y1: y1, X2: x1 + side, Y2: y1 + side}
}

// slide moves a segment [start, start+length) so it fits inside [0, limit].
func slide(start, length, limit int) int {
	if start < 0 {
		start = 0
	}
	if start+length > limit {
		start = limit - length
	}
	if start < 0 {
		start = 0
	}
	return start
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
