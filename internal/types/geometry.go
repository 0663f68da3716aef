// Package types provides shared types used across multiple packages.
// This package has no dependencies on other reportsum packages to avoid import cycles.
package types

// BBox is a page-relative rectangle. Origin is the top-left corner of the
// page and Y grows downward, so sorting by Y ascending yields reading order.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the right edge.
func (b BBox) Right() float64 { return b.X + b.Width }

// Bottom returns the bottom edge.
func (b BBox) Bottom() float64 { return b.Y + b.Height }

// Area returns width*height, or 0 for degenerate boxes.
func (b BBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Intersection returns the overlapping region, or a zero BBox when the
// boxes do not overlap.
func (b BBox) Intersection(o BBox) BBox {
	x0 := max(b.X, o.X)
	y0 := max(b.Y, o.Y)
	x1 := min(b.Right(), o.Right())
	y1 := min(b.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return BBox{}
	}
	return BBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// ContainedFraction reports how much of b lies inside o, in [0, 1].
// A zero-area b is treated as contained when its origin lies inside o.
func (b BBox) ContainedFraction(o BBox) float64 {
	area := b.Area()
	if area == 0 {
		if b.X >= o.X && b.X <= o.Right() && b.Y >= o.Y && b.Y <= o.Bottom() {
			return 1
		}
		return 0
	}
	return b.Intersection(o).Area() / area
}

// Union returns the smallest box covering both.
func (b BBox) Union(o BBox) BBox {
	if b == (BBox{}) {
		return o
	}
	if o == (BBox{}) {
		return b
	}
	x0 := min(b.X, o.X)
	y0 := min(b.Y, o.Y)
	x1 := max(b.Right(), o.Right())
	y1 := max(b.Bottom(), o.Bottom())
	return BBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
