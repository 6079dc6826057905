package mot

import (
	"math"
)

// Rectangle is an axis-aligned box in image space: top-left corner plus size.
type Rectangle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// NewRectFromSlice builds a rectangle from [x, y, w, h].
// Returns false when the slice has the wrong length or describes a degenerate box.
func NewRectFromSlice(xywh []float64) (Rectangle, bool) {
	if len(xywh) != 4 {
		return Rectangle{}, false
	}
	rect := NewRect(xywh[0], xywh[1], xywh[2], xywh[3])
	if !rect.Valid() {
		return Rectangle{}, false
	}
	return rect, true
}

// Slice returns rectangle as [x, y, w, h]
func (r Rectangle) Slice() []float64 {
	return []float64{r.X, r.Y, r.Width, r.Height}
}

// Valid reports whether the rectangle has finite coordinates and positive size
func (r Rectangle) Valid() bool {
	for _, v := range [4]float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Width > 0 && r.Height > 0
}

// Area returns width*height
func (r Rectangle) Area() float64 {
	return r.Width * r.Height
}

// Center returns rectangle's centroid
func (r Rectangle) Center() Point {
	return Point{
		X: r.X + r.Width/2.0,
		Y: r.Y + r.Height/2.0,
	}
}

// Translate returns a copy of the rectangle shifted by (dx, dy)
func (r Rectangle) Translate(dx, dy float64) Rectangle {
	return Rectangle{
		X:      r.X + dx,
		Y:      r.Y + dy,
		Width:  r.Width,
		Height: r.Height,
	}
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// Vector2 is a planar rate (velocity or acceleration) in pixels per second.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector3 is a position or velocity reported by a sensor or derived by fusion.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
