package mot

import "math"

// IoU calculates Intersection over Union between two rectangles.
// Degenerate rectangles (non-positive size, NaN or Inf) never overlap anything.
func IoU(r1, r2 Rectangle) float64 {
	if !r1.Valid() || !r2.Valid() {
		return 0.0
	}
	if r1 == r2 {
		return 1.0
	}
	xA := maxFloat64(r1.X, r2.X)
	yA := maxFloat64(r1.Y, r2.Y)
	xB := minFloat64(r1.X+r1.Width, r2.X+r2.Width)
	yB := minFloat64(r1.Y+r1.Height, r2.Y+r2.Height)

	interArea := maxFloat64(0, xB-xA) * maxFloat64(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	unionArea := r1.Area() + r2.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return clamp01(interArea / unionArea)
}

// clamp01 bounds v to [0, 1]. NaN is mapped to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
