package mathx

import "math"

// floorEps absorbs representation error when a coordinate sits exactly on a
// cell boundary, e.g. 2.4/0.1 == 23.999999999999996.
const floorEps = 1e-9

// CeilDiv is the number of b-wide chunks needed to cover a.
func CeilDiv(a, b int) int {
	// a >= 0, b > 0
	return (a + b - 1) / b
}

// FloorCell returns the index of the size-wide cell containing v.
func FloorCell(v, size float64) int {
	return int(math.Floor(v/size + floorEps))
}
