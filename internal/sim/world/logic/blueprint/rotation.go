package blueprint

// NormalizeRotation converts a rotation value into a stable quarter-turn
// count in [0,3].
//
// It accepts either quarter-turns (0..3) or degrees (multiples of 90).
func NormalizeRotation(r int) int {
	// Treat large multiples of 90 as degrees.
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	r %= 4
	if r < 0 {
		r += 4
	}
	return r
}

// Degrees returns the yaw in [0,360) for a quarter-turn count.
func Degrees(rot int) int {
	return NormalizeRotation(rot) * 90
}

// RotatedFootprint returns the (w,h) a footprint covers after rot quarter
// turns: odd turns swap width and height.
func RotatedFootprint(w, h, rot int) (int, int) {
	if NormalizeRotation(rot)%2 == 1 {
		return h, w
	}
	return w, h
}
