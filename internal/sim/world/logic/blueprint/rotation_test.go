package blueprint

import "testing"

func TestNormalizeRotation_AcceptsDegreesAndQuarterTurns(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: 0, want: 0},
		{in: 1, want: 1},
		{in: 2, want: 2},
		{in: 3, want: 3},
		{in: 4, want: 0},
		{in: -1, want: 3},
		{in: 90, want: 1},
		{in: 180, want: 2},
		{in: 270, want: 3},
		{in: 360, want: 0},
		{in: -90, want: 3},
	}
	for _, c := range cases {
		if got := NormalizeRotation(c.in); got != c.want {
			t.Fatalf("NormalizeRotation(%d)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestFourQuarterTurnsReturnToStart(t *testing.T) {
	for _, step := range []int{1, -1} {
		rot := 0
		for i := 0; i < 4; i++ {
			rot = NormalizeRotation(rot + step)
		}
		if rot != 0 || Degrees(rot) != 0 {
			t.Fatalf("step %d: rot=%d after four turns", step, rot)
		}
	}
}

func TestRotatedFootprint(t *testing.T) {
	cases := []struct {
		rot          int
		wantW, wantH int
	}{
		{rot: 0, wantW: 3, wantH: 2},
		{rot: 1, wantW: 2, wantH: 3},
		{rot: 2, wantW: 3, wantH: 2},
		{rot: 3, wantW: 2, wantH: 3},
		{rot: -1, wantW: 2, wantH: 3},
	}
	for _, c := range cases {
		if w, h := RotatedFootprint(3, 2, c.rot); w != c.wantW || h != c.wantH {
			t.Fatalf("RotatedFootprint(3,2,%d)=%d,%d want %d,%d", c.rot, w, h, c.wantW, c.wantH)
		}
	}
}
