package main

import (
	"net/http/httptest"
	"strings"
	"testing"

	"cityforge.ai/internal/sim/world"
)

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.2:5000":  false,
		"not-an-ip":      false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("CF_TEST_BOOL", "false")
	if envBool("CF_TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("CF_TEST_BOOL", "garbage")
	if !envBool("CF_TEST_BOOL", true) {
		t.Fatalf("expected default on parse error")
	}
}

type countingLogger struct{ n int }

func (c *countingLogger) WritePlacement(world.PlacementLogEntry) error {
	c.n++
	return nil
}

func TestMultiPlacementLogger(t *testing.T) {
	a, b := &countingLogger{}, &countingLogger{}
	m := multiPlacementLogger{a: a, b: b}
	_ = m.WritePlacement(world.PlacementLogEntry{ID: "p"})
	if a.n != 1 || b.n != 1 {
		t.Fatalf("a=%d b=%d", a.n, b.n)
	}
	_ = multiPlacementLogger{a: a}.WritePlacement(world.PlacementLogEntry{})
	if a.n != 2 {
		t.Fatalf("nil second logger should be skipped")
	}
}

func TestWriteMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMetrics(rec, "w1", world.WorldMetrics{Tick: 9, GridCells: 30, LandCells: 5, Session: "IDLE", StepMS: 0.25})
	body := rec.Body.String()
	for _, want := range []string{
		`cityforge_world_tick{world="w1"} 9`,
		`cityforge_world_grid_cells{world="w1"} 30`,
		`cityforge_world_cells{world="w1",class="land"} 5`,
		`cityforge_world_session{world="w1",state="IDLE"} 1`,
		`cityforge_world_step_ms{world="w1"} 0.250`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
