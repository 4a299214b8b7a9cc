package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Clients    int `json:"clients"`
	Chunks     int `json:"chunks"`
	LandCells  int `json:"land_cells"`
	WaterCells int `json:"water_cells"`
	GridCells  int `json:"grid_cells"`
	Placements int `json:"placements"`

	Pulses  uint64 `json:"pulses"`
	Session string `json:"session"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) updateMetrics(tick uint64, stepDur time.Duration) {
	w.metrics.Store(WorldMetrics{
		Tick:       tick,
		Clients:    len(w.clients),
		Chunks:     len(w.chunks.Chunks),
		LandCells:  w.landCells,
		WaterCells: w.waterCells,
		GridCells:  w.grid.Len(),
		Placements: len(w.placements),
		Pulses:     w.pulses,
		Session:    w.session.State().String(),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: float64(stepDur.Microseconds()) / 1000,
	})
}
