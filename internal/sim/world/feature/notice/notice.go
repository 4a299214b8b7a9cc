package notice

import "time"

const DefaultDuration = 4 * time.Second

type Notice struct {
	Message   string
	Remaining time.Duration
}

// Board shows at most one timed message. Showing a new message replaces the
// current one and restarts the timer.
type Board struct {
	cur     Notice
	visible bool
}

func (b *Board) Show(msg string, d time.Duration) {
	if d <= 0 {
		d = DefaultDuration
	}
	b.cur = Notice{Message: msg, Remaining: d}
	b.visible = true
}

// Advance counts the timer down and hides the notice once it expires.
func (b *Board) Advance(dt time.Duration) {
	if !b.visible {
		return
	}
	b.cur.Remaining -= dt
	if b.cur.Remaining <= 0 {
		b.cur = Notice{}
		b.visible = false
	}
}

func (b *Board) Current() (Notice, bool) {
	return b.cur, b.visible
}
