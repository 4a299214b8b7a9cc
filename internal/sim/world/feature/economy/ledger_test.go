package economy

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func newTestLedger(buf *bytes.Buffer) *Ledger {
	return NewLedger([]StatDef{
		{Name: StatBudget, Base: 100},
		{Name: StatResources, Base: 50},
	}, log.New(buf, "", 0))
}

func TestGet_UnknownIsZero(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLedger(&buf)
	if got := l.Get("Happiness"); got != 0 {
		t.Fatalf("Get(unknown)=%v want 0", got)
	}
	if got := l.Get(StatBudget); got != 100 {
		t.Fatalf("Get(Budget)=%v want 100", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("reading an unknown stat must not warn: %q", buf.String())
	}
}

func TestModify_MayGoNegative(t *testing.T) {
	l := newTestLedger(&bytes.Buffer{})
	l.Modify(StatBudget, -150)
	if got := l.Get(StatBudget); got != -50 {
		t.Fatalf("Budget=%v want -50", got)
	}
	l.Modify(StatBudget, 70)
	if got := l.Get(StatBudget); got != 20 {
		t.Fatalf("Budget=%v want 20", got)
	}
}

func TestSafeModify(t *testing.T) {
	cases := []struct {
		name  string
		start float64
		delta float64
		want  float64
	}{
		{name: "overdraw clamps to zero", start: 30, delta: -40, want: 0},
		{name: "exact subtraction", start: 40, delta: -40, want: 0},
		{name: "partial subtraction", start: 100, delta: -35.5, want: 64.5},
		{name: "addition", start: 10, delta: 5, want: 15},
		{name: "negative current resets to zero", start: -5, delta: -1, want: 0},
	}
	for _, c := range cases {
		l := newTestLedger(&bytes.Buffer{})
		l.SetValue(StatResources, c.start)
		l.SafeModify(StatResources, c.delta)
		if got := l.Get(StatResources); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestUnknownMutationIsNoOpWithWarning(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLedger(&buf)
	l.Modify("Power", 1)
	l.SafeModify("Power", -1)
	l.SetValue("Power", 3)
	if n := len(l.Stats()); n != 2 {
		t.Fatalf("stats=%d want 2: mutation must not create stats", n)
	}
	if n := strings.Count(buf.String(), "stat Power not found"); n != 3 {
		t.Fatalf("warnings=%d want 3: %q", n, buf.String())
	}
	if got := l.Get(StatBudget); got != 100 {
		t.Fatalf("Budget=%v want untouched 100", got)
	}
}

func TestStatsSortedAndReset(t *testing.T) {
	l := newTestLedger(&bytes.Buffer{})
	l.SetValue(StatBudget, 1)
	stats := l.Stats()
	if len(stats) != 2 || stats[0].Name != StatBudget || stats[1].Name != StatResources {
		t.Fatalf("Stats()=%v", stats)
	}
	if stats[0].Current != 1 || stats[0].Base != 100 {
		t.Fatalf("Budget stat=%+v", stats[0])
	}
	l.Reset()
	if got := l.Get(StatBudget); got != 100 {
		t.Fatalf("after Reset Budget=%v want 100", got)
	}
}
