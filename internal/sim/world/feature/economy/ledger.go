// Package economy holds the city's named stats (budget, materials, ...).
package economy

import (
	"log"
	"sort"
)

const (
	StatBudget    = "Budget"
	StatResources = "Resources"
)

type StatDef struct {
	Name string  `json:"name" yaml:"name"`
	Base float64 `json:"base" yaml:"base"`
}

type Stat struct {
	Name    string  `json:"name"`
	Base    float64 `json:"base"`
	Current float64 `json:"current"`
}

// Ledger is a name-keyed stat table. Unknown names read as zero and are
// ignored (with a warning) on mutation.
type Ledger struct {
	stats map[string]*Stat
	log   *log.Logger
}

func NewLedger(defs []StatDef, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	l := &Ledger{
		stats: make(map[string]*Stat, len(defs)),
		log:   logger,
	}
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		l.stats[d.Name] = &Stat{Name: d.Name, Base: d.Base, Current: d.Base}
	}
	return l
}

func (l *Ledger) Get(name string) float64 {
	if s, ok := l.stats[name]; ok {
		return s.Current
	}
	return 0
}

// Modify adds delta unconditionally; the result may be negative.
func (l *Ledger) Modify(name string, delta float64) {
	if s := l.lookup(name); s != nil {
		s.Current += delta
	}
}

// SafeModify adds delta, flooring at zero when a subtraction exceeds the
// current value.
func (l *Ledger) SafeModify(name string, delta float64) {
	s := l.lookup(name)
	if s == nil {
		return
	}
	if delta < 0 && -delta > s.Current {
		s.Current = 0
		return
	}
	s.Current += delta
}

func (l *Ledger) SetValue(name string, v float64) {
	if s := l.lookup(name); s != nil {
		s.Current = v
	}
}

// Reset restores every stat to its base value.
func (l *Ledger) Reset() {
	for _, s := range l.stats {
		s.Current = s.Base
	}
}

// Stats returns a copy of all stats sorted by name.
func (l *Ledger) Stats() []Stat {
	out := make([]Stat, 0, len(l.stats))
	for _, s := range l.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (l *Ledger) lookup(name string) *Stat {
	s, ok := l.stats[name]
	if !ok {
		l.log.Printf("stat %s not found", name)
		return nil
	}
	return s
}
