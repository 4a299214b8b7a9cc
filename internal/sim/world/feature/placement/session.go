// Package placement implements the building placement session: preview a
// footprint under the cursor, validate it against the grid, and commit it
// while debiting the ledger.
package placement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"cityforge.ai/internal/sim/world/feature/economy"
	"cityforge.ai/internal/sim/world/grid"
	"cityforge.ai/internal/sim/world/logic/blueprint"
)

type State int

const (
	Idle State = iota
	Previewing
	Committed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Previewing:
		return "PREVIEWING"
	case Committed:
		return "COMMITTED"
	case Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrSessionActive     = errors.New("placement already in progress")
	ErrNotPreviewing     = errors.New("no placement in progress")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidPlacement  = errors.New("cannot build here")
	ErrBadBuilding       = errors.New("invalid building")
)

const (
	MsgInsufficientFunds = "Not enough money or materials!"
	MsgCannotBuild       = "Cannot build here!"
)

var (
	ValidColor   = mgl32.Vec4{0, 1, 0, 0.5}
	InvalidColor = mgl32.Vec4{1, 0, 0, 0.5}
)

type Building struct {
	ID           string
	Footprint    grid.Footprint
	Cost         float64
	ResourceCost float64
	HeightOffset float64
}

func (b Building) costs() []blueprint.StatCost {
	return []blueprint.StatCost{
		{Stat: economy.StatBudget, Amount: b.Cost},
		{Stat: economy.StatResources, Amount: b.ResourceCost},
	}
}

type Grid interface {
	Snap(hit mgl64.Vec3, fp grid.Footprint) mgl64.Vec3
	FootprintValid(center mgl64.Vec3, fp grid.Footprint) bool
}

type Ledger interface {
	Get(name string) float64
	SafeModify(name string, delta float64)
}

type Notifier interface {
	Show(msg string, d time.Duration)
}

type Preview struct {
	Position mgl64.Vec3
	Rotation int // quarter turns, [0,3]
	Valid    bool
}

func (p Preview) Color() mgl32.Vec4 {
	if p.Valid {
		return ValidColor
	}
	return InvalidColor
}

// Placement is a committed building.
type Placement struct {
	ID         string
	BuildingID string
	Position   mgl64.Vec3
	Rotation   int // degrees
	Footprint  grid.Footprint
}

// Session is the single placement state machine. It is not safe for
// concurrent use; the world loop owns it.
type Session struct {
	grid      Grid
	ledger    Ledger
	notices   Notifier
	noticeFor time.Duration

	state    State
	last     State
	building Building
	preview  Preview
	cursor   mgl64.Vec3
}

func New(g Grid, l Ledger, n Notifier, noticeFor time.Duration) *Session {
	return &Session{grid: g, ledger: l, notices: n, noticeFor: noticeFor}
}

func (s *Session) State() State { return s.state }

// LastTransition is the most recent terminal state (Committed or Cancelled),
// or Idle if no session has ended yet.
func (s *Session) LastTransition() State { return s.last }

func (s *Session) Building() (Building, bool) {
	return s.building, s.state == Previewing
}

func (s *Session) Preview() (Preview, bool) {
	return s.preview, s.state == Previewing
}

// Footprint is the building's footprint after the preview rotation.
func (s *Session) Footprint() grid.Footprint {
	w, h := blueprint.RotatedFootprint(s.building.Footprint.W, s.building.Footprint.H, s.preview.Rotation)
	return grid.Footprint{W: w, H: h}
}

func (s *Session) Start(b Building) error {
	if s.state != Idle {
		return ErrSessionActive
	}
	if b.Footprint.W <= 0 || b.Footprint.H <= 0 {
		return fmt.Errorf("%w: footprint %dx%d", ErrBadBuilding, b.Footprint.W, b.Footprint.H)
	}
	if short := blueprint.Shortfall(b.costs(), s.ledger.Get); len(short) > 0 {
		s.notify(MsgInsufficientFunds)
		parts := make([]string, 0, len(short))
		for _, c := range short {
			parts = append(parts, fmt.Sprintf("%s short by %g", c.Stat, c.Amount))
		}
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, strings.Join(parts, ", "))
	}
	s.building = b
	s.preview = Preview{}
	s.state = Previewing
	s.place()
	return nil
}

// UpdatePreview moves the preview under cursor and re-evaluates validity.
// The world calls it every tick while previewing.
func (s *Session) UpdatePreview(cursor mgl64.Vec3) error {
	if s.state != Previewing {
		return ErrNotPreviewing
	}
	s.cursor = cursor
	s.place()
	return nil
}

// Rotate turns the preview by quarterTurns*90 degrees and re-validates with
// the rotated footprint.
func (s *Session) Rotate(quarterTurns int) error {
	if s.state != Previewing {
		return ErrNotPreviewing
	}
	s.preview.Rotation = blueprint.NormalizeRotation(s.preview.Rotation + quarterTurns)
	s.place()
	return nil
}

func (s *Session) Confirm() (Placement, error) {
	if s.state != Previewing {
		return Placement{}, ErrNotPreviewing
	}
	fp := s.Footprint()
	if !s.grid.FootprintValid(s.preview.Position, fp) {
		s.preview.Valid = false
		s.notify(MsgCannotBuild)
		return Placement{}, ErrInvalidPlacement
	}
	s.ledger.SafeModify(economy.StatBudget, -s.building.Cost)
	s.ledger.SafeModify(economy.StatResources, -s.building.ResourceCost)

	p := Placement{
		ID:         uuid.NewString(),
		BuildingID: s.building.ID,
		Position:   s.preview.Position,
		Rotation:   blueprint.Degrees(s.preview.Rotation),
		Footprint:  fp,
	}
	s.finish(Committed)
	return p, nil
}

func (s *Session) Cancel() error {
	if s.state != Previewing {
		return ErrNotPreviewing
	}
	s.finish(Cancelled)
	return nil
}

func (s *Session) place() {
	fp := s.Footprint()
	pos := s.grid.Snap(s.cursor, fp)
	pos[1] += s.building.HeightOffset
	s.preview.Position = pos
	s.preview.Valid = s.grid.FootprintValid(pos, fp)
}

// finish records the terminal state (Committed or Cancelled) and returns
// the session to Idle.
func (s *Session) finish(terminal State) {
	s.last = terminal
	s.building = Building{}
	s.preview = Preview{}
	s.state = Idle
}

func (s *Session) notify(msg string) {
	if s.notices != nil {
		s.notices.Show(msg, s.noticeFor)
	}
}
