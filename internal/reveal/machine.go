// Package reveal sequences a sampled draw one element at a time.
//
// Machine is the pure state machine; Scheduler drives it from a ticker.
package reveal

import (
	"errors"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/matrix"
)

// State is the reveal lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateSettling State = "settling"
)

// ErrBusy is returned when a reset is requested mid-sequence.
var ErrBusy = errors.New("reveal: sequence is running")

// Snapshot is a consumer view of the machine. Numbers and Special only hold
// what has been revealed so far.
type Snapshot struct {
	State      State       `json:"state"`
	Matrix     matrix.Type `json:"matrix,omitempty"`
	Step       int         `json:"step"`
	TotalSteps int         `json:"totalSteps"`
	Numbers    []int       `json:"numbers"`
	Special    *int        `json:"special,omitempty"`
	Complete   bool        `json:"complete"`
}

// Machine holds one reveal sequence. The zero value is Idle.
type Machine struct {
	state  State
	matrix matrix.Type
	draw   *draw.Draw
	main   int
	step   int
	total  int
}

// Start begins revealing d. It returns false, leaving the machine untouched,
// unless the machine is Idle.
func (m *Machine) Start(cfg matrix.Config, d draw.Draw) bool {
	if m.State() != StateIdle {
		return false
	}
	c := d.Clone()
	m.state = StateRunning
	m.matrix = cfg.Type
	m.draw = &c
	m.main = len(c.Numbers)
	m.step = 0
	m.total = len(c.Elements())
	return true
}

// Tick reveals the next element. It is a no-op outside Running.
func (m *Machine) Tick() (int, bool) {
	if m.state != StateRunning {
		return 0, false
	}
	v := m.draw.Elements()[m.step]
	m.step++
	if m.step >= m.total {
		m.state = StateSettling
	}
	return v, true
}

// CooldownElapsed moves Settling to Idle. The revealed draw is kept until
// Reset or the next Start.
func (m *Machine) CooldownElapsed() bool {
	if m.state != StateSettling {
		return false
	}
	m.state = StateIdle
	return true
}

// Reset clears the step and the stored draw.
func (m *Machine) Reset() error {
	if m.state == StateRunning {
		return ErrBusy
	}
	*m = Machine{}
	return nil
}

func (m *Machine) State() State {
	if m.state == "" {
		return StateIdle
	}
	return m.state
}

func (m *Machine) Step() int       { return m.step }
func (m *Machine) TotalSteps() int { return m.total }

// Draw returns the full draw once every element has been revealed.
func (m *Machine) Draw() (draw.Draw, bool) {
	if m.draw == nil || m.step < m.total {
		return draw.Draw{}, false
	}
	return m.draw.Clone(), true
}

func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:      m.State(),
		Matrix:     m.matrix,
		Step:       m.step,
		TotalSteps: m.total,
		Numbers:    []int{},
		Complete:   m.draw != nil && m.step >= m.total,
	}
	if m.draw == nil {
		return s
	}
	shown := min(m.step, m.main)
	s.Numbers = append(s.Numbers, m.draw.Numbers[:shown]...)
	if m.step > m.main && m.draw.Special != nil {
		v := *m.draw.Special
		s.Special = &v
	}
	return s
}
