// Package session holds the passphrase gate and the explicit session value that replaces
// an ambient "unlocked" flag.
package session

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrWrongCode     = errors.New("that is not the right code")
	ErrGateCompleted = errors.New("gate is already unlocked")
	ErrNoCodes       = errors.New("gate needs at least one code")
)

// Gate checks a fixed sequence of codes, one step at a time. Codes are kept as bcrypt hashes.
// A Gate is immutable; the visitor's position is carried by an Attempt value.
type Gate struct {
	hashes [][]byte
}

// Attempt is a visitor's position in the gate.
type Attempt struct {
	Step     int  `json:"step"`
	Total    int  `json:"total"`
	Unlocked bool `json:"unlocked"`
}

// NewGate builds a gate from bcrypt hashes, in the order the codes must be entered.
func NewGate(hashes []string) (*Gate, error) {
	g := &Gate{}
	for i, h := range hashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("gate code %d: %w", i+1, err)
		}
		g.hashes = append(g.hashes, []byte(h))
	}
	if len(g.hashes) == 0 {
		return nil, ErrNoCodes
	}
	return g, nil
}

// Total returns the number of codes.
func (g *Gate) Total() int {
	return len(g.hashes)
}

// Start returns the attempt of a visitor who has entered nothing yet.
func (g *Gate) Start() Attempt {
	return Attempt{Total: g.Total()}
}

// Resume returns the attempt positioned at step, for callers that carry the step elsewhere.
func (g *Gate) Resume(step int) (Attempt, error) {
	if step < 0 || step >= g.Total() {
		return Attempt{}, fmt.Errorf("gate step %d out of range", step)
	}
	return Attempt{Step: step, Total: g.Total()}, nil
}

// Submit checks code against the current step. A wrong code keeps the step and returns ErrWrongCode.
// A right code on the last step unlocks.
func (g *Gate) Submit(a Attempt, code string) (Attempt, error) {
	if a.Unlocked {
		return a, ErrGateCompleted
	}
	if a.Step < 0 || a.Step >= g.Total() {
		return a, fmt.Errorf("gate step %d out of range", a.Step)
	}
	if bcrypt.CompareHashAndPassword(g.hashes[a.Step], []byte(code)) != nil {
		return a, ErrWrongCode
	}

	a.Total = g.Total()
	if a.Step == g.Total()-1 {
		a.Unlocked = true
		return a, nil
	}
	a.Step++
	return a, nil
}

// HashCode produces the value to put in the gate configuration for a plain code.
func HashCode(code string) (string, error) {
	return hashCodeWithCost(code, bcrypt.DefaultCost)
}

func hashCodeWithCost(code string, cost int) (string, error) {
	if code == "" {
		return "", errors.New("code cannot be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
