package testutil

import (
	"context"
	"testing"
)

// Scenario runs Given/When/Then steps as nested subtests. Every step shares
// one Clock, so writes made in later steps land strictly after earlier ones
// and ordering assertions hold without sleeping.
type Scenario struct {
	t     *testing.T
	clock *Clock
}

// NewScenario starts a scenario whose clock begins at FixedTime.
func NewScenario(t *testing.T) *Scenario {
	return &Scenario{t: t, clock: NewClock(FixedTime)}
}

func (s *Scenario) T() *testing.T {
	return s.t
}

// Ctx returns a request context pinned to the next instant of the shared clock.
func (s *Scenario) Ctx() context.Context {
	return s.clock.Next()
}

func (s *Scenario) Given(desc string, fn func(s *Scenario)) {
	s.step("Given "+desc, fn)
}

func (s *Scenario) When(desc string, fn func(s *Scenario)) {
	s.step("When "+desc, fn)
}

func (s *Scenario) Then(desc string, fn func(s *Scenario)) {
	s.step("Then "+desc, fn)
}

func (s *Scenario) step(name string, fn func(s *Scenario)) {
	s.t.Helper()
	s.t.Run(name, func(t *testing.T) {
		fn(&Scenario{t: t, clock: s.clock})
	})
}
