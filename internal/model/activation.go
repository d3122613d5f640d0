package model

import "fmt"

// Step is a lifecycle step a resource can be driven through.
type Step string

const (
	StepActivate   Step = "ACTIVATE"
	StepFirstStart Step = "FIRSTSTART"
	StepStart      Step = "START"
	StepStop       Step = "STOP"
	StepDelete     Step = "DELETE"
)

// Steps returns all the lifecycle steps.
func Steps() []Step {
	return []Step{StepActivate, StepFirstStart, StepStart, StepStop, StepDelete}
}

// Validate checks the step is a known one.
func (s Step) Validate() error {
	for _, known := range Steps() {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("unknown step %q: %w", s, ErrNotValid)
}

// IsTeardown returns true for the steps that run dependents before their dependencies.
func (s Step) IsTeardown() bool {
	return s == StepStop || s == StepDelete
}

// ActivationContext carries the caller information for an activation.
type ActivationContext struct {
	// EnvLabel is the environment the resources belong to, used to derive provider names.
	EnvLabel string
	// CorrelationID identifies the whole activation on logs and on providers.
	CorrelationID string
}

func (a ActivationContext) String() string {
	return fmt.Sprintf("env=%s correlation=%s", a.EnvLabel, a.CorrelationID)
}
