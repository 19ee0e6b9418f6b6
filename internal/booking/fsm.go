// Package booking provides the FSM-based viewing request wizard.
package booking

// Step is the current step of the wizard.
type Step string

const (
	StepSchedule Step = "schedule"
	StepReview   Step = "review"
	StepDone     Step = "done"
	StepClosed   Step = "closed"
)

// Number returns the 1-based position shown to the user; closed is 0.
func (s Step) Number() int {
	switch s {
	case StepSchedule:
		return 1
	case StepReview:
		return 2
	case StepDone:
		return 3
	}
	return 0
}

// FSM holds the legal step moves.
type FSM struct {
	transitions map[Step][]Step
}

// NewFSM creates the wizard FSM. Done has no way back; closed is final.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[Step][]Step{
			StepSchedule: {StepReview, StepClosed},
			StepReview:   {StepDone, StepSchedule, StepClosed},
			StepDone:     {StepClosed},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to Step) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Prompts for different steps.
var StepPrompts = map[Step]string{
	StepSchedule: "Pick a day and a time slot for the viewing.",
	StepReview:   "Check the viewing details. The owner will confirm or decline your request.",
	StepDone:     "Your viewing request was sent. You will be notified when the owner answers.",
	StepClosed:   "Viewing request discarded.",
}
