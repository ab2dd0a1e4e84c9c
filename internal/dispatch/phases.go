package dispatch

import "github.com/nlstep/nlstep/pkg/schema"

// Phase is the dispatcher's position in the per-step lifecycle. Every step
// walks Idle -> Classifying -> Executing -> Updating -> Reporting -> Idle;
// assertion steps skip Updating because they never change the session.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseClassifying Phase = "classifying"
	PhaseExecuting   Phase = "executing"
	PhaseUpdating    Phase = "updating"
	PhaseReporting   Phase = "reporting"
)

// validPhaseTransitions defines the allowed phase order.
var validPhaseTransitions = map[Phase][]Phase{
	PhaseIdle:        {PhaseClassifying},
	PhaseClassifying: {PhaseExecuting, PhaseReporting},
	PhaseExecuting:   {PhaseUpdating, PhaseReporting},
	PhaseUpdating:    {PhaseReporting},
	PhaseReporting:   {PhaseIdle},
}

func isValidPhaseTransition(from, to Phase) bool {
	for _, a := range validPhaseTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// advance moves the dispatcher to the next phase, guarding against
// out-of-order use.
func (d *Dispatcher) advance(to Phase) error {
	if !isValidPhaseTransition(d.phase, to) {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"invalid dispatch phase transition: %s -> %s", d.phase, to)
	}
	d.phase = to
	return nil
}
