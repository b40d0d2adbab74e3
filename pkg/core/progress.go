package core

// Phase is one state of the analysis pipeline state machine.
type Phase string

// Pipeline phases. PhaseDone doubles as the idle state before a run starts;
// PhaseDone and PhaseError are terminal.
const (
	PhasePlanning     Phase = "planning"
	PhaseExecuting    Phase = "executing"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseDone         Phase = "done"
	PhaseError        Phase = "error"
)

// Progress is a snapshot of pipeline progress. The orchestrator owns the
// live value; observers always receive copies, so a Progress in consumer
// hands is immutable and possibly slightly stale.
type Progress struct {
	Phase Phase `json:"phase"`

	// TotalQueries is the number of plan items in the current run.
	TotalQueries int `json:"totalQueries"`

	// CompletedQueries counts plan items whose execution has finished
	// (successfully or not). Monotonically non-decreasing within a run
	// and never exceeds TotalQueries.
	CompletedQueries int `json:"completedQueries"`

	// CurrentQueryTitle names the plan item being executed. Empty outside
	// the executing phase.
	CurrentQueryTitle string `json:"currentQueryTitle,omitempty"`
}

// Terminal reports whether the snapshot is in a terminal phase.
func (p Progress) Terminal() bool {
	return p.Phase == PhaseDone || p.Phase == PhaseError
}
