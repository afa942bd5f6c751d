package tracker

// Phase is the lifecycle position of a tracked thread.
type Phase string

const (
	PhaseDiscovered        Phase = "discovered"
	PhaseOPPending         Phase = "op_pending"
	PhaseOPReplied         Phase = "op_replied"
	PhaseCommentMonitoring Phase = "comment_monitoring"
	PhaseComplete          Phase = "complete"
)

var phaseTransitions = map[Phase]map[Phase]bool{
	PhaseDiscovered: {
		PhaseOPPending: true,
	},
	PhaseOPPending: {
		PhaseOPReplied: true,
		PhaseComplete:  true, // abandoned or expired
	},
	PhaseOPReplied: {
		PhaseCommentMonitoring: true,
		PhaseComplete:          true,
	},
	PhaseCommentMonitoring: {
		PhaseComplete: true,
	},
}

// CanTransition reports whether a thread may move from one phase to another.
func CanTransition(from, to Phase) bool {
	if from == to {
		return true
	}
	return phaseTransitions[from][to]
}
