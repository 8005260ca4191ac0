package embed

// State is a step of the generator's page loop.
type State int

const (
	StateIdle State = iota
	StatePaging
	StateEmbedding
	StateWritingBack
	StateDone
	StateFailed
	// StateStopped means the loop ended between pages because the context
	// was cancelled or the page limit was reached. Rerunning resumes.
	StateStopped
)

var stateNames = [...]string{
	StateIdle:        "IDLE",
	StatePaging:      "PAGING",
	StateEmbedding:   "EMBEDDING",
	StateWritingBack: "WRITING_BACK",
	StateDone:        "DONE",
	StateFailed:      "FAILED",
	StateStopped:     "STOPPED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether the loop has ended.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateStopped
}
