package pipeline

// State is a pipeline state. Terminal states end a Process call.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateMaterialized State = "MATERIALIZED"
	StateExtracted    State = "EXTRACTED"
	StatePersisted    State = "PERSISTED"
	StateRelocated    State = "RELOCATED"

	StateUnrouted          State = "UNROUTED"
	StateMaterializeFailed State = "MATERIALIZE_FAILED"
	StateExtractionFailed  State = "EXTRACTION_FAILED"
	StatePersistedFailed   State = "PERSISTED_FAILED"
	StateRelocationFailed  State = "RELOCATION_FAILED"
)

// TerminalStates lists every state Process can finish in, success first.
var TerminalStates = []State{
	StateRelocated,
	StateUnrouted,
	StateMaterializeFailed,
	StateExtractionFailed,
	StatePersistedFailed,
	StateRelocationFailed,
}

// Succeeded reports whether s is the success terminal state.
func (s State) Succeeded() bool {
	return s == StateRelocated
}

// Quarantined reports whether reaching s quarantines the body.
func (s State) Quarantined() bool {
	switch s {
	case StateUnrouted, StateMaterializeFailed, StateExtractionFailed, StatePersistedFailed, StateRelocationFailed:
		return true
	}
	return false
}
