package domain

// Status is the traversal engine's state machine position.
type Status string

const (
	// StatusAtNode means the engine is positioned at a single node awaiting
	// the next step.
	StatusAtNode Status = "at_node"
	// StatusBranching means more than one outgoing edge was eligible; the
	// eligible targets each get an independent sub-traversal.
	StatusBranching Status = "branching"
	// StatusTerminated means no outgoing edge of the last visited node was
	// eligible.
	StatusTerminated Status = "terminated"
	// StatusFailed means the last step failed; Failure carries the reason.
	StatusFailed Status = "failed"
)

// Failure describes why a session failed, in operator terms: the failing
// node, the failure kind, and the message. Raw internals stay out of it.
type Failure struct {
	NodeID  string `json:"node_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// State is the full session-local traversal state. It is owned by one
// session; branch forks receive independent clones.
type State struct {
	SessionID string `json:"session_id"`

	// Current is the node the engine is positioned at (StatusAtNode) or the
	// node whose outgoing edges fanned out (StatusBranching).
	Current string `json:"current"`
	Status  Status `json:"status"`

	// EligibleTargets is populated when Status is StatusBranching.
	EligibleTargets []string `json:"eligible_targets,omitempty"`

	Context *Context        `json:"-"`
	Visited map[string]bool `json:"visited"`

	// Path is the conversation record: one entry per visited node, in
	// visitation order.
	Path []StepRecord `json:"path"`

	// Attempts counts step attempts at the current node. Reset to zero on a
	// successful step; incremented on a retryable failure.
	Attempts int `json:"attempts"`

	// Branch labels the sub-traversal this state belongs to ("" on the
	// trunk). Persisted step rows carry it so a replay can tell branch
	// records apart.
	Branch string `json:"branch,omitempty"`

	Failure *Failure `json:"failure,omitempty"`
}

// NewState positions a fresh session at the graph entry node with an empty
// context.
func NewState(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		Current:   EntryNodeID,
		Status:    StatusAtNode,
		Context:   NewContext(),
		Visited:   make(map[string]bool),
	}
}

// Clone returns an independent copy of the state. Branch sub-traversals and
// step execution both work on clones so a failed or cancelled step never
// leaves partial writes visible.
func (s *State) Clone() *State {
	next := *s
	next.Context = s.Context.Clone()
	next.Visited = make(map[string]bool, len(s.Visited))
	for k, v := range s.Visited {
		next.Visited[k] = v
	}
	next.Path = append([]StepRecord(nil), s.Path...)
	next.EligibleTargets = append([]string(nil), s.EligibleTargets...)
	if s.Failure != nil {
		f := *s.Failure
		next.Failure = &f
	}
	return &next
}

// Terminal reports whether the session has finished, successfully or not.
func (s *State) Terminal() bool {
	return s.Status == StatusTerminated || s.Status == StatusFailed
}
