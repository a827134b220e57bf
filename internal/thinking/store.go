package thinking

// Store holds the ordered history of steps and the branch index.
// It has no locking of its own; the Processor serializes access.
type Store struct {
	history  []Step
	branches map[string][]Step
	order    []string // branch ids in first-creation order
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		branches: make(map[string][]Step),
	}
}

// Append adds a step to the history.
func (s *Store) Append(step Step) {
	s.history = append(s.history, step.clone())
}

// AppendToBranch files a step under branchID, creating the branch if needed.
func (s *Store) AppendToBranch(branchID string, step Step) {
	if _, ok := s.branches[branchID]; !ok {
		s.branches[branchID] = nil
		s.order = append(s.order, branchID)
	}
	s.branches[branchID] = append(s.branches[branchID], step.clone())
}

// HistoryLength returns the number of steps recorded.
func (s *Store) HistoryLength() int {
	return len(s.history)
}

// BranchIDs returns the known branch ids in creation order. Never nil.
func (s *Store) BranchIDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// History returns a copy of every recorded step in arrival order.
func (s *Store) History() []Step {
	return cloneSteps(s.history)
}

// Branch returns a copy of the steps filed under id, or nil if unknown.
func (s *Store) Branch(id string) []Step {
	steps, ok := s.branches[id]
	if !ok {
		return nil
	}
	return cloneSteps(steps)
}

func cloneSteps(in []Step) []Step {
	out := make([]Step, len(in))
	for i, st := range in {
		out[i] = st.clone()
	}
	return out
}
