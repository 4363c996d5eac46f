package mirror

import "sync"

// State is the lifecycle of one requirement string within a run.
type State int

const (
	StateUnvisited State = iota
	StateInFlight
	StateResolved
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in-flight"
	case StateResolved:
		return "resolved"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "unvisited"
	}
}

// ProcessedSet tracks requirement strings for one run. Claim is atomic, so
// at most one worker resolves a given string. A string counts as processed
// only once it reaches StateResolved, after its listing was retrieved and
// every selected file was attempted.
type ProcessedSet struct {
	mu     sync.Mutex
	states map[string]State
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{states: make(map[string]State)}
}

// Claim moves key from unvisited to in-flight and reports whether the
// caller won it.
func (p *ProcessedSet) Claim(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.states[key] != StateUnvisited {
		return false
	}
	p.states[key] = StateInFlight
	return true
}

// Finish records the terminal state of a claimed key.
func (p *ProcessedSet) Finish(key string, s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[key] = s
}

// State returns the current state of key.
func (p *ProcessedSet) State(key string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[key]
}

// Processed reports whether key was fully resolved.
func (p *ProcessedSet) Processed(key string) bool {
	return p.State(key) == StateResolved
}

// Len returns the number of resolved keys.
func (p *ProcessedSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.states {
		if s == StateResolved {
			n++
		}
	}
	return n
}
