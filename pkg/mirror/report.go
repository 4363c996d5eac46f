package mirror

import (
	"time"

	"github.com/matzehuels/wheelhouse/pkg/provenance"
)

// Skip is a dependency edge that resolved to nothing.
type Skip struct {
	Requirement string
	RequiredBy  string
	Reason      string
}

// Failure is one file that could not be mirrored.
type Failure struct {
	Requirement string
	Filename    string
	Err         error
}

// Report summarizes a run. A report is returned even when Run fails, and
// then covers the waves completed so far.
type Report struct {
	RunID    string
	Resolved []string
	Skipped  []Skip
	Failures []Failure

	Fetched    int // Files transferred
	Reused     int // Files already present with a matching digest
	Unverified int // Files kept without an advertised digest
	Waves      int

	Graph    *provenance.Graph
	Duration time.Duration
}

// Failed returns the number of files that could not be mirrored.
func (r *Report) Failed() int { return len(r.Failures) }
