package session

import (
	"time"

	"jordanella.com/scrollcap/internal/config"
)

// State is a Capture Session lifecycle state
type State int

const (
	StateInit State = iota
	StateConnecting
	StateCapturing
	StateScrolling
	StateConverged
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateCapturing:
		return "capturing"
	case StateScrolling:
		return "scrolling"
	case StateConverged:
		return "converged"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Status tells why a run ended
type Status string

const (
	StatusConverged Status = "converged"
	StatusMaxPages  Status = "max_pages"
	StatusAborted   Status = "aborted"
)

// Observation is what one capture produced, reported to observers in page order
type Observation struct {
	Index     int      // 1-based page index
	Size      int64    // image mode: captured byte length
	NewLines  []string // text mode: lines not seen on earlier pages
	Lines     []string // text mode: all lines extracted from this page
	Artifact  string   // image mode: persisted path, empty if none
	Duplicate bool     // image mode: capture was the discarded trailing duplicate
	Failed    bool     // capture or parse failed; recorded as a degraded observation
}

// Summary reports the outcome of a run
type Summary struct {
	RunID      string
	Mode       config.Mode
	Status     Status
	Reason     string
	Pages      int      // observations processed
	Lines      int      // text mode: distinct lines accumulated
	Artifacts  []string // image mode: persisted pages in capture order
	TextFile   string   // text mode: path of the line list
	StartedAt  time.Time
	FinishedAt time.Time
}
