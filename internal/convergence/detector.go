// Package convergence decides when paging through a list has stopped
// producing new content.
package convergence

// Decision is the outcome of feeding one observation to a detector
type Decision int

const (
	Continue Decision = iota
	Converged
)

func (d Decision) String() string {
	if d == Converged {
		return "converged"
	}
	return "continue"
}

// Default no-progress thresholds. Text dumps reflow more than raw frames,
// so the text strategy waits for a longer streak.
const (
	DefaultSizeThreshold = 2
	DefaultTextThreshold = 3
)

// SizeDetector signals convergence once the same non-zero frame size is seen
// on threshold consecutive repeats.
type SizeDetector struct {
	threshold   int
	previous    int64
	hasPrevious bool
	unchanged   int
	converged   bool
}

// NewSizeDetector creates a byte-size detector; threshold < 1 uses the default
func NewSizeDetector(threshold int) *SizeDetector {
	if threshold < 1 {
		threshold = DefaultSizeThreshold
	}
	return &SizeDetector{threshold: threshold}
}

// Observe feeds one frame size. Once Converged is returned the detector stays converged.
func (d *SizeDetector) Observe(size int64) Decision {
	if d.converged {
		return Converged
	}

	if d.hasPrevious && size == d.previous && size > 0 {
		d.unchanged++
		if d.unchanged >= d.threshold {
			d.converged = true
		}
	} else {
		d.unchanged = 0
	}
	d.previous = size
	d.hasPrevious = true

	if d.converged {
		return Converged
	}
	return Continue
}

// Streak returns the current count of consecutive unchanged observations
func (d *SizeDetector) Streak() int {
	return d.unchanged
}

// TextDetector accumulates distinct lines across pages and signals
// convergence after threshold consecutive pages add nothing new.
type TextDetector struct {
	threshold int
	seen      *OrderedSet
	streak    int
	converged bool
}

// NewTextDetector creates a text-set detector; threshold < 1 uses the default
func NewTextDetector(threshold int) *TextDetector {
	if threshold < 1 {
		threshold = DefaultTextThreshold
	}
	return &TextDetector{threshold: threshold, seen: NewOrderedSet()}
}

// Observe merges one page of lines and returns the lines that were new,
// in page order. After convergence it returns (nil, Converged) and merges nothing.
func (d *TextDetector) Observe(lines []string) ([]string, Decision) {
	if d.converged {
		return nil, Converged
	}

	added := d.seen.AddAll(lines)
	if len(added) == 0 {
		d.streak++
		if d.streak >= d.threshold {
			d.converged = true
			return added, Converged
		}
	} else {
		d.streak = 0
	}
	return added, Continue
}

// Streak returns the current count of consecutive pages with no new lines
func (d *TextDetector) Streak() int {
	return d.streak
}

// Lines returns a copy of every distinct line seen, in first-seen order
func (d *TextDetector) Lines() []string {
	return d.seen.Items()
}

// Len returns the number of distinct lines accumulated
func (d *TextDetector) Len() int {
	return d.seen.Len()
}
