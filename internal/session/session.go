// Package session runs the capture/scroll loop against a device.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"jordanella.com/scrollcap/internal/adb"
	"jordanella.com/scrollcap/internal/config"
	"jordanella.com/scrollcap/internal/convergence"
	"jordanella.com/scrollcap/internal/logging"
	"jordanella.com/scrollcap/internal/sink"
)

// ErrAborted wraps the cause of a run that could not proceed
var ErrAborted = errors.New("capture session aborted")

// Recorder persists run history. *database.DB satisfies it.
type Recorder interface {
	StartRun(id, mode, address string, maxPages int, startedAt time.Time) error
	RecordPage(runID string, pageIndex int, signature string, newCount int, artifact string, capturedAt time.Time) error
	FinishRun(runID, status, stopReason string, pages, lines int, completedAt time.Time) error
}

// Session owns one end-to-end run. It is not safe for concurrent use
// and is meant to be run once.
type Session struct {
	cfg      config.Config
	device   adb.Device
	recorder Recorder
	sleeper  Sleeper
	rng      *rand.Rand
	now      func() time.Time
	log      *logging.Logger
	onPage   func(Observation)

	state State
	runID string
}

// Option configures a Session
type Option func(*Session)

// WithRecorder records the run in a ledger
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithSleeper replaces the wall-clock sleeper
func WithSleeper(sl Sleeper) Option {
	return func(s *Session) { s.sleeper = sl }
}

// WithRand sets the source for delay jitter
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithObserver is called after every page with that page's observation
func WithObserver(fn func(Observation)) Option {
	return func(s *Session) { s.onPage = fn }
}

// WithRunID fixes the run identifier instead of generating one
func WithRunID(id string) Option {
	return func(s *Session) { s.runID = id }
}

// New creates a session. cfg is copied; later changes to the caller's value have no effect.
func New(cfg config.Config, device adb.Device, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg,
		device:  device,
		sleeper: timerSleeper{},
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5c011ca9)),
		now:     time.Now,
		state:   StateInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.NewLogger("Session")
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.log = s.log.WithContext(map[string]interface{}{"run_id": s.runID})
	return s
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// RunID returns the run identifier
func (s *Session) RunID() string {
	return s.runID
}

func (s *Session) setState(next State) {
	s.log.DebugWithContext("State transition", map[string]interface{}{
		"from": s.state.String(),
		"to":   next.String(),
	})
	s.state = next
}

// strategy is one capture mode's acquisition, convergence and output.
type strategy interface {
	capture(ctx context.Context, page int) (Observation, convergence.Decision)
	signature(obs Observation) (string, int)
	finish(sum *Summary)
}

// Run executes the loop until convergence, the page cap, cancellation or a
// connection failure. Only a connection failure (or an invalid config)
// returns an error; it wraps ErrAborted and no pages are produced.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	if s.state != StateInit {
		return Summary{}, fmt.Errorf("%w: session already ran", ErrAborted)
	}

	sum := Summary{
		RunID:     s.runID,
		Mode:      s.cfg.Mode,
		StartedAt: s.now(),
	}

	if err := s.cfg.Validate(); err != nil {
		return s.abort(sum, "invalid configuration", err)
	}

	strat, err := s.newStrategy()
	if err != nil {
		return s.abort(sum, "output not writable", err)
	}

	s.setState(StateConnecting)
	s.log.InfoWithContext("Connecting to device", map[string]interface{}{
		"address":   s.cfg.Address,
		"mode":      string(s.cfg.Mode),
		"threshold": s.cfg.Threshold(),
	})
	result, err := s.device.Connect(ctx)
	if err != nil {
		return s.abort(sum, "connection failed", err)
	}
	s.log.InfoWithContext("Device ready", map[string]interface{}{"status": result.Status.String()})

	s.ledgerStart(sum.StartedAt)

	if s.cfg.StartDelay > 0 {
		s.log.InfoWithContext("Open the list on the device; starting shortly", map[string]interface{}{
			"delay": s.cfg.StartDelay.String(),
		})
		if err := s.sleeper.Sleep(ctx, s.cfg.StartDelay); err != nil {
			return s.finish(sum, strat, StatusAborted, "cancelled before first capture"), nil
		}
	}

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return s.finish(sum, strat, StatusAborted, "cancelled"), nil
		}

		s.setState(StateCapturing)
		obs, decision := strat.capture(ctx, page)
		sum.Pages = page
		s.recordPage(strat, obs)
		if s.onPage != nil {
			s.onPage(obs)
		}

		if decision == convergence.Converged {
			return s.finish(sum, strat, StatusConverged, "no new content"), nil
		}
		if page >= s.cfg.MaxPages {
			return s.finish(sum, strat, StatusMaxPages, fmt.Sprintf("reached %d pages", s.cfg.MaxPages)), nil
		}

		s.setState(StateScrolling)
		if err := s.scroll(ctx, page); err != nil {
			return s.finish(sum, strat, StatusAborted, "cancelled"), nil
		}
	}
}

// scroll paces, swipes and waits for the view to settle. It only returns
// an error when ctx is done; a failed swipe is logged and absorbed.
func (s *Session) scroll(ctx context.Context, page int) error {
	wait := jitter(s.rng, s.cfg.DelayMin, s.cfg.DelayMax)
	s.log.DebugWithContext("Waiting before scroll", map[string]interface{}{"page": page, "wait": wait.String()})
	if err := s.sleeper.Sleep(ctx, wait); err != nil {
		return err
	}

	if err := s.device.InjectScroll(ctx, s.cfg.Swipe.Params()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.ErrorWithContext("Scroll failed", err, map[string]interface{}{"page": page})
	}

	return s.sleeper.Sleep(ctx, s.cfg.SettleDelay)
}

func (s *Session) newStrategy() (strategy, error) {
	if s.cfg.Mode == config.ModeText {
		out, err := sink.NewTextSink(s.cfg.OutputDir, s.cfg.TextFile)
		if err != nil {
			return nil, err
		}
		return &textStrategy{
			s:        s,
			sink:     out,
			detector: convergence.NewTextDetector(s.cfg.Threshold()),
		}, nil
	}

	out, err := sink.NewImageSink(s.cfg.OutputDir, s.cfg.FilePrefix, s.cfg.Timestamped)
	if err != nil {
		return nil, err
	}
	return &imageStrategy{
		s:        s,
		sink:     out,
		detector: convergence.NewSizeDetector(s.cfg.Threshold()),
	}, nil
}

// abort ends a run that never reached the loop. Nothing is flushed.
func (s *Session) abort(sum Summary, reason string, cause error) (Summary, error) {
	s.setState(StateAborted)
	sum.Status = StatusAborted
	sum.Reason = reason
	sum.FinishedAt = s.now()

	s.log.ErrorWithContext("Session aborted", cause, map[string]interface{}{"reason": reason})

	if s.recorder != nil && !errors.Is(cause, config.ErrInvalid) {
		s.ledgerStart(sum.StartedAt)
		s.ledgerFinish(sum)
	}
	return sum, fmt.Errorf("%w: %s: %w", ErrAborted, reason, cause)
}

// finish flushes outputs and reports the terminal state.
func (s *Session) finish(sum Summary, strat strategy, status Status, reason string) Summary {
	if status == StatusAborted {
		s.setState(StateAborted)
	} else {
		s.setState(StateConverged)
	}

	sum.Status = status
	sum.Reason = reason
	strat.finish(&sum)
	sum.FinishedAt = s.now()

	manifest := sink.Manifest{
		RunID:      sum.RunID,
		Mode:       string(sum.Mode),
		Address:    s.cfg.Address,
		Status:     string(sum.Status),
		StopReason: sum.Reason,
		Pages:      sum.Pages,
		Lines:      sum.Lines,
		TextFile:   sum.TextFile,
		Artifacts:  sum.Artifacts,
		StartedAt:  sum.StartedAt,
		FinishedAt: sum.FinishedAt,
	}
	if _, err := sink.WriteManifest(s.cfg.OutputDir, manifest); err != nil {
		s.log.Error("Failed to write manifest", err)
	}

	s.ledgerFinish(sum)

	fields := map[string]interface{}{
		"pages":    sum.Pages,
		"duration": sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond).String(),
	}
	if sum.Mode == config.ModeText {
		fields["lines"] = sum.Lines
		fields["file"] = sum.TextFile
	} else {
		fields["artifacts"] = len(sum.Artifacts)
	}

	switch status {
	case StatusConverged:
		s.log.InfoWithContext("Converged: no further content to capture", fields)
	case StatusMaxPages:
		s.log.InfoWithContext("Stopped: max pages reached", fields)
	default:
		s.log.WarnWithContext("Aborted: "+reason, fields)
	}
	return sum
}

func (s *Session) ledgerStart(at time.Time) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.StartRun(s.runID, string(s.cfg.Mode), s.cfg.Address, s.cfg.MaxPages, at); err != nil {
		s.log.Error("Failed to record run start", err)
	}
}

func (s *Session) recordPage(strat strategy, obs Observation) {
	if s.recorder == nil {
		return
	}
	sig, newCount := strat.signature(obs)
	if err := s.recorder.RecordPage(s.runID, obs.Index, sig, newCount, obs.Artifact, s.now()); err != nil {
		s.log.ErrorWithContext("Failed to record page", err, map[string]interface{}{"page": obs.Index})
	}
}

func (s *Session) ledgerFinish(sum Summary) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.FinishRun(s.runID, string(sum.Status), sum.Reason, sum.Pages, sum.Lines, sum.FinishedAt); err != nil {
		s.log.Error("Failed to record run result", err)
	}
}
