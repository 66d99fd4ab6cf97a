package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"jordanella.com/scrollcap/internal/adb"
	"jordanella.com/scrollcap/internal/config"
	"jordanella.com/scrollcap/internal/logging"
	"jordanella.com/scrollcap/internal/sink"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDevice serves scripted frames and dumps. Past the end of a script the
// last entry repeats, like a list that has stopped scrolling.
type fakeDevice struct {
	mu         sync.Mutex
	connectErr error
	frames     [][]byte
	frameErrs  map[int]error
	dumps      []string
	dumpErrs   map[int]error
	scrollErr  error
	captures   int
	dumpCalls  int
	scrolls    int
}

func (d *fakeDevice) Connect(ctx context.Context) (adb.ConnectResult, error) {
	if d.connectErr != nil {
		return adb.ConnectResult{Status: adb.ConnectFailed, Reason: d.connectErr.Error()}, d.connectErr
	}
	return adb.ConnectResult{Status: adb.Connected}, nil
}

func (d *fakeDevice) CaptureFrame(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captures++
	if err := d.frameErrs[d.captures]; err != nil {
		return nil, err
	}
	i := d.captures - 1
	if i >= len(d.frames) {
		i = len(d.frames) - 1
	}
	return d.frames[i], nil
}

func (d *fakeDevice) DumpUITree(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dumpCalls++
	if err := d.dumpErrs[d.dumpCalls]; err != nil {
		return nil, err
	}
	i := d.dumpCalls - 1
	if i >= len(d.dumps) {
		i = len(d.dumps) - 1
	}
	return []byte(d.dumps[i]), nil
}

func (d *fakeDevice) InjectScroll(ctx context.Context, swipe adb.SwipeParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrolls++
	return d.scrollErr
}

func (d *fakeDevice) RemoveRemoteArtifact(ctx context.Context, remotePath string) error {
	return nil
}

// recordingSleeper returns immediately and remembers what it was asked to wait.
type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

type fakeRecorder struct {
	started  []string
	pages    []int
	sigs     []string
	statuses []string
}

func (r *fakeRecorder) StartRun(id, mode, address string, maxPages int, startedAt time.Time) error {
	r.started = append(r.started, id)
	return nil
}

func (r *fakeRecorder) RecordPage(runID string, pageIndex int, signature string, newCount int, artifact string, capturedAt time.Time) error {
	r.pages = append(r.pages, pageIndex)
	r.sigs = append(r.sigs, signature)
	return nil
}

func (r *fakeRecorder) FinishRun(runID, status, stopReason string, pages, lines int, completedAt time.Time) error {
	r.statuses = append(r.statuses, status)
	return nil
}

func frame(size int) []byte {
	return bytes.Repeat([]byte{0x89}, size)
}

func dump(texts ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0">`)
	for _, t := range texts {
		fmt.Fprintf(&b, `<node class="android.widget.TextView" text="%s"/>`, t)
	}
	b.WriteString(`</hierarchy>`)
	return b.String()
}

func testConfig(t *testing.T, mode config.Mode) config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Mode = mode
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func newTestSession(cfg config.Config, dev adb.Device, sl Sleeper, opts ...Option) *Session {
	base := []Option{
		WithSleeper(sl),
		WithLogger(logging.NewNop()),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithRunID("test-run"),
	}
	return New(cfg, dev, append(base, opts...)...)
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestImageModeConvergesAndDiscardsDuplicate(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	dev := &fakeDevice{frames: [][]byte{frame(100), frame(250), frame(250), frame(250)}}

	var indices []int
	var duplicates []int
	s := newTestSession(cfg, dev, &recordingSleeper{}, WithObserver(func(o Observation) {
		indices = append(indices, o.Index)
		if o.Duplicate {
			duplicates = append(duplicates, o.Index)
		}
	}))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, sum.Status)
	assert.Equal(t, StateConverged, s.State())
	assert.Equal(t, 4, sum.Pages, "must converge after the 4th observation, not the 3rd")
	assert.Equal(t, []int{1, 2, 3, 4}, indices)
	assert.Equal(t, []int{4}, duplicates)
	assert.Equal(t, 3, dev.scrolls)

	require.Len(t, sum.Artifacts, 3)
	files := listFiles(t, cfg.OutputDir)
	assert.ElementsMatch(t, []string{"page_001.png", "page_002.png", "page_003.png", sink.ManifestFile}, files)
	assert.NotContains(t, files, "page_004.png")
}

func TestMaxPagesCap(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	cfg.MaxPages = 5
	frames := make([][]byte, 10)
	for i := range frames {
		frames[i] = frame(100 + i)
	}
	dev := &fakeDevice{frames: frames}

	sum, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusMaxPages, sum.Status)
	assert.Equal(t, 5, sum.Pages)
	assert.Equal(t, 5, dev.captures)
	assert.Equal(t, 4, dev.scrolls, "no scroll after the last page")
	assert.Len(t, sum.Artifacts, 5)
}

func TestTextModeMaxPagesCap(t *testing.T) {
	cfg := testConfig(t, config.ModeText)
	cfg.MaxPages = 5
	dev := &fakeDevice{dumps: []string{
		dump("a"), dump("b"), dump("c"), dump("d"), dump("e"), dump("f"),
	}}

	sum, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusMaxPages, sum.Status)
	assert.Equal(t, 5, dev.dumpCalls)
	assert.Equal(t, 5, sum.Lines)
}

func TestConnectionFailureProducesNothing(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	dev := &fakeDevice{
		connectErr: fmt.Errorf("%w: refused", adb.ErrConnectFailed),
		frames:     [][]byte{frame(10)},
	}
	rec := &fakeRecorder{}
	var observed int

	s := newTestSession(cfg, dev, &recordingSleeper{}, WithRecorder(rec), WithObserver(func(Observation) { observed++ }))
	sum, err := s.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, adb.ErrConnectFailed)
	assert.Equal(t, StatusAborted, sum.Status)
	assert.Equal(t, StateAborted, s.State())
	assert.Zero(t, sum.Pages)
	assert.Zero(t, observed)
	assert.Zero(t, dev.captures)
	assert.Empty(t, listFiles(t, cfg.OutputDir))
	assert.Equal(t, []string{"aborted"}, rec.statuses)
}

func TestInvalidConfigAborts(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	cfg.MaxPages = 0
	dev := &fakeDevice{frames: [][]byte{frame(10)}}

	_, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Zero(t, dev.captures)
}

func TestTextModeDedupAndConvergence(t *testing.T) {
	cfg := testConfig(t, config.ModeText)
	page := dump("口コミ", "とても良い", "★★★★☆")
	dev := &fakeDevice{dumps: []string{page, page}}

	var newCounts []int
	s := newTestSession(cfg, dev, &recordingSleeper{}, WithObserver(func(o Observation) {
		newCounts = append(newCounts, len(o.NewLines))
	}))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, sum.Status)
	// Page 1 adds everything; pages 2-4 add nothing and the 3rd empty page converges.
	assert.Equal(t, []int{3, 0, 0, 0}, newCounts)
	assert.Equal(t, 4, sum.Pages)
	assert.Equal(t, 3, sum.Lines)

	data, err := os.ReadFile(sum.TextFile)
	require.NoError(t, err)
	assert.Equal(t, "口コミ\nとても良い\n★★★★☆\n", string(data))
}

func TestTextModePreservesFirstSeenOrder(t *testing.T) {
	cfg := testConfig(t, config.ModeText)
	dev := &fakeDevice{dumps: []string{
		dump("a", "b"),
		dump("b", "c", "a"),
		dump("d", "c"),
	}}

	sum, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(sum.TextFile)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\n", string(data))
}

func TestTransientCaptureFailureIsAbsorbed(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	cfg.MaxPages = 4
	dev := &fakeDevice{
		frames:    [][]byte{frame(10), frame(20), frame(30), frame(40)},
		frameErrs: map[int]error{2: errors.New("pull failed")},
	}

	var failed []int
	s := newTestSession(cfg, dev, &recordingSleeper{}, WithObserver(func(o Observation) {
		if o.Failed {
			failed = append(failed, o.Index)
		}
	}))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusMaxPages, sum.Status)
	assert.Equal(t, []int{2}, failed)
	assert.ElementsMatch(t,
		[]string{"page_001.png", "page_003.png", "page_004.png", sink.ManifestFile},
		listFiles(t, cfg.OutputDir))
}

func TestMalformedDumpCountsAsEmptyPage(t *testing.T) {
	cfg := testConfig(t, config.ModeText)
	dev := &fakeDevice{
		dumps:    []string{dump("a"), "<<< not xml", dump("a")},
		dumpErrs: map[int]error{4: errors.New("device offline")},
	}

	var failed []int
	s := newTestSession(cfg, dev, &recordingSleeper{}, WithObserver(func(o Observation) {
		if o.Failed {
			failed = append(failed, o.Index)
		}
	}))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	// Page 2 is malformed, page 3 repeats, page 4 fails outright: three empty pages.
	assert.Equal(t, StatusConverged, sum.Status)
	assert.Equal(t, 4, sum.Pages)
	assert.Equal(t, []int{2, 4}, failed)
	assert.Equal(t, 1, sum.Lines)
}

func TestScrollFailureIsAbsorbed(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	cfg.MaxPages = 3
	dev := &fakeDevice{
		frames:    [][]byte{frame(1), frame(2), frame(3)},
		scrollErr: errors.New("input swipe failed"),
	}

	sum, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusMaxPages, sum.Status)
	assert.Equal(t, 2, dev.scrolls)
}

func TestPacingDelays(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	cfg.MaxPages = 3
	cfg.StartDelay = 3 * time.Second
	cfg.DelayMin = 1500 * time.Millisecond
	cfg.DelayMax = 3 * time.Second
	cfg.SettleDelay = 2 * time.Second
	dev := &fakeDevice{frames: [][]byte{frame(1), frame(2), frame(3)}}
	sl := &recordingSleeper{}

	_, err := newTestSession(cfg, dev, sl).Run(context.Background())
	require.NoError(t, err)

	// start, then (jitter, settle) after pages 1 and 2
	require.Len(t, sl.waits, 5)
	assert.Equal(t, 3*time.Second, sl.waits[0])
	for _, i := range []int{1, 3} {
		assert.GreaterOrEqual(t, sl.waits[i], cfg.DelayMin)
		assert.LessOrEqual(t, sl.waits[i], cfg.DelayMax)
	}
	assert.Equal(t, 2*time.Second, sl.waits[2])
	assert.Equal(t, 2*time.Second, sl.waits[4])
}

func TestCancellationFlushesTextResult(t *testing.T) {
	cfg := testConfig(t, config.ModeText)
	dev := &fakeDevice{dumps: []string{dump("a"), dump("b"), dump("c"), dump("d")}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestSession(cfg, dev, &recordingSleeper{}, WithObserver(func(o Observation) {
		if o.Index == 2 {
			cancel()
		}
	}))

	sum, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, sum.Status)
	assert.Equal(t, StateAborted, s.State())
	assert.Equal(t, 2, sum.Pages)

	data, err := os.ReadFile(sum.TextFile)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))

	m, err := sink.ReadManifest(cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, "aborted", m.Status)
}

func TestRecorderSeesEveryPage(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	dev := &fakeDevice{frames: [][]byte{frame(7), frame(9), frame(9), frame(9)}}
	rec := &fakeRecorder{}

	sum, err := newTestSession(cfg, dev, &recordingSleeper{}, WithRecorder(rec)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"test-run"}, rec.started)
	assert.Equal(t, []int{1, 2, 3, 4}, rec.pages)
	assert.Equal(t, "size=9", rec.sigs[3])
	assert.Equal(t, []string{"converged"}, rec.statuses)

	m, err := sink.ReadManifest(cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, m.RunID)
	assert.Equal(t, 4, m.Pages)
	assert.Len(t, m.Artifacts, 3)
}

func TestSessionRunsOnce(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	cfg.MaxPages = 1
	dev := &fakeDevice{frames: [][]byte{frame(1)}}
	s := newTestSession(cfg, dev, &recordingSleeper{})

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 1, dev.captures)
}

func TestTimerSleeperHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := timerSleeper{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for i := 0; i < 100; i++ {
		d := jitter(rng, time.Second, 2*time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
	assert.Equal(t, time.Second, jitter(rng, time.Second, time.Second))
}

func TestPreviewTruncatesRunes(t *testing.T) {
	long := strings.Repeat("あ", 60)
	assert.Equal(t, strings.Repeat("あ", 50)+"...", preview(long))
	assert.Equal(t, "short", preview("short"))
}

func TestPersistenceFailureLeavesGapAndContinues(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	cfg.MaxPages = 3
	dev := &fakeDevice{frames: [][]byte{frame(10), frame(20), frame(30)}}

	artifacts := map[int]string{}
	s := newTestSession(cfg, dev, &recordingSleeper{}, WithObserver(func(o Observation) {
		artifacts[o.Index] = o.Artifact
		if o.Index == 1 {
			// Block the next page's file name.
			require.NoError(t, os.Mkdir(filepath.Join(cfg.OutputDir, "page_002.png"), 0755))
		}
	}))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusMaxPages, sum.Status)
	assert.Equal(t, 3, sum.Pages)
	assert.Equal(t, 3, dev.captures)
	assert.Empty(t, artifacts[2])
	require.Len(t, sum.Artifacts, 2)
	assert.Equal(t, "page_001.png", filepath.Base(sum.Artifacts[0]))
	assert.Equal(t, "page_003.png", filepath.Base(sum.Artifacts[1]))
}

func TestEarlierPagesInOutputAbortBeforeConnect(t *testing.T) {
	cfg := testConfig(t, config.ModeImage)
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "page_001.png"), []byte("old"), 0644))
	dev := &fakeDevice{frames: [][]byte{frame(10)}}

	sum, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, sink.ErrOutputInUse)
	assert.Equal(t, StatusAborted, sum.Status)
	assert.Zero(t, dev.captures)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "page_001.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), data)
}

func TestKeepDumpsWritesEachPage(t *testing.T) {
	cfg := testConfig(t, config.ModeText)
	cfg.KeepDumps = true
	cfg.MaxPages = 3
	dev := &fakeDevice{dumps: []string{dump("a"), dump("b"), dump("c")}}

	sum, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusMaxPages, sum.Status)

	assert.ElementsMatch(t,
		[]string{"ui_001.xml", "ui_002.xml", "ui_003.xml", cfg.TextFile, sink.ManifestFile},
		listFiles(t, cfg.OutputDir))

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "ui_002.xml"))
	require.NoError(t, err)
	assert.Equal(t, dump("b"), string(data))
}

func TestKeepDumpsOffByDefault(t *testing.T) {
	cfg := testConfig(t, config.ModeText)
	cfg.MaxPages = 2
	dev := &fakeDevice{dumps: []string{dump("a"), dump("b")}}

	_, err := newTestSession(cfg, dev, &recordingSleeper{}).Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{cfg.TextFile, sink.ManifestFile}, listFiles(t, cfg.OutputDir))
}
