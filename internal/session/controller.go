package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/pysuper/titan/internal/dataset"
	apperrors "github.com/pysuper/titan/internal/errors"
	"github.com/pysuper/titan/internal/metrics"
	"github.com/pysuper/titan/internal/protocol"
)

// TargetLoader resolves a result-file path to a loaded dataset.
// *dataset.Cache satisfies it.
type TargetLoader interface {
	Get(ctx context.Context, path string) (*dataset.Dataset, error)
}

// Result is the outcome of a playback command, rendered to the session
// channel and mapped onto an HTTP status by the control plane.
type Result struct {
	Status  string // success, error, warning, info
	Message string
	Code    string
	Fields  map[string]any
	Err     *apperrors.Error // set when Status == "error"
}

func successResult(message string) Result {
	return Result{Status: "success", Message: message}
}

func warningResult(message string) Result {
	return Result{Status: "warning", Message: message}
}

func errorResult(err *apperrors.Error) Result {
	return Result{Status: "error", Message: err.Message, Err: err}
}

// controller owns the playback state machine for one session. All command
// handling is serialized under mu; state transitions and frame emission are
// funneled through the session's write channel.
type controller struct {
	mu sync.Mutex

	clock      clockwork.Clock
	loader     TargetLoader
	defaultFPS int
	logger     *slog.Logger

	// emit writes to the owning session; notify additionally fans the
	// status change out to peer sessions watching the same target.
	emit   func(v any) error
	notify func(sc protocol.StatusChange)

	parent context.Context

	state      PlaybackState
	ds         *dataset.Dataset
	targetPath string
	index      atomic.Int64
	pacer      *pacer
}

func newController(parent context.Context, clock clockwork.Clock, loader TargetLoader, defaultFPS int, logger *slog.Logger, emit func(v any) error, notify func(protocol.StatusChange)) *controller {
	return &controller{
		clock:      clock,
		loader:     loader,
		defaultFPS: defaultFPS,
		logger:     logger,
		emit:       emit,
		notify:     notify,
		parent:     parent,
		state:      StateIdle,
	}
}

// Apply executes one playback command and returns its result.
func (c *controller) Apply(cmd protocol.Command, fps int, path string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res Result
	switch cmd {
	case protocol.CmdPlay:
		res = c.play(fps)
	case protocol.CmdPause:
		res = c.pause()
	case protocol.CmdResume:
		res = c.resume(fps)
	case protocol.CmdStop:
		res = c.stopPlayback()
	case protocol.CmdReplay:
		res = c.replay(fps)
	case protocol.CmdSetTarget:
		res = c.setTarget(path)
	default:
		res = errorResult(apperrors.ValidationError("unknown control command"))
	}

	metrics.PlaybackCommands.WithLabelValues(string(cmd), res.Status).Inc()
	return res
}

func (c *controller) play(fps int) Result {
	if c.ds == nil {
		return errorResult(apperrors.ValidationError("no playback target set"))
	}
	if c.pacerActive() {
		if c.pacer.isPaused() {
			return c.resumeActive()
		}
		return warningResult("playback already running")
	}

	res, ok := c.startPacer(fps)
	if !ok {
		return res
	}
	return successResult("playback started")
}

func (c *controller) pause() Result {
	if !c.pacerActive() {
		return errorResult(apperrors.StateError("no active playback to pause"))
	}
	if c.pacer.isPaused() {
		return warningResult("playback already paused")
	}

	c.pacer.pause()
	c.setState(StatePaused)
	res := successResult("playback paused")
	res.Fields = map[string]any{"current_frame": c.currentIndex()}
	return res
}

func (c *controller) resume(fps int) Result {
	if c.pacerActive() {
		if !c.pacer.isPaused() {
			return warningResult("playback already running")
		}
		return c.resumeActive()
	}

	if c.ds == nil {
		return errorResult(apperrors.StateError("no playback target to resume"))
	}

	// Nothing is running; restart from the retained frame index so the
	// viewer picks up where it left off.
	res, ok := c.startPacer(fps)
	if !ok {
		return res
	}
	return Result{
		Status:  "info",
		Message: "playback restarted from last frame",
		Code:    "need_start",
		Fields:  map[string]any{"current_frame": c.currentIndex()},
	}
}

// resumeActive reopens the gate of a paused pacer. Callers hold mu.
func (c *controller) resumeActive() Result {
	c.pacer.unpause()
	c.setState(StatePlaying)
	return successResult("playback resumed")
}

func (c *controller) stopPlayback() Result {
	if c.pacer != nil {
		c.pacer.stop()
		c.pacer = nil
	}
	if c.ds != nil {
		c.setState(StateStopped)
	}
	return successResult("playback stopped")
}

func (c *controller) replay(fps int) Result {
	if c.ds == nil {
		return errorResult(apperrors.ValidationError("no playback target set"))
	}
	if c.pacer != nil {
		c.pacer.stop()
		c.pacer = nil
	}

	c.index.Store(0)
	res, ok := c.startPacer(fps)
	if !ok {
		return res
	}
	return successResult("replay started")
}

func (c *controller) setTarget(path string) Result {
	if path == "" {
		return errorResult(apperrors.ValidationError("missing video_path"))
	}

	resultPath, err := dataset.ResolveResultPath(path)
	if err != nil {
		return errorResult(apperrors.NotFoundError(err.Error()))
	}
	ds, err := c.loader.Get(c.parent, resultPath)
	if err != nil {
		return errorResult(apperrors.InternalError("failed to load result data", err))
	}

	if c.pacer != nil {
		c.pacer.stop()
		c.pacer = nil
	}
	c.ds = ds
	c.targetPath = path
	c.index.Store(0)
	c.setStateExtra(StateReady, map[string]any{
		"video_path":   path,
		"total_frames": ds.Len(),
	})

	res := successResult("playback target set")
	res.Fields = map[string]any{
		"video_path":   path,
		"total_frames": ds.Len(),
	}
	return res
}

// ClearTarget unloads the dataset and drops back to idle.
func (c *controller) ClearTarget() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pacer != nil {
		c.pacer.stop()
		c.pacer = nil
	}
	c.ds = nil
	c.targetPath = ""
	c.index.Store(0)
	c.setState(StateIdle)
}

// startPacer launches a pacer from the current frame index. Callers hold mu.
func (c *controller) startPacer(fps int) (Result, bool) {
	if fps < 0 {
		return errorResult(apperrors.ValidationError("fps must be positive")), false
	}
	if fps == 0 {
		fps = c.defaultFPS
	}

	if int(c.index.Load()) >= c.ds.Len() {
		c.index.Store(0)
	}

	p := newPacer(c.parent, c.clock, c.ds, &c.index, fps, c.emit, c.completed, c.deliveryFailed)
	c.pacer = p
	c.setStateExtra(StatePlaying, map[string]any{
		"fps":          fps,
		"total_frames": c.ds.Len(),
	})
	p.start()
	return Result{}, true
}

// completed runs on the pacer goroutine when the dataset is exhausted.
func (c *controller) completed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePlaying {
		return
	}
	c.setState(StateCompleted)
}

// deliveryFailed runs on the pacer goroutine when a frame write fails.
func (c *controller) deliveryFailed(err error) {
	c.logger.Warn("Frame delivery failed, stopping playback", "error", err)
	// Best effort; the channel is likely already dead.
	_ = c.emit(protocol.Response{
		Status:  "error",
		Message: "frame delivery failed",
		Type:    "playback_error",
	})
}

// setState transitions the state machine and announces the change.
// Callers hold mu.
func (c *controller) setState(state PlaybackState) {
	c.setStateExtra(state, nil)
}

func (c *controller) setStateExtra(state PlaybackState, extra map[string]any) {
	c.state = state
	sc := protocol.NewStatusChange(string(state), c.currentIndex(), c.clock.Now())
	sc.Extra = extra
	_ = c.emit(sc)
	if c.notify != nil {
		c.notify(sc)
	}
}

func (c *controller) pacerActive() bool {
	return c.pacer != nil && !c.pacer.finished()
}

func (c *controller) currentIndex() int {
	return int(c.index.Load())
}

// Snapshot describes the playback state for status queries.
type Snapshot struct {
	State        PlaybackState `json:"state"`
	CurrentFrame int           `json:"current_frame"`
	TotalFrames  int           `json:"total_frames"`
	VideoPath    string        `json:"video_path,omitempty"`
}

func (c *controller) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:        c.state,
		CurrentFrame: c.currentIndex(),
		VideoPath:    c.targetPath,
	}
	if c.ds != nil {
		snap.TotalFrames = c.ds.Len()
	}
	return snap
}

// shutdown stops any running pacer and waits for it to exit.
func (c *controller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pacer != nil {
		c.pacer.stop()
		c.pacer = nil
	}
}
