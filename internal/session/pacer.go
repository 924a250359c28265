package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pysuper/titan/internal/dataset"
	"github.com/pysuper/titan/internal/metrics"
	"github.com/pysuper/titan/internal/protocol"
)

// pauseGate blocks the pacer while playback is paused. The gate hands out a
// channel that is closed while running and replaced with an open one on
// pause, so waiting costs nothing when playback is live.
type pauseGate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newPauseGate() *pauseGate {
	ch := make(chan struct{})
	close(ch)
	return &pauseGate{resume: ch}
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resume = make(chan struct{})
	}
}

func (g *pauseGate) unpause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait returns a channel that is readable as soon as playback may proceed.
func (g *pauseGate) wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resume
}

// pacer walks a dataset from the shared frame index, emitting one frame per
// tick. It resumes from wherever the index points, so pause/resume and
// restart-after-stop continue where playback left off.
type pacer struct {
	clock clockwork.Clock
	ds    *dataset.Dataset
	index *atomic.Int64
	fps   int

	emit       func(v any) error
	onComplete func()
	onError    func(err error)

	ctx    context.Context
	cancel context.CancelFunc
	gate   *pauseGate
	done   chan struct{}
}

func newPacer(parent context.Context, clock clockwork.Clock, ds *dataset.Dataset, index *atomic.Int64, fps int, emit func(v any) error, onComplete func(), onError func(error)) *pacer {
	ctx, cancel := context.WithCancel(parent)
	return &pacer{
		clock:      clock,
		ds:         ds,
		index:      index,
		fps:        fps,
		emit:       emit,
		onComplete: onComplete,
		onError:    onError,
		ctx:        ctx,
		cancel:     cancel,
		gate:       newPauseGate(),
		done:       make(chan struct{}),
	}
}

func (p *pacer) start() {
	go p.run()
}

// run drives the emission loop. done is closed before the completion or
// error callback fires, so a concurrent stop() never deadlocks against a
// callback waiting on the controller lock.
func (p *pacer) run() {
	finished, err := p.loop()
	close(p.done)

	switch {
	case err != nil:
		p.onError(err)
	case finished:
		p.onComplete()
	}
}

func (p *pacer) loop() (bool, error) {
	total := p.ds.Len()
	delay := frameDelay(p.fps)

	for i := int(p.index.Load()); i < total; i++ {
		// Block here while paused; the next frame is held back, never lost.
		select {
		case <-p.ctx.Done():
			return false, nil
		case <-p.gate.wait():
		}
		select {
		case <-p.ctx.Done():
			return false, nil
		default:
		}

		p.index.Store(int64(i))
		frame := protocol.NewFrameData(i, total, p.ds.Frame(i), p.clock.Now())
		if err := p.emit(frame); err != nil {
			return false, err
		}
		metrics.FramesEmitted.Inc()

		select {
		case <-p.ctx.Done():
			return false, nil
		case <-p.clock.After(delay):
		}
	}

	return true, nil
}

func (p *pacer) pause()         { p.gate.pause() }
func (p *pacer) unpause()       { p.gate.unpause() }
func (p *pacer) isPaused() bool { return p.gate.isPaused() }

// stop cancels the run loop and waits for it to exit.
func (p *pacer) stop() {
	p.cancel()
	<-p.done
}

// frameDelay converts a frame rate into the inter-frame sleep.
func frameDelay(fps int) time.Duration {
	return time.Duration(float64(time.Second) / float64(fps))
}

// finished reports whether the run loop has exited.
func (p *pacer) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
