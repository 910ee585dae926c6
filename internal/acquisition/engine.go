// Package acquisition drives one load-sensor run: it waits for the sensor
// to stabilize, then timestamps and records every reading until the run is
// stopped, cancelled, or the sample channel fails.
package acquisition

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.viam.com/rdk/logging"

	"forcetrial/internal/trial"
)

// Source is a line-oriented sample channel. ReadLine blocks until a full
// line is available.
type Source interface {
	Flush() error
	ReadLine() ([]byte, error)
	Close() error
}

// Opener opens the sample channel for a run.
type Opener func() (Source, error)

type State int

const (
	StateIdle State = iota
	StateStabilizing
	StateSampling
	StateStopped
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStabilizing:
		return "stabilizing"
	case StateSampling:
		return "sampling"
	case StateStopped:
		return "stopped"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a run is in progress.
func (s State) Active() bool {
	return s == StateStabilizing || s == StateSampling
}

// Result is the outcome of a stopped run.
type Result struct {
	Record     trial.Snapshot
	HasSamples bool
}

// Status is a point-in-time view of the engine for status readings.
type Status struct {
	State    State
	TrialID  string
	Progress float64
	Accepted int
	MaxValue float64
	Err      error
}

type request int

const (
	requestNone request = iota
	requestStop
	requestCancel
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for elapsed-time computation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithObserver registers the observer for progress and display events.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine runs at most one acquisition at a time. All methods are safe for
// concurrent use; the run itself executes on a single goroutine started by
// Start.
type Engine struct {
	logger   logging.Logger
	now      func() time.Time
	observer Observer

	mu       sync.Mutex
	state    State
	trialID  string
	record   *trial.Record
	progress float64
	accepted int
	maxValue float64
	window   Window
	request  request
	done     chan struct{}
	result   Result
	err      error
	// collected is set once Stop has handed out result.
	collected bool
}

func NewEngine(logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger,
		now:      time.Now,
		observer: nopObserver{},
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates cfg, opens and flushes the sample channel, and begins
// stabilization. It returns once the run is under way.
//
// Start is rejected with AlreadyRunningError only while a run is
// stabilizing or sampling. From Idle or any terminal state (Stopped,
// Cancelled, Failed) it begins a new run and drops the previous run's
// record, including one that Stop never collected.
//
// The channel is opened without holding the engine lock. If another run
// started in the meantime the channel is closed again and the call fails.
func (e *Engine) Start(ctx context.Context, trialID string, cfg Config, open Opener) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state.Active() {
		state := e.state
		e.mu.Unlock()
		return &AlreadyRunningError{State: state}
	}
	e.mu.Unlock()

	src, err := open()
	if err != nil {
		return &IOFailure{Op: "open", Err: err, Partial: trial.NewSnapshot(trialID, nil)}
	}
	if err := src.Flush(); err != nil {
		src.Close()
		return &IOFailure{Op: "flush", Err: err, Partial: trial.NewSnapshot(trialID, nil)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Active() {
		if err := src.Close(); err != nil {
			e.logger.Warnf("closing sample channel: %v", err)
		}
		return &AlreadyRunningError{State: e.state}
	}

	e.state = StateStabilizing
	e.trialID = trialID
	e.record = trial.NewRecord(trialID)
	e.progress = 0
	e.accepted = 0
	e.maxValue = 0
	e.window = Window{TrialID: trialID}
	e.request = requestNone
	e.result = Result{}
	e.collected = false
	e.err = nil
	e.done = make(chan struct{})

	e.logger.Infof("trial %q: stabilizing, discarding %d samples", trialID, cfg.StabilizationCount)
	go e.run(src, cfg, trialID, e.done)
	return nil
}

func (e *Engine) run(src Source, cfg Config, trialID string, done chan struct{}) {
	defer close(done)

	for n := 1; n <= cfg.StabilizationCount; n++ {
		if req := e.pending(); req != requestNone {
			e.finish(src, req)
			return
		}
		if _, err := src.ReadLine(); err != nil {
			e.fail(src, err)
			return
		}
		p := Progress{
			TrialID:  trialID,
			Done:     n,
			Total:    cfg.StabilizationCount,
			Fraction: float64(n) / float64(cfg.StabilizationCount),
		}
		e.mu.Lock()
		e.progress = p.Fraction
		e.mu.Unlock()
		e.observer.OnProgress(p)
	}

	epoch := e.now()
	e.mu.Lock()
	e.state = StateSampling
	e.progress = 1
	e.mu.Unlock()
	e.logger.Infof("trial %q: sampling", trialID)

	sign := cfg.sign()
	var lastElapsed float64
	for {
		if req := e.pending(); req != requestNone {
			e.finish(src, req)
			return
		}
		line, err := src.ReadLine()
		if err != nil {
			e.fail(src, err)
			return
		}

		elapsed := e.now().Sub(epoch).Seconds()
		if elapsed < lastElapsed {
			elapsed = lastElapsed
		}
		lastElapsed = elapsed

		value, ok := parseValue(line)
		if ok {
			value *= sign
		} else {
			e.logger.Debugf("trial %q: unparsable sample %q recorded as 0", trialID, line)
		}

		e.mu.Lock()
		// Elapsed is clamped non-decreasing and the record is not finalized
		// until this goroutine finishes, so Append cannot fail here.
		_ = e.record.Append(trial.Sample{Elapsed: elapsed, Value: value})
		e.accepted++
		if e.accepted == 1 || value > e.maxValue {
			e.maxValue = value
		}
		var update *Window
		if e.accepted%cfg.SampleStride == 0 {
			times, values := e.record.Tail(cfg.WindowLength)
			e.window = Window{TrialID: trialID, Accepted: e.accepted, Times: times, Values: values}
			w := e.window.clone()
			update = &w
		}
		e.mu.Unlock()

		if update != nil {
			e.observer.OnDisplay(*update)
		}
	}
}

func (e *Engine) pending() request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.request
}

func (e *Engine) finish(src Source, req request) {
	if err := src.Close(); err != nil {
		e.logger.Warnf("closing sample channel: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch req {
	case requestStop:
		snap := e.record.Finalize()
		e.result = Result{Record: snap, HasSamples: snap.Len() > 0}
		e.state = StateStopped
		e.logger.Infof("trial %q: stopped with %d samples", e.trialID, snap.Len())
	case requestCancel:
		e.record = nil
		e.result = Result{}
		e.window = Window{TrialID: e.trialID}
		e.state = StateCancelled
		e.logger.Infof("trial %q: cancelled, record discarded", e.trialID)
	}
}

func (e *Engine) fail(src Source, readErr error) {
	if err := src.Close(); err != nil {
		e.logger.Warnf("closing sample channel: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A read that fails after a stop or cancel request ends the run the way
	// the request asked for.
	switch e.request {
	case requestCancel:
		e.record = nil
		e.result = Result{}
		e.window = Window{TrialID: e.trialID}
		e.state = StateCancelled
		e.logger.Infof("trial %q: cancelled, record discarded", e.trialID)
		return
	case requestStop:
		snap := e.record.Finalize()
		e.result = Result{Record: snap, HasSamples: snap.Len() > 0}
		e.state = StateStopped
		e.logger.Infof("trial %q: stopped with %d samples", e.trialID, snap.Len())
		return
	}
	snap := e.record.Finalize()
	e.result = Result{Record: snap, HasSamples: snap.Len() > 0}
	e.err = &IOFailure{Op: "read", Err: readErr, Partial: snap}
	e.state = StateFailed
	e.logger.Errorf("trial %q: %v", e.trialID, e.err)
}

// Stop ends the run and returns the finalized record. It waits for the
// acquisition loop to observe the request, which happens after the read in
// flight completes; ctx bounds that wait. If the run already failed, the
// IOFailure is returned together with the partial record.
//
// A run's record is handed out once. Later calls return ErrNotRunning until
// the next Start.
func (e *Engine) Stop(ctx context.Context) (Result, error) {
	e.mu.Lock()
	switch {
	case e.state.Active():
		e.request = requestStop
	case (e.state == StateStopped || e.state == StateFailed) && !e.collected:
	default:
		e.mu.Unlock()
		return Result{}, ErrNotRunning
	}
	done := e.done
	e.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.collected || e.state == StateCancelled {
		return Result{}, ErrNotRunning
	}
	e.collected = true
	return e.result, e.err
}

// Cancel discards the run in progress and releases the sample channel. On
// an engine with no run in progress it drops any retained record.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	if !e.state.Active() {
		e.record = nil
		e.result = Result{}
		e.err = nil
		e.window = Window{TrialID: e.trialID}
		e.state = StateCancelled
		e.mu.Unlock()
		return nil
	}
	e.request = requestCancel
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the current run reaches a terminal state and returns its
// outcome.
func (e *Engine) Wait(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return Result{}, ErrNotRunning
	}
	done := e.done
	e.mu.Unlock()

	return e.await(ctx, done)
}

func (e *Engine) await(ctx context.Context, done chan struct{}) (Result, error) {
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.err
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:    e.state,
		TrialID:  e.trialID,
		Progress: e.progress,
		Accepted: e.accepted,
		MaxValue: e.maxValue,
		Err:      e.err,
	}
}

// Window returns a copy of the latest display window.
func (e *Engine) Window() Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.clone()
}

// parseValue converts a raw serial line to a reading. Non-numeric and
// non-finite input is rejected.
func parseValue(line []byte) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(line)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
