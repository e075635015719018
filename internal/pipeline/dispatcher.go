// Package pipeline runs the recognition stream: an acquisition loop reads
// the capture source at its native rate and hands frames to a worker over
// a bounded channel, the worker matches faces and records attendance, and
// both publish events through a broadcaster. The worker never slows the
// acquisition loop down; full hand-off slots drop frames.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/edgekit/facegate/internal/attendance"
	"github.com/edgekit/facegate/internal/capture"
	"github.com/edgekit/facegate/internal/embedding"
	"github.com/edgekit/facegate/internal/match"
	"github.com/edgekit/facegate/internal/store"
)

const (
	// frameBuffer is the acquisition-to-worker hand-off capacity.
	frameBuffer = 2

	defaultRecognizeEvery = time.Second
	defaultDisplayEvery   = 33 * time.Millisecond
	defaultStopTimeout    = 3 * time.Second
)

var (
	ErrAlreadyRunning = errors.New("pipeline already running")
	ErrNotRunning     = errors.New("pipeline not running")
)

// Detector is the slice of the embedding client the worker needs.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]embedding.Face, error)
}

var _ Detector = (*embedding.Client)(nil)

// Options tune a dispatcher. Zero values fall back to the defaults.
type Options struct {
	// Threshold is the minimum score for an accepted identity.
	Threshold float64
	// AllowFallback permits the nearest-neighbor matching path.
	AllowFallback bool
	// RecognizeEvery throttles how often a frame is handed to the worker.
	RecognizeEvery time.Duration
	// DisplayEvery throttles frame-ready events.
	DisplayEvery time.Duration
	// StopTimeout bounds how long Stop waits for the loops to exit.
	StopTimeout time.Duration
	// Capture configures newly opened sources.
	Capture capture.Options
}

// Dispatcher owns one recognition run: the source, both loops and the
// shared cells the web layer reads.
type Dispatcher struct {
	engine    *match.Engine
	detector  Detector
	tracker   *attendance.Tracker
	employees store.EmployeeStore
	events    *Broadcaster
	opts      Options

	// open is swapped out by tests.
	open func(url string, opts capture.Options) (capture.Source, error)

	results    resultCell
	recognized recognizedSet
	names      nameCache

	mu        sync.Mutex
	running   bool
	source    capture.Source
	sourceURL string
	cancel    context.CancelFunc
	stop      chan struct{}
	frames    chan capture.Frame
	control   chan string
	acqDone   chan struct{}
	workDone  chan struct{}
}

// NewDispatcher wires a dispatcher. It does not open any source until
// Start.
func NewDispatcher(engine *match.Engine, detector Detector, tracker *attendance.Tracker, employees store.EmployeeStore, opts Options) *Dispatcher {
	if opts.RecognizeEvery <= 0 {
		opts.RecognizeEvery = defaultRecognizeEvery
	}
	if opts.DisplayEvery <= 0 {
		opts.DisplayEvery = defaultDisplayEvery
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}

	return &Dispatcher{
		engine:    engine,
		detector:  detector,
		tracker:   tracker,
		employees: employees,
		events:    NewBroadcaster(),
		opts:      opts,
		open:      capture.Open,
	}
}

// Events returns the broadcaster stream listeners subscribe to.
func (d *Dispatcher) Events() *Broadcaster {
	return d.events
}

// Running reports whether a run is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// SourceURL returns the URL of the current source, empty when stopped.
func (d *Dispatcher) SourceURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sourceURL
}

// Results returns the most recent completed recognition batch.
func (d *Dispatcher) Results() Results {
	return d.results.load()
}

// Recognized lists who has been seen today during this run, in first-seen
// order.
func (d *Dispatcher) Recognized(now time.Time) []Sighting {
	return d.recognized.snapshot(d.tracker.WorkDate(now))
}

// Start opens the source and launches the acquisition and worker loops.
func (d *Dispatcher) Start(sourceURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyRunning
	}

	source, err := d.open(sourceURL, d.opts.Capture)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d.source = source
	d.sourceURL = sourceURL
	d.cancel = cancel
	d.stop = make(chan struct{})
	d.frames = make(chan capture.Frame, frameBuffer)
	d.control = make(chan string, 1)
	d.acqDone = make(chan struct{})
	d.workDone = make(chan struct{})

	d.results.reset()
	d.recognized.reset()
	d.names.reset()

	d.running = true

	// The loops work on this run's channels, not the dispatcher fields, so
	// a later Start cannot race a loop that outlived its Stop timeout.
	go d.acquire(ctx, source, d.stop, d.control, d.frames, d.acqDone)
	go d.work(ctx, d.stop, d.frames, d.workDone)

	log.Printf("[pipeline] started on %s", sourceURL)
	return nil
}

// Stop signals both loops, waits for them up to the stop timeout and
// releases the source regardless of whether they exited.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	d.running = false
	d.sourceURL = ""
	close(d.stop)
	d.cancel()
	source := d.source
	acqDone, workDone := d.acqDone, d.workDone
	d.mu.Unlock()

	deadline := time.After(d.opts.StopTimeout)
	for _, done := range []chan struct{}{acqDone, workDone} {
		select {
		case <-done:
		case <-deadline:
			log.Printf("[pipeline] loop did not stop within %s", d.opts.StopTimeout)
		}
	}

	// The acquisition loop closes the source on its way out; closing again
	// here reclaims it even if that loop is stuck.
	_ = source.Close()

	log.Printf("[pipeline] stopped")
	return nil
}

// SwitchSource asks the acquisition loop to swap the source between two
// reads. At most one switch can be pending.
func (d *Dispatcher) SwitchSource(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrNotRunning
	}
	select {
	case d.control <- url:
		return nil
	default:
		return errors.New("source switch already pending")
	}
}

// acquire reads the source at its native rate, feeds the worker at the
// recognition cadence and publishes display frames. A read failure emits
// one error event and halts the loop.
func (d *Dispatcher) acquire(ctx context.Context, source capture.Source, stop <-chan struct{}, control <-chan string, frames chan<- capture.Frame, done chan<- struct{}) {
	defer close(done)
	defer func() { _ = source.Close() }()

	var lastFeed, lastDisplay time.Time

	for {
		select {
		case <-stop:
			return
		case url := <-control:
			next, err := d.open(url, d.opts.Capture)
			if err != nil {
				log.Printf("[pipeline] switch to %s failed: %v", url, err)
				d.events.SendEvent(errorEvent(fmt.Sprintf("switch source: %v", err)))
				continue
			}
			_ = source.Close()
			source = next
			d.mu.Lock()
			d.source = next
			d.sourceURL = url
			d.mu.Unlock()
			log.Printf("[pipeline] switched source to %s", url)
			continue
		default:
		}

		frame, err := source.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, capture.ErrSourceClosed) {
				return
			}
			log.Printf("[pipeline] source read failed: %v", err)
			d.events.SendEvent(errorEvent(fmt.Sprintf("source unavailable: %v", err)))
			return
		}

		now := time.Now()

		if now.Sub(lastFeed) >= d.opts.RecognizeEvery {
			select {
			case frames <- frame:
				lastFeed = now
			default:
				// Worker still busy, skip this cycle.
			}
		}

		if now.Sub(lastDisplay) >= d.opts.DisplayEvery {
			lastDisplay = now
			d.events.SendEvent(Event{
				Type:      EventFrameReady,
				Timestamp: now,
				Frame: &FramePayload{
					Seq:    frame.Seq,
					Width:  frame.Width,
					Height: frame.Height,
					JPEG:   frame.Data,
				},
			})
		}
	}
}

// work drains the hand-off channel and runs recognition per frame.
func (d *Dispatcher) work(ctx context.Context, stop <-chan struct{}, frames <-chan capture.Frame, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case frame := <-frames:
			d.processFrame(ctx, frame)
		}
	}
}

func (d *Dispatcher) processFrame(ctx context.Context, frame capture.Frame) {
	start := time.Now()

	faces, err := d.detector.Detect(ctx, frame.Data)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Detection failures skip the frame, the stream keeps going.
		log.Printf("[pipeline] detection failed: %v", err)
		return
	}

	at := frame.Time
	if at.IsZero() {
		at = start
	}

	matches := make([]FaceMatch, 0, len(faces))
	for _, face := range faces {
		result := d.engine.Match(face.Embedding, d.opts.Threshold, d.opts.AllowFallback)

		fm := FaceMatch{
			EmployeeCode: result.EmployeeCode,
			Score:        result.Score,
			Method:       string(result.Method),
			BBox:         face.BBox,
		}
		if result.EmployeeCode != match.Unknown {
			fm.EmployeeName = d.employeeName(ctx, result.EmployeeCode)
			d.noteRecognition(ctx, fm, at)
		}
		matches = append(matches, fm)
	}

	results := Results{
		FrameSeq:  frame.Seq,
		Faces:     matches,
		ProcessMS: float64(time.Since(start).Microseconds()) / 1000,
		At:        time.Now(),
	}
	d.results.store(results)
	d.events.SendEvent(Event{Type: EventMatchResults, Timestamp: results.At, Matches: &results})
}

// noteRecognition records the sighting and, for the first sighting of the
// day in this run, an attendance event.
func (d *Dispatcher) noteRecognition(ctx context.Context, fm FaceMatch, at time.Time) {
	date := d.tracker.WorkDate(at)
	first := d.recognized.add(date, Sighting{
		EmployeeCode: fm.EmployeeCode,
		EmployeeName: fm.EmployeeName,
		Confidence:   fm.Score,
		Method:       fm.Method,
		At:           at,
	})
	if !first {
		return
	}

	log.Printf("[pipeline] recognized %s (%.3f, %s)", fm.EmployeeCode, fm.Score, fm.Method)
	if _, _, err := d.tracker.RecordEvent(ctx, fm.EmployeeCode, at); err != nil {
		log.Printf("[pipeline] attendance for %s failed: %v", fm.EmployeeCode, err)
	}
}

// employeeName resolves a code to a display name through a per-run cache.
func (d *Dispatcher) employeeName(ctx context.Context, code string) string {
	if name, ok := d.names.get(code); ok {
		return name
	}
	emp, err := d.employees.GetEmployee(ctx, code)
	if err != nil {
		return ""
	}
	d.names.put(code, emp.FullName)
	return emp.FullName
}
