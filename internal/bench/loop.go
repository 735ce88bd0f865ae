package bench

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Brownie44l1/classbench/internal/executor"
	"github.com/Brownie44l1/classbench/internal/imaging"
	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRunning = errors.New("benchmark already running")
	ErrEmptyDataset   = errors.New("dataset is empty")
)

type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Classifier runs inference for the loop.
type Classifier interface {
	EnsureLoaded(ctx context.Context, d model.Descriptor) error
	Classify(ctx context.Context, d model.Descriptor, g imaging.Grid) (model.Prediction, error)
}

// Progress is delivered to an Observer after every item.
type Progress struct {
	RunID     string
	Processed int
	Total     int
	Item      ItemResult
	Running   Report
}

type Observer interface {
	Progress(p Progress)
}

type ObserverFunc func(p Progress)

func (f ObserverFunc) Progress(p Progress) { f(p) }

// Status is a snapshot of the runner for display.
type Status struct {
	State     State   `json:"state"`
	RunID     string  `json:"run_id,omitempty"`
	Model     string  `json:"model,omitempty"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Report    *Report `json:"report,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Runner executes benchmark runs one at a time.
type Runner struct {
	classifier Classifier
	normalizer *imaging.Normalizer
	yieldEvery int

	mu     sync.Mutex
	status Status
}

// NewRunner returns an idle runner. yieldEvery > 0 makes the loop yield the
// processor after that many items.
func NewRunner(c Classifier, n *imaging.Normalizer, yieldEvery int) *Runner {
	if n == nil {
		n = imaging.NewNormalizer()
	}
	return &Runner{classifier: c, normalizer: n, yieldEvery: yieldEvery}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	if s.Report != nil {
		rep := *s.Report
		s.Report = &rep
	}
	return s
}

// Start claims the runner for a new run. It fails with ErrAlreadyRunning
// while another run is in progress, leaving that run untouched.
func (r *Runner) Start(d model.Descriptor, total int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State == Running {
		return "", ErrAlreadyRunning
	}
	if total == 0 {
		return "", ErrEmptyDataset
	}
	id := uuid.NewString()
	r.status = Status{State: Running, RunID: id, Model: d.ID, Total: total}
	return id, nil
}

// Run starts a run and executes it to completion on the calling goroutine.
func (r *Runner) Run(ctx context.Context, d model.Descriptor, samples []Sample, obs Observer) (*Report, error) {
	id, err := r.Start(d, len(samples))
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, id, d, samples, obs)
}

// Execute runs the loop for a run previously claimed with Start. Per-item
// failures are recorded and skipped; systemic failures end the run in the
// Failed state and return the partial report.
func (r *Runner) Execute(ctx context.Context, runID string, d model.Descriptor, samples []Sample, obs Observer) (*Report, error) {
	logger := log.With().Str("run", runID).Str("model", d.ID).Logger()
	logger.Info().Int("items", len(samples)).Msg("benchmark started")
	start := time.Now()

	agg := NewAggregate(len(samples))
	finish := func(err error) (*Report, error) {
		rep := agg.Report()
		rep.RunID = runID
		rep.Model = d.ID
		r.mu.Lock()
		r.status.Report = &rep
		if err != nil {
			r.status.State = Failed
			r.status.Error = err.Error()
		} else {
			r.status.State = Completed
		}
		r.mu.Unlock()

		var ev *zerolog.Event
		if err != nil {
			ev = logger.Error().Err(err)
		} else {
			ev = logger.Info()
		}
		ev.Int("scored", rep.Scored).Int("skipped", rep.Skipped).Float64("accuracy", rep.Accuracy).
			Float64("mean_latency_ms", rep.MeanLatencyMS).Dur("took", time.Since(start)).Msg("benchmark finished")
		return &rep, err
	}

	if err := r.classifier.EnsureLoaded(ctx, d); err != nil {
		return finish(err)
	}

	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		item, err := r.score(ctx, d, i, s)
		if err != nil {
			return finish(err)
		}
		agg.Add(item)

		r.mu.Lock()
		r.status.Processed = agg.Processed
		r.mu.Unlock()

		if obs != nil {
			obs.Progress(Progress{RunID: runID, Processed: agg.Processed, Total: len(samples), Item: item, Running: agg.Report()})
		}
		if r.yieldEvery > 0 && (i+1)%r.yieldEvery == 0 {
			runtime.Gosched()
		}
	}

	if agg.Scored == 0 {
		logger.Error().Int("skipped", agg.Skipped).Msg("every item failed")
	}
	return finish(nil)
}

// score evaluates one sample. A non-nil error is systemic; per-item failures
// are reported through ItemResult.Err.
func (r *Runner) score(ctx context.Context, d model.Descriptor, i int, s Sample) (ItemResult, error) {
	item := ItemResult{Index: i, Name: s.Source.Name(), Label: s.Label, Predicted: -1}

	grid, err := r.normalizer.NormalizeSource(ctx, s.Source, d.Side)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return item, ctxErr
		}
		log.Warn().Err(err).Str("item", item.Name).Msg("skipping undecodable image")
		item.Err = err
		return item, nil
	}

	p, err := r.classifier.Classify(ctx, d, grid)
	if err != nil {
		if executor.IsSystemic(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return item, err
		}
		log.Warn().Err(err).Str("item", item.Name).Msg("inference failed, skipping")
		item.Err = err
		return item, nil
	}

	item.Predicted = p.Index
	item.Confidence = p.Confidence
	item.ElapsedMS = p.ElapsedMS
	item.Correct = s.Labeled() && p.Index == s.Label
	return item, nil
}
