package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Brownie44l1/classbench/internal/imaging"
	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Result is the payload of a RUN_DONE response.
type Result struct {
	Model         string
	Probabilities []float64
	ElapsedMS     float64
}

type envelope struct {
	req   Request
	reply chan Response
}

// Executor owns at most one model session and serves LOAD and RUN requests
// one at a time on its own goroutine. The session is never visible outside
// that goroutine.
type Executor struct {
	runtime Runtime
	fetcher Fetcher

	requests chan envelope
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// owned by the worker goroutine
	active  *model.Descriptor
	session Session
}

// New starts an executor backed by rt. A nil fetcher reads from the
// filesystem or HTTP.
func New(rt Runtime, fetcher Fetcher) *Executor {
	if fetcher == nil {
		fetcher = ArtifactFetcher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		runtime:  rt,
		fetcher:  fetcher,
		requests: make(chan envelope),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go e.loop()
	return e
}

// Load makes d the active model. Loading the active model again is a no-op.
func (e *Executor) Load(ctx context.Context, d model.Descriptor) error {
	resp, err := e.Send(ctx, Request{Kind: KindLoad, Model: d})
	if err != nil {
		return err
	}
	return resp.Err()
}

// Run classifies one pixel grid with the active model. The grid is copied
// before it crosses into the executor.
func (e *Executor) Run(ctx context.Context, g imaging.Grid) (Result, error) {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	resp, err := e.Send(ctx, Request{Kind: KindRun, Pixels: imaging.Grid{Side: g.Side, Pix: pix}})
	if err != nil {
		return Result{}, err
	}
	if err := resp.Err(); err != nil {
		return Result{}, err
	}
	return Result{Model: resp.Model, Probabilities: resp.Probabilities, ElapsedMS: resp.ElapsedMS}, nil
}

// Send delivers a raw protocol request and waits for its response. A request
// that has been accepted always runs to completion; if ctx ends first the
// response is discarded.
func (e *Executor) Send(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	env := envelope{req: req, reply: make(chan Response, 1)}
	select {
	case e.requests <- env:
	case <-e.quit:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	select {
	case resp := <-env.reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Close stops the worker and destroys the active session.
func (e *Executor) Close() error {
	e.once.Do(func() {
		e.cancel()
		close(e.quit)
	})
	<-e.done
	return nil
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		select {
		case env := <-e.requests:
			env.reply <- e.handle(env.req)
		case <-e.quit:
			e.release()
			return
		}
	}
}

func (e *Executor) handle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("request", req.ID).Msg("executor recovered from panic")
			resp = errorResponse(req, e.activeID(), CodeExecution, fmt.Errorf("panic: %v", r))
		}
	}()

	switch req.Kind {
	case KindLoad:
		return e.handleLoad(req)
	case KindRun:
		return e.handleRun(req)
	}
	return errorResponse(req, e.activeID(), CodeContract, fmt.Errorf("unknown request kind %q", req.Kind))
}

func (e *Executor) handleLoad(req Request) Response {
	d := req.Model
	if e.session != nil && e.active.ID == d.ID {
		return Response{ID: req.ID, Kind: KindLoadDone, Model: d.ID}
	}
	if err := d.Validate(); err != nil {
		return errorResponse(req, d.ID, CodeModelLoad, err)
	}

	start := time.Now()
	data, err := e.fetcher.Fetch(e.ctx, d.Path)
	if err != nil {
		log.Error().Err(err).Str("model", d.ID).Str("path", d.Path).Msg("failed to fetch model")
		return errorResponse(req, d.ID, CodeModelLoad, fmt.Errorf("fetch %s: %w", d.Path, err))
	}
	session, err := e.runtime.NewSession(data, d)
	if err != nil {
		log.Error().Err(err).Str("model", d.ID).Msg("failed to create session")
		return errorResponse(req, d.ID, CodeModelLoad, fmt.Errorf("create session: %w", err))
	}

	previous := e.session
	e.session = session
	e.active = &d
	if previous != nil {
		if err := previous.Destroy(); err != nil {
			log.Warn().Err(err).Msg("failed to destroy previous session")
		}
	}
	log.Info().Str("model", d.ID).Int("bytes", len(data)).Dur("took", time.Since(start)).Msg("model loaded")
	return Response{ID: req.ID, Kind: KindLoadDone, Model: d.ID}
}

func (e *Executor) handleRun(req Request) Response {
	if e.session == nil {
		return errorResponse(req, "", CodeNotLoaded, fmt.Errorf("run requested before any model was loaded"))
	}
	d := *e.active
	g := req.Pixels
	if err := g.Validate(); err != nil {
		return errorResponse(req, d.ID, CodeContract, err)
	}
	if g.Side != d.Side {
		return errorResponse(req, d.ID, CodeContract, fmt.Errorf("grid side %d, model %s expects %d", g.Side, d.ID, d.Side))
	}

	t, err := d.Encoder().Encode(g)
	if err != nil {
		return errorResponse(req, d.ID, CodeContract, err)
	}
	if len(t.Data) != 3*d.Side*d.Side {
		return errorResponse(req, d.ID, CodeContract, fmt.Errorf("tensor has %d elements, want %d", len(t.Data), 3*d.Side*d.Side))
	}

	raw, elapsed, err := e.session.Run(t)
	if err != nil {
		return errorResponse(req, d.ID, CodeExecution, err)
	}
	probs, err := model.Decode(raw, d.Classes)
	if err != nil {
		return errorResponse(req, d.ID, CodeExecution, err)
	}
	return Response{
		ID:            req.ID,
		Kind:          KindRunDone,
		Model:         d.ID,
		Probabilities: probs,
		ElapsedMS:     float64(elapsed) / float64(time.Millisecond),
	}
}

func (e *Executor) activeID() string {
	if e.active == nil {
		return ""
	}
	return e.active.ID
}

func (e *Executor) release() {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			log.Warn().Err(err).Msg("failed to destroy session")
		}
		e.session = nil
		e.active = nil
	}
}
