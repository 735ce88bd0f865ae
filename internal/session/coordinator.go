package session

import (
	"context"
	"sync"

	"github.com/Brownie44l1/classbench/internal/executor"
	"github.com/Brownie44l1/classbench/internal/imaging"
	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/rs/zerolog/log"
)

// Backend is the executor surface used by the coordinator.
type Backend interface {
	Load(ctx context.Context, d model.Descriptor) error
	Run(ctx context.Context, g imaging.Grid) (executor.Result, error)
}

// Coordinator tracks which model the backend holds and funnels every backend
// call through a single lock, so at most one request is in flight. The
// current identifier has its own lock and can be read during a load.
type Coordinator struct {
	backend Backend
	mu      sync.Mutex

	stateMu sync.RWMutex
	current string
}

func NewCoordinator(b Backend) *Coordinator {
	return &Coordinator{backend: b}
}

// Current returns the identifier of the loaded model, or "" before the first
// successful load.
func (c *Coordinator) Current() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.current
}

func (c *Coordinator) setCurrent(id string) {
	c.stateMu.Lock()
	c.current = id
	c.stateMu.Unlock()
}

// EnsureLoaded loads d unless it is already current. On failure the previous
// identifier is kept.
func (c *Coordinator) EnsureLoaded(ctx context.Context, d model.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLoaded(ctx, d)
}

// ensureLoaded must be called with mu held.
func (c *Coordinator) ensureLoaded(ctx context.Context, d model.Descriptor) error {
	current := c.Current()
	if current == d.ID {
		return nil
	}
	log.Debug().Str("from", current).Str("to", d.ID).Msg("switching model")
	if err := c.backend.Load(ctx, d); err != nil {
		return err
	}
	c.setCurrent(d.ID)
	return nil
}

// Classify ensures d is loaded and runs one inference on g.
func (c *Coordinator) Classify(ctx context.Context, d model.Descriptor, g imaging.Grid) (model.Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(ctx, d); err != nil {
		return model.Prediction{}, err
	}
	res, err := c.backend.Run(ctx, g)
	if err != nil {
		return model.Prediction{}, err
	}
	return model.NewPrediction(res.Model, res.Probabilities, res.ElapsedMS), nil
}
