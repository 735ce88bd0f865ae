package app

import (
	"fmt"

	"github.com/Brownie44l1/classbench/internal/bench"
	"github.com/Brownie44l1/classbench/internal/config"
	"github.com/Brownie44l1/classbench/internal/executor"
	"github.com/Brownie44l1/classbench/internal/imaging"
	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/Brownie44l1/classbench/internal/session"
	"github.com/rs/zerolog/log"
)

// App wires the inference pipeline shared by the server and the CLI.
type App struct {
	Config      *config.Config
	Catalog     *model.Catalog
	Labels      map[string]model.LabelTable
	Samples     []bench.Sample
	Normalizer  *imaging.Normalizer
	Executor    *executor.Executor
	Coordinator *session.Coordinator
	Runner      *bench.Runner

	runtime *executor.ORTRuntime
}

// New loads the label tables and manifest and starts the executor. A missing
// manifest leaves the dataset empty rather than failing.
func New(cfg *config.Config) (*App, error) {
	caltech, err := model.LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}
	if caltech.Len() != model.Caltech101.Classes {
		log.Warn().Int("labels", caltech.Len()).Int("classes", model.Caltech101.Classes).Msg("label table size differs from model output size")
	}

	catalog, err := Catalog(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := catalog.Lookup(cfg.DefaultModel); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_MODEL: %w", err)
	}

	samples, err := bench.LoadManifest(cfg.ManifestPath, cfg.SamplesDir)
	if err != nil {
		log.Warn().Err(err).Str("manifest", cfg.ManifestPath).Msg("no benchmark dataset")
		samples = nil
	}
	if err := bench.CheckLabels(samples, caltech); err != nil {
		return nil, err
	}

	rt, err := executor.NewORTRuntime(cfg.ONNXRuntime, cfg.ORTThreads)
	if err != nil {
		return nil, err
	}

	normalizer := imaging.NewNormalizer()
	exec := executor.New(rt, executor.ArtifactFetcher{})
	coord := session.NewCoordinator(exec)

	return &App{
		Config:  cfg,
		Catalog: catalog,
		Labels: map[string]model.LabelTable{
			model.Caltech101.Name: caltech,
			model.CIFAR10.Name:    model.CIFAR10Labels,
		},
		Samples:     samples,
		Normalizer:  normalizer,
		Executor:    exec,
		Coordinator: coord,
		Runner:      bench.NewRunner(coord, normalizer, cfg.YieldEvery),
		runtime:     rt,
	}, nil
}

// Catalog returns the models listed in MODELS_CATALOG, or the built-in
// catalog when none is configured.
func Catalog(cfg *config.Config) (*model.Catalog, error) {
	if cfg.CatalogPath == "" {
		return model.DefaultCatalog(cfg.ModelsDir, cfg.CIFARModelsDir), nil
	}
	return model.LoadCatalog(cfg.CatalogPath)
}

// LabelsFor returns the label table of d's family.
func (a *App) LabelsFor(d model.Descriptor) model.LabelTable {
	return a.Labels[d.Family]
}

func (a *App) Close() {
	a.Executor.Close()
	if err := a.runtime.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to destroy ONNX environment")
	}
}
