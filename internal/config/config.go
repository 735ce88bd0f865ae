package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings shared by the server and the bench CLI.
type Config struct {
	Port           string
	AssetsDir      string
	ModelsDir      string
	CIFARModelsDir string
	CatalogPath    string
	SamplesDir     string
	LabelsPath     string
	ManifestPath   string
	ONNXRuntime    string
	ORTThreads     int
	DefaultModel   string
	YieldEvery     int
	LogLevel       string
}

// Load reads the optional env files (".env" when none are given) and then
// the process environment. A missing env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	assets := getenv("ASSETS_DIR", "public")
	cfg := &Config{
		Port:           getenv("PORT", "8080"),
		AssetsDir:      assets,
		ModelsDir:      getenv("MODELS_DIR", filepath.Join(assets, "models_caltech101")),
		CIFARModelsDir: getenv("CIFAR_MODELS_DIR", filepath.Join(assets, "models_onnx")),
		CatalogPath:    os.Getenv("MODELS_CATALOG"),
		SamplesDir:     getenv("SAMPLES_DIR", filepath.Join(assets, "samples")),
		LabelsPath:     getenv("LABELS_PATH", filepath.Join(assets, "labels.json")),
		ManifestPath:   getenv("MANIFEST_PATH", filepath.Join(assets, "samples.json")),
		ONNXRuntime:    os.Getenv("ONNX_RUNTIME"),
		DefaultModel:   getenv("DEFAULT_MODEL", "lmfrnet"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.ORTThreads, err = getint("ORT_THREADS", 1); err != nil {
		return nil, err
	}
	if cfg.YieldEvery, err = getint("YIELD_EVERY", 5); err != nil {
		return nil, err
	}
	if cfg.ORTThreads < 0 {
		return nil, fmt.Errorf("ORT_THREADS must be >= 0, got %d", cfg.ORTThreads)
	}
	if cfg.YieldEvery < 0 {
		return nil, fmt.Errorf("YIELD_EVERY must be >= 0, got %d", cfg.YieldEvery)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
