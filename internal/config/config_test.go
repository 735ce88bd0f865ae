package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ASSETS_DIR", "MODELS_DIR", "CIFAR_MODELS_DIR", "SAMPLES_DIR",
		"LABELS_PATH", "MANIFEST_PATH", "ORT_THREADS", "DEFAULT_MODEL", "YIELD_EVERY"} {
		t.Setenv(k, "")
	}
	t.Setenv("ASSETS_DIR", "assets")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if want := filepath.Join("assets", "samples"); cfg.SamplesDir != want {
		t.Errorf("SamplesDir = %q, want %q", cfg.SamplesDir, want)
	}
	if want := filepath.Join("assets", "labels.json"); cfg.LabelsPath != want {
		t.Errorf("LabelsPath = %q, want %q", cfg.LabelsPath, want)
	}
	if cfg.ORTThreads != 1 || cfg.YieldEvery != 5 {
		t.Errorf("ORTThreads=%d YieldEvery=%d", cfg.ORTThreads, cfg.YieldEvery)
	}
	if cfg.DefaultModel != "lmfrnet" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
}

func TestFromEnvInvalidInt(t *testing.T) {
	t.Setenv("YIELD_EVERY", "often")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for non-numeric YIELD_EVERY")
	}
	t.Setenv("YIELD_EVERY", "-2")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for negative YIELD_EVERY")
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("PORT=9191\nDEFAULT_MODEL=resnet18\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEFAULT_MODEL", "")
	os.Unsetenv("DEFAULT_MODEL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9191" || cfg.DefaultModel != "resnet18" {
		t.Errorf("got Port=%q DefaultModel=%q", cfg.Port, cfg.DefaultModel)
	}
	os.Unsetenv("PORT")
	os.Unsetenv("DEFAULT_MODEL")
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}
