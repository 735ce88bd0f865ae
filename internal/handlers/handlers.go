package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Brownie44l1/classbench/internal/bench"
	"github.com/Brownie44l1/classbench/internal/executor"
	"github.com/Brownie44l1/classbench/internal/imaging"
	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/Brownie44l1/classbench/internal/session"
	"github.com/rs/zerolog/log"
)

const maxUploadBytes = 32 << 20

type Handler struct {
	coordinator  *session.Coordinator
	runner       *bench.Runner
	normalizer   *imaging.Normalizer
	catalog      *model.Catalog
	labels       map[string]model.LabelTable
	samples      []bench.Sample
	defaultModel string
}

type Options struct {
	Coordinator  *session.Coordinator
	Runner       *bench.Runner
	Normalizer   *imaging.Normalizer
	Catalog      *model.Catalog
	Labels       map[string]model.LabelTable // keyed by model family
	Samples      []bench.Sample
	DefaultModel string
}

func NewHandler(opts Options) *Handler {
	n := opts.Normalizer
	if n == nil {
		n = imaging.NewNormalizer()
	}
	return &Handler{
		coordinator:  opts.Coordinator,
		runner:       opts.Runner,
		normalizer:   n,
		catalog:      opts.Catalog,
		labels:       opts.Labels,
		samples:      opts.Samples,
		defaultModel: opts.DefaultModel,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) resolveModel(id string) (model.Descriptor, error) {
	if id == "" {
		id = h.defaultModel
	}
	return h.catalog.Lookup(id)
}

func (h *Handler) labelsFor(d model.Descriptor) model.LabelTable {
	return h.labels[d.Family]
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"model":  h.coordinator.Current(),
	})
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	current := h.coordinator.Current()
	var infos []model.ModelInfo
	for _, d := range h.catalog.All() {
		infos = append(infos, model.ModelInfo{Descriptor: d, Active: d.ID == current})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current": current,
		"models":  infos,
	})
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	d, err := h.resolveModel(r.FormValue("model"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	log.Debug().Str("file", header.Filename).Int64("size", header.Size).Str("model", d.ID).Msg("received image")

	grid, err := h.normalizer.NormalizeReader(file, d.Side)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG, GIF", http.StatusBadRequest)
		return
	}

	pred, err := h.coordinator.Classify(r.Context(), d, grid)
	if err != nil {
		log.Error().Err(err).Str("model", d.ID).Msg("prediction error")
		if errors.Is(err, executor.ErrModelLoad) {
			http.Error(w, "Model load failed", http.StatusInternalServerError)
			return
		}
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, pred.Response(h.labelsFor(d)))
}

type benchmarkRequest struct {
	Model string `json:"model"`
}

// Benchmark reports runner status on GET and starts a dataset run on POST.
// The run continues in the background after the response.
func (h *Handler) Benchmark(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.runner.Status())
		return
	case http.MethodPost:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req benchmarkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	d, err := h.resolveModel(req.Model)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := bench.CheckLabels(h.samples, h.labelsFor(d)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runID, err := h.runner.Start(d, len(h.samples))
	switch {
	case errors.Is(err, bench.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, bench.ErrEmptyDataset):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go h.runner.Execute(context.Background(), runID, d, h.samples, nil)

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "model": d.ID})
}

type itemRow struct {
	bench.ItemResult
	LabelName     string `json:"label_name"`
	PredictedName string `json:"predicted_name,omitempty"`
	Error         string `json:"error,omitempty"`
}

type customResponse struct {
	Report *bench.Report `json:"report"`
	Items  []itemRow     `json:"items"`
}

// BenchmarkCustom scores uploaded images synchronously. Each "images" part
// pairs with the "labels" value at the same position; missing or -1 labels
// mean unlabeled.
func (h *Handler) BenchmarkCustom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	d, err := h.resolveModel(r.FormValue("model"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	labels := h.labelsFor(d)

	samples, err := customSamples(r, labels)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var rows []itemRow
	obs := bench.ObserverFunc(func(p bench.Progress) {
		row := itemRow{ItemResult: p.Item}
		if p.Item.Labeled() {
			row.LabelName = labels.Name(p.Item.Label)
		} else {
			row.LabelName = "unlabeled"
		}
		if p.Item.Err != nil {
			row.Error = p.Item.Err.Error()
		} else {
			row.PredictedName = labels.Name(p.Item.Predicted)
		}
		rows = append(rows, row)
	})

	report, err := h.runner.Run(r.Context(), d, samples, obs)
	switch {
	case errors.Is(err, bench.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, bench.ErrEmptyDataset):
		http.Error(w, "No images provided. Use 'images' as the form field name", http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).Msg("custom benchmark failed")
		http.Error(w, "Benchmark failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, customResponse{Report: report, Items: rows})
}

func customSamples(r *http.Request, labels model.LabelTable) ([]bench.Sample, error) {
	files := r.MultipartForm.File["images"]
	labelValues := r.MultipartForm.Value["labels"]

	samples := make([]bench.Sample, 0, len(files))
	for i, fh := range files {
		label := model.Unlabeled
		if i < len(labelValues) && labelValues[i] != "" {
			n, err := strconv.Atoi(labelValues[i])
			if err != nil {
				return nil, fmt.Errorf("invalid label %q for %s", labelValues[i], fh.Filename)
			}
			if n >= labels.Len() {
				return nil, fmt.Errorf("label %d for %s is outside the %d-class table", n, fh.Filename, labels.Len())
			}
			if n >= 0 {
				label = n
			}
		}

		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
		}
		samples = append(samples, bench.Sample{
			Source: imaging.BytesSource{Label: fh.Filename, Data: data},
			Label:  label,
		})
	}
	return samples, nil
}
