package bench

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ItemResult is the outcome of one sample. Err is set for skipped items.
type ItemResult struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Label      int     `json:"label"`
	Predicted  int     `json:"predicted"`
	Confidence float64 `json:"confidence"`
	ElapsedMS  float64 `json:"elapsed_ms"`
	Correct    bool    `json:"correct"`
	Err        error   `json:"-"`
}

func (r ItemResult) Skipped() bool { return r.Err != nil }

func (r ItemResult) Labeled() bool { return r.Label >= 0 }

// Aggregate accumulates statistics for a single run.
type Aggregate struct {
	Total             int
	Processed         int
	Scored            int
	Skipped           int
	Labeled           int
	Correct           int
	LatencyMS         float64
	Confidence        float64
	ConfidenceCorrect float64

	latencies []float64
}

func NewAggregate(total int) *Aggregate {
	return &Aggregate{Total: total, latencies: make([]float64, 0, total)}
}

func (a *Aggregate) Add(r ItemResult) {
	a.Processed++
	if r.Skipped() {
		a.Skipped++
		return
	}
	a.Scored++
	a.LatencyMS += r.ElapsedMS
	a.Confidence += r.Confidence
	a.latencies = append(a.latencies, r.ElapsedMS)
	if !r.Labeled() {
		return
	}
	a.Labeled++
	if r.Correct {
		a.Correct++
		a.ConfidenceCorrect += r.Confidence
	}
}

// Report is a finalized aggregate. Percentages are in [0,100]. Accuracy is
// computed over labeled scored items; HasAccuracy is false when there are
// none. Latency figures cover scored items only.
type Report struct {
	RunID                 string  `json:"run_id,omitempty"`
	Model                 string  `json:"model,omitempty"`
	Total                 int     `json:"total"`
	Processed             int     `json:"processed"`
	Scored                int     `json:"scored"`
	Skipped               int     `json:"skipped"`
	Labeled               int     `json:"labeled"`
	Correct               int     `json:"correct"`
	HasAccuracy           bool    `json:"has_accuracy"`
	Accuracy              float64 `json:"accuracy"`
	MeanLatencyMS         float64 `json:"mean_latency_ms"`
	LatencyStdDevMS       float64 `json:"latency_stddev_ms"`
	P50LatencyMS          float64 `json:"p50_latency_ms"`
	P95LatencyMS          float64 `json:"p95_latency_ms"`
	MeanConfidence        float64 `json:"mean_confidence"`
	MeanConfidenceCorrect float64 `json:"mean_confidence_correct"`
}

func (a *Aggregate) Report() Report {
	r := Report{
		Total:     a.Total,
		Processed: a.Processed,
		Scored:    a.Scored,
		Skipped:   a.Skipped,
		Labeled:   a.Labeled,
		Correct:   a.Correct,
	}
	if a.Labeled > 0 {
		r.HasAccuracy = true
		r.Accuracy = 100 * float64(a.Correct) / float64(a.Labeled)
	}
	if a.Correct > 0 {
		r.MeanConfidenceCorrect = 100 * a.ConfidenceCorrect / float64(a.Correct)
	}
	if a.Scored == 0 {
		return r
	}
	r.MeanConfidence = 100 * a.Confidence / float64(a.Scored)
	r.MeanLatencyMS = a.LatencyMS / float64(a.Scored)

	sorted := append([]float64(nil), a.latencies...)
	sort.Float64s(sorted)
	if len(sorted) > 1 {
		r.LatencyStdDevMS = stat.StdDev(sorted, nil)
	}
	r.P50LatencyMS = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	r.P95LatencyMS = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return r
}
