package model

// Prediction is the decoded outcome of one forward pass.
type Prediction struct {
	Model         string    `json:"model"`
	Index         int       `json:"index"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"-"`
	ElapsedMS     float64   `json:"elapsed_ms"`
}

// NewPrediction selects the top-1 class of probs.
func NewPrediction(modelID string, probs []float64, elapsedMS float64) Prediction {
	idx, conf := Top1(probs)
	return Prediction{
		Model:         modelID,
		Index:         idx,
		Confidence:    conf,
		Probabilities: probs,
		ElapsedMS:     elapsedMS,
	}
}

type PredictionResponse struct {
	Model       string             `json:"model"`
	Class       string             `json:"class"`
	Index       int                `json:"index"`
	Confidence  float64            `json:"confidence"`
	ElapsedMS   float64            `json:"elapsed_ms"`
	Predictions map[string]float64 `json:"predictions"`
}

// Response renders p against the label table for API output.
func (p Prediction) Response(labels LabelTable) *PredictionResponse {
	predictions := make(map[string]float64, len(p.Probabilities))
	for i, v := range p.Probabilities {
		predictions[labels.Name(i)] = v
	}
	return &PredictionResponse{
		Model:       p.Model,
		Class:       labels.Name(p.Index),
		Index:       p.Index,
		Confidence:  p.Confidence,
		ElapsedMS:   p.ElapsedMS,
		Predictions: predictions,
	}
}

// ModelInfo is one entry of the /models listing.
type ModelInfo struct {
	Descriptor
	Active bool `json:"active"`
}
