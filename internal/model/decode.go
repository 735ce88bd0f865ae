package model

import (
	"fmt"
	"math"
)

// Softmax returns exp(x-max)/sum over logits. The result is computed in
// float64 and always sums to one for non-empty input.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > max {
			max = float64(v)
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - max)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Top1 returns the index and value of the largest probability. Ties resolve
// to the lowest index. It returns -1 for an empty slice.
func Top1(probs []float64) (int, float64) {
	if len(probs) == 0 {
		return -1, 0
	}
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best, probs[best]
}

// Decode applies softmax to the first classes logits of raw. Models may emit
// trailing logits past the label range; those are ignored. A raw vector
// shorter than classes, or one holding NaN or infinite scores, violates the
// output contract.
func Decode(raw []float32, classes int) ([]float64, error) {
	if classes <= 0 {
		return nil, fmt.Errorf("invalid class count %d", classes)
	}
	if len(raw) < classes {
		return nil, fmt.Errorf("model produced %d scores, expected at least %d", len(raw), classes)
	}
	for i, v := range raw[:classes] {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("model produced non-finite score %v at index %d", v, i)
		}
	}
	return Softmax(raw[:classes]), nil
}
