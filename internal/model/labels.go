package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Unlabeled is the ground-truth sentinel for samples without a label.
const Unlabeled = -1

// LabelTable is the ordered list of class names; the index is the class id.
type LabelTable []string

// CIFAR10Labels is the built-in table for the CIFAR-10 family.
var CIFAR10Labels = LabelTable{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}

// LoadLabels reads a JSON array of class names.
func LoadLabels(path string) (LabelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	var labels LabelTable
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label table %s is empty", path)
	}
	return labels, nil
}

// Name returns the class name for index, or "Unknown (index)".
func (t LabelTable) Name(index int) string {
	if index >= 0 && index < len(t) {
		return t[index]
	}
	return fmt.Sprintf("Unknown (%d)", index)
}

func (t LabelTable) Len() int { return len(t) }
