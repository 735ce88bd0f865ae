package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Brownie44l1/classbench/internal/imaging"
	"github.com/Brownie44l1/classbench/internal/model"
)

// Sample is one dataset item. Label is model.Unlabeled when there is no
// ground truth.
type Sample struct {
	Source imaging.Source
	Label  int
}

func (s Sample) Labeled() bool { return s.Label >= 0 }

// ManifestEntry is one record of samples.json.
type ManifestEntry struct {
	Filename string `json:"filename"`
	Label    *int   `json:"label,omitempty"`
}

// LoadManifest reads a JSON manifest and resolves filenames against baseDir,
// which is either a local directory or an http(s) base URL. Entries without
// a label, or with a negative one, are unlabeled.
func LoadManifest(path, baseDir string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	samples := make([]Sample, 0, len(entries))
	for i, e := range entries {
		if e.Filename == "" {
			return nil, fmt.Errorf("manifest entry %d has no filename", i)
		}
		label := model.Unlabeled
		if e.Label != nil && *e.Label >= 0 {
			label = *e.Label
		}
		samples = append(samples, Sample{
			Source: sampleSource(baseDir, e.Filename),
			Label:  label,
		})
	}
	return samples, nil
}

func sampleSource(base, filename string) imaging.Source {
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return imaging.URLSource{URL: strings.TrimRight(base, "/") + "/" + strings.TrimLeft(filename, "/")}
	}
	return imaging.FileSource{Base: base, Filename: filename}
}

// CheckLabels reports the first sample whose label falls outside labels.
func CheckLabels(samples []Sample, labels model.LabelTable) error {
	for i, s := range samples {
		if s.Labeled() && s.Label >= labels.Len() {
			return fmt.Errorf("sample %d (%s) has label %d, table has %d classes", i, s.Source.Name(), s.Label, labels.Len())
		}
	}
	return nil
}
