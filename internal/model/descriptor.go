package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Brownie44l1/classbench/internal/tensor"
)

// Family groups models sharing input size, normalization and label table.
type Family struct {
	Name    string
	Side    int
	Norm    tensor.Normalization
	Classes int
}

var (
	Caltech101 = Family{Name: "caltech101", Side: 224, Norm: tensor.ImageNet, Classes: 101}
	CIFAR10    = Family{Name: "cifar10", Side: 32, Norm: tensor.CIFAR, Classes: 10}
)

// Descriptor identifies a model artifact and the tensor contract it expects.
type Descriptor struct {
	ID      string               `json:"id"`
	Name    string               `json:"name"`
	Path    string               `json:"path"`
	Side    int                  `json:"side"`
	Order   tensor.ChannelOrder  `json:"channel_order"`
	Norm    tensor.Normalization `json:"-"`
	Family  string               `json:"family"`
	Classes int                  `json:"classes"`
}

// NewDescriptor builds a descriptor for the artifact at location, deriving
// the identifier from its base name.
func NewDescriptor(name, location string, f Family) Descriptor {
	return Descriptor{
		ID:      IDFromPath(location),
		Name:    name,
		Path:    location,
		Side:    f.Side,
		Order:   tensor.RGB,
		Norm:    f.Norm,
		Family:  f.Name,
		Classes: f.Classes,
	}
}

// IDFromPath returns the artifact base name without the .onnx extension.
func IDFromPath(location string) string {
	base := path.Base(filepath.ToSlash(location))
	return strings.TrimSuffix(base, ".onnx")
}

// Encoder returns the tensor encoder matching this descriptor.
func (d Descriptor) Encoder() tensor.Encoder {
	return tensor.Encoder{Norm: d.Norm, Order: d.Order}
}

func (d Descriptor) Validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("descriptor has no identifier")
	case d.Path == "":
		return fmt.Errorf("descriptor %s has no artifact path", d.ID)
	case d.Side <= 0:
		return fmt.Errorf("descriptor %s has invalid side %d", d.ID, d.Side)
	case d.Classes <= 0:
		return fmt.Errorf("descriptor %s has invalid class count %d", d.ID, d.Classes)
	}
	return nil
}

// Catalog is the immutable set of models available to a process.
type Catalog struct {
	order []string
	byID  map[string]Descriptor
}

func NewCatalog(ds ...Descriptor) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Descriptor, len(ds))}
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate model identifier %s", d.ID)
		}
		c.byID[d.ID] = d
		c.order = append(c.order, d.ID)
	}
	return c, nil
}

// DefaultCatalog lists the Caltech-101 models under caltechDir and the
// CIFAR-10 models under cifarDir.
func DefaultCatalog(caltechDir, cifarDir string) *Catalog {
	ds := []Descriptor{
		NewDescriptor("LMFRNet (Default)", filepath.Join(caltechDir, "lmfrnet.onnx"), Caltech101),
		NewDescriptor("LMFRNet Hires", filepath.Join(caltechDir, "lmfrnet_hires.onnx"), Caltech101),
		NewDescriptor("MobileNetV3 Large", filepath.Join(caltechDir, "mobilenetv3_large.onnx"), Caltech101),
		NewDescriptor("ResNet18", filepath.Join(caltechDir, "resnet18.onnx"), Caltech101),
	}
	for _, m := range []struct{ name, file string }{
		{"LMFRNet (CIFAR-10)", "lmfrnet.onnx"},
		{"ResNet18 (CIFAR-10)", "resnet18.onnx"},
	} {
		d := NewDescriptor(m.name, filepath.Join(cifarDir, m.file), CIFAR10)
		d.ID = "cifar_" + d.ID
		ds = append(ds, d)
	}
	c, err := NewCatalog(ds...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Get(id string) (Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Lookup is Get with an error for unknown identifiers.
func (c *Catalog) Lookup(id string) (Descriptor, error) {
	d, ok := c.byID[id]
	if !ok {
		known := append([]string(nil), c.order...)
		sort.Strings(known)
		return Descriptor{}, fmt.Errorf("unknown model %q (known: %s)", id, strings.Join(known, ", "))
	}
	return d, nil
}

// All returns descriptors in declaration order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

var families = map[string]Family{
	Caltech101.Name: Caltech101,
	CIFAR10.Name:    CIFAR10,
}

// catalogEntry is one record of a catalog file. Side, classes and channel
// order default to the family's values.
type catalogEntry struct {
	ID      string              `json:"id"`
	Name    string              `json:"name"`
	Path    string              `json:"path"`
	Family  string              `json:"family"`
	Side    int                 `json:"side"`
	Classes int                 `json:"classes"`
	Order   tensor.ChannelOrder `json:"channel_order"`
}

// LoadCatalog reads a JSON array of model entries. Relative paths are
// resolved against the directory holding the catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	dir := filepath.Dir(path)
	ds := make([]Descriptor, 0, len(entries))
	for i, e := range entries {
		f, ok := families[e.Family]
		if !ok {
			return nil, fmt.Errorf("catalog entry %d: unknown family %q", i, e.Family)
		}
		location := e.Path
		if !strings.Contains(location, "://") && !filepath.IsAbs(location) {
			location = filepath.Join(dir, location)
		}
		d := NewDescriptor(e.Name, location, f)
		if e.ID != "" {
			d.ID = e.ID
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if e.Side > 0 {
			d.Side = e.Side
		}
		if e.Classes > 0 {
			d.Classes = e.Classes
		}
		if e.Order != "" {
			d.Order = e.Order
		}
		ds = append(ds, d)
	}
	return NewCatalog(ds...)
}
