package tensor

import (
	"fmt"

	"github.com/Brownie44l1/classbench/internal/imaging"
)

// Normalization holds the per-channel mean and standard deviation applied
// to values scaled into [0,1]. Channels are in R, G, B order.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

var (
	// ImageNet is used by the 224px model family.
	ImageNet = Normalization{
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
	// CIFAR is used by the 32px model family.
	CIFAR = Normalization{
		Mean: [3]float32{0.4914, 0.4822, 0.4465},
		Std:  [3]float32{0.2023, 0.1994, 0.2010},
	}
)

// ChannelOrder is the order in which color planes are laid out in a tensor.
type ChannelOrder string

const (
	RGB ChannelOrder = "RGB"
	BGR ChannelOrder = "BGR"
)

// planes maps tensor plane index to RGBA byte offset.
func (o ChannelOrder) planes() ([3]int, error) {
	switch o {
	case RGB, "":
		return [3]int{0, 1, 2}, nil
	case BGR:
		return [3]int{2, 1, 0}, nil
	}
	return [3]int{}, fmt.Errorf("unsupported channel order %q", o)
}

// Tensor is a flat float32 buffer in NCHW layout with shape [1,3,S,S].
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// Side returns the spatial side length.
func (t Tensor) Side() int { return int(t.Shape[3]) }

// Len is the element count implied by the shape.
func (t Tensor) Len() int {
	return int(t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3])
}

// Encoder converts pixel grids into normalized channel-major tensors.
type Encoder struct {
	Norm  Normalization
	Order ChannelOrder
}

// Encode computes (raw/255 - mean[c]) / std[c] for every pixel and channel.
// Alpha is ignored.
func (e Encoder) Encode(g imaging.Grid) (Tensor, error) {
	if err := g.Validate(); err != nil {
		return Tensor{}, err
	}
	planes, err := e.Order.planes()
	if err != nil {
		return Tensor{}, err
	}
	for c := 0; c < 3; c++ {
		if e.Norm.Std[planes[c]] == 0 {
			return Tensor{}, fmt.Errorf("zero std for channel %d", planes[c])
		}
	}

	s := g.Side
	area := s * s
	data := make([]float32, 3*area)
	for i := 0; i < area; i++ {
		px := g.Pix[i*4 : i*4+4 : i*4+4]
		for c := 0; c < 3; c++ {
			src := planes[c]
			v := float32(px[src]) / 255.0
			data[c*area+i] = (v - e.Norm.Mean[src]) / e.Norm.Std[src]
		}
	}
	return Tensor{Shape: [4]int64{1, 3, int64(s), int64(s)}, Data: data}, nil
}

// Decode inverts Encode, recovering 0-255 channel values. It is used by tests
// and for debugging dumps of model input.
func (e Encoder) Decode(t Tensor) (imaging.Grid, error) {
	if len(t.Data) != t.Len() || t.Shape[1] != 3 {
		return imaging.Grid{}, fmt.Errorf("tensor shape %v does not match %d elements", t.Shape, len(t.Data))
	}
	planes, err := e.Order.planes()
	if err != nil {
		return imaging.Grid{}, err
	}
	s := t.Side()
	area := s * s
	g := imaging.NewGrid(s)
	for i := 0; i < area; i++ {
		for c := 0; c < 3; c++ {
			src := planes[c]
			v := (t.Data[c*area+i]*e.Norm.Std[src] + e.Norm.Mean[src]) * 255.0
			g.Pix[i*4+src] = clamp(v)
		}
		g.Pix[i*4+3] = 255
	}
	return g, nil
}

func clamp(v float32) uint8 {
	v += 0.5
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
