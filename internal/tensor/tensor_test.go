package tensor

import (
	"math"
	"testing"

	"github.com/Brownie44l1/classbench/internal/imaging"
)

func patterned(side int) imaging.Grid {
	g := imaging.NewGrid(side)
	for i := range g.Pix {
		g.Pix[i] = uint8((i*37 + 11) % 256)
	}
	return g
}

func TestEncodeShapeAndLayout(t *testing.T) {
	g := imaging.NewGrid(2)
	// pixel 1 (x=1,y=0) = (255, 0, 51)
	copy(g.Pix[4:8], []uint8{255, 0, 51, 0})

	out, err := Encoder{Norm: ImageNet}.Encode(g)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if out.Shape != [4]int64{1, 3, 2, 2} {
		t.Fatalf("shape = %v", out.Shape)
	}
	if len(out.Data) != 3*2*2 || out.Len() != len(out.Data) {
		t.Fatalf("len = %d", len(out.Data))
	}
	want := []float32{
		(1 - 0.485) / 0.229,
		(0 - 0.456) / 0.224,
		(0.2 - 0.406) / 0.225,
	}
	for c, w := range want {
		if got := out.Data[c*4+1]; math.Abs(float64(got-w)) > 1e-5 {
			t.Errorf("channel %d = %v, want %v", c, got, w)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		enc  Encoder
		side int
	}{
		{"imagenet", Encoder{Norm: ImageNet}, 224},
		{"cifar", Encoder{Norm: CIFAR}, 32},
		{"cifar-bgr", Encoder{Norm: CIFAR, Order: BGR}, 32},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := patterned(tc.side)
			enc, err := tc.enc.Encode(g)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			dec, err := tc.enc.Decode(enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			for i := range g.Pix {
				if i%4 == 3 {
					continue
				}
				if g.Pix[i] != dec.Pix[i] {
					t.Fatalf("byte %d: got %d want %d", i, dec.Pix[i], g.Pix[i])
				}
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	g := patterned(32)
	a, _ := Encoder{Norm: CIFAR}.Encode(g)
	b, _ := Encoder{Norm: CIFAR}.Encode(g)
	for i := range a.Data {
		if math.Float32bits(a.Data[i]) != math.Float32bits(b.Data[i]) {
			t.Fatalf("element %d differs", i)
		}
	}
}

func TestEncodeBGRSwapsPlanes(t *testing.T) {
	g := imaging.NewGrid(1)
	copy(g.Pix, []uint8{255, 128, 0, 255})
	identity := Normalization{Std: [3]float32{1, 1, 1}}

	out, err := Encoder{Norm: identity, Order: BGR}.Encode(g)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if out.Data[0] != 0 || out.Data[2] != 1 {
		t.Errorf("BGR planes = %v", out.Data)
	}
}

func TestEncodeRejectsBadGrid(t *testing.T) {
	if _, err := (Encoder{Norm: ImageNet}).Encode(imaging.Grid{Side: 4, Pix: make([]uint8, 10)}); err == nil {
		t.Error("expected error for short buffer")
	}
	if _, err := (Encoder{Norm: ImageNet, Order: "XYZ"}).Encode(imaging.NewGrid(2)); err == nil {
		t.Error("expected error for unknown channel order")
	}
	if _, err := (Encoder{}).Encode(imaging.NewGrid(2)); err == nil {
		t.Error("expected error for zero std")
	}
}
