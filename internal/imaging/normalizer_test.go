package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/nfnt/resize"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeAlwaysSquare(t *testing.T) {
	n := NewNormalizer()
	sizes := []struct{ w, h, side int }{
		{640, 480, 224},
		{480, 640, 224},
		{10, 7, 224},
		{224, 224, 224},
		{1, 300, 32},
		{33, 32, 32},
		{1000, 1000, 32},
	}
	for _, s := range sizes {
		g, err := n.Normalize(solid(s.w, s.h, color.RGBA{10, 20, 30, 255}), s.side)
		if err != nil {
			t.Fatalf("%dx%d -> %d: %v", s.w, s.h, s.side, err)
		}
		if err := g.Validate(); err != nil {
			t.Fatalf("%dx%d -> %d: %v", s.w, s.h, s.side, err)
		}
		if g.Side != s.side {
			t.Errorf("%dx%d -> side %d, want %d", s.w, s.h, g.Side, s.side)
		}
	}
}

func TestNormalizeIdentity(t *testing.T) {
	const side = 8
	src := image.NewRGBA(image.Rect(0, 0, side, side))
	for i := range src.Pix {
		if i%4 == 3 {
			src.Pix[i] = 255
			continue
		}
		src.Pix[i] = uint8(i * 7)
	}
	g, err := NewNormalizer().Normalize(src, side)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !bytes.Equal(g.Pix, src.Pix) {
		t.Fatal("square input at target side was altered")
	}
}

func TestNormalizeCenterCrop(t *testing.T) {
	// 200x100: red | green (middle half) | blue. Covering 50x50 keeps the middle.
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{0, 255, 0, 255}
			if x < 50 {
				c = color.RGBA{255, 0, 0, 255}
			} else if x >= 150 {
				c = color.RGBA{0, 0, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	n := &Normalizer{Interp: resize.NearestNeighbor}
	g, err := n.Normalize(img, 50)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	out := g.Image()
	for y := 1; y < 49; y++ {
		for x := 1; x < 49; x++ {
			if c := out.NRGBAAt(x, y); c.R != 0 || c.G != 255 || c.B != 0 {
				t.Fatalf("pixel (%d,%d) = %v, want green", x, y, c)
			}
		}
	}
}

func TestNormalizeUpscalesSmallImages(t *testing.T) {
	g, err := NewNormalizer().Normalize(solid(4, 2, color.RGBA{200, 100, 50, 255}), 16)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	c := g.Image().NRGBAAt(8, 8)
	if c.R != 200 || c.G != 100 || c.B != 50 {
		t.Errorf("center pixel = %v", c)
	}
}

func TestNormalizeReaderDecodeError(t *testing.T) {
	_, err := NewNormalizer().NormalizeReader(bytes.NewReader([]byte("not an image")), 32)
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}
}

type trackingSource struct {
	data   []byte
	closed bool
}

func (s *trackingSource) Name() string { return "tracked" }

func (s *trackingSource) Open(context.Context) (io.ReadCloser, error) {
	return &trackingReader{Reader: bytes.NewReader(s.data), src: s}, nil
}

type trackingReader struct {
	*bytes.Reader
	src *trackingSource
}

func (r *trackingReader) Close() error {
	r.src.closed = true
	return nil
}

func TestNormalizeSourceReleases(t *testing.T) {
	n := NewNormalizer()
	ctx := context.Background()

	good := &trackingSource{data: encodePNG(t, solid(40, 30, color.RGBA{1, 2, 3, 255}))}
	if _, err := n.NormalizeSource(ctx, good, 16); err != nil {
		t.Fatalf("NormalizeSource: %v", err)
	}
	if !good.closed {
		t.Error("reader not closed on success")
	}

	bad := &trackingSource{data: []byte{0x89, 'P', 'N', 'G'}}
	if _, err := n.NormalizeSource(ctx, bad, 16); !errors.Is(err, ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}
	if !bad.closed {
		t.Error("reader not closed on failure")
	}
}

func TestFileSourceMissing(t *testing.T) {
	src := FileSource{Base: t.TempDir(), Filename: "nope.jpg"}
	_, err := NewNormalizer().NormalizeSource(context.Background(), src, 32)
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), encodePNG(t, solid(64, 48, color.RGBA{9, 9, 9, 255})), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := NewNormalizer().NormalizeSource(context.Background(), FileSource{Base: dir, Filename: "a.png"}, 32)
	if err != nil {
		t.Fatalf("NormalizeSource: %v", err)
	}
	if g.Side != 32 {
		t.Errorf("side = %d", g.Side)
	}
}

func TestNormalizeExtremeAspectStaysBounded(t *testing.T) {
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 4000)))
	n := NewNormalizer()

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	g, err := n.NormalizeReader(bytes.NewReader(data), 224)
	runtime.ReadMemStats(&after)
	if err != nil {
		t.Fatalf("NormalizeReader: %v", err)
	}
	if g.Side != 224 {
		t.Fatalf("side = %d", g.Side)
	}
	const limit = 16 << 20
	if used := after.TotalAlloc - before.TotalAlloc; used > limit {
		t.Fatalf("allocated %d bytes for a 1x4000 image, want under %d", used, limit)
	}
}

func TestNormalizeReaderRejectsOversize(t *testing.T) {
	data := encodePNG(t, solid(20, 20, color.RGBA{1, 1, 1, 255}))
	n := &Normalizer{Interp: resize.Bilinear, MaxPixels: 100}
	_, err := n.NormalizeReader(bytes.NewReader(data), 8)
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}

	n.MaxPixels = 400
	if _, err := n.NormalizeReader(bytes.NewReader(data), 8); err != nil {
		t.Fatalf("at the limit: %v", err)
	}
}

func TestNormalizeKeepsStraightAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 128})
		}
	}
	n := NewNormalizer()

	g, err := n.NormalizeReader(bytes.NewReader(encodePNG(t, src)), 8)
	if err != nil {
		t.Fatalf("NormalizeReader: %v", err)
	}
	if c := g.Image().NRGBAAt(3, 3); c.R != 255 || c.A != 128 {
		t.Errorf("same side pixel = %v, want R=255 A=128", c)
	}

	g, err = n.Normalize(src, 4)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if c := g.Image().NRGBAAt(2, 2); c.R < 250 || c.G != 0 {
		t.Errorf("resized pixel = %v, want R near 255", c)
	}
}

func TestNormalizeOffsetBounds(t *testing.T) {
	// A sub-image keeps its parent's coordinates; the crop must follow them.
	parent := solid(300, 100, color.RGBA{255, 0, 0, 255})
	for y := 0; y < 100; y++ {
		for x := 150; x < 250; x++ {
			parent.SetRGBA(x, y, color.RGBA{0, 0, 255, 255})
		}
	}
	sub := parent.SubImage(image.Rect(100, 0, 300, 100))
	g, err := (&Normalizer{Interp: resize.NearestNeighbor}).Normalize(sub, 10)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if c := g.Image().NRGBAAt(5, 5); c.B != 255 || c.R != 0 {
		t.Errorf("center pixel = %v, want blue", c)
	}
}
