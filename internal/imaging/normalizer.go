package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// ErrImageDecode marks a source that could not be read or decoded as an
// image. It is a per-item failure.
var ErrImageDecode = errors.New("image decode failed")

// DefaultMaxPixels caps the declared width×height accepted before decoding.
const DefaultMaxPixels = 64 << 20

// Normalizer turns arbitrary images into square grids using a scale-to-cover
// policy: the shorter side is scaled to the target and the overflow of the
// longer side is cropped away, centered.
type Normalizer struct {
	Interp resize.InterpolationFunction
	// MaxPixels bounds the declared image area; zero means DefaultMaxPixels.
	MaxPixels int
}

// NewNormalizer returns a Normalizer using bilinear resampling.
func NewNormalizer() *Normalizer {
	return &Normalizer{Interp: resize.Bilinear, MaxPixels: DefaultMaxPixels}
}

// NormalizeSource opens src, decodes it and normalizes it to side×side. The
// reader obtained from src is closed on every path.
func (n *Normalizer) NormalizeSource(ctx context.Context, src Source, side int) (grid Grid, err error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return Grid{}, fmt.Errorf("%w: open %s: %v", ErrImageDecode, src.Name(), err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %v", ErrImageDecode, src.Name(), cerr)
		}
	}()
	return n.NormalizeReader(rc, side)
}

// NormalizeReader decodes r and normalizes the image to side×side. The
// header is checked against MaxPixels before any pixel data is decoded.
func (n *Normalizer) NormalizeReader(r io.Reader, side int) (Grid, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return Grid{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if err := n.checkSize(cfg.Width, cfg.Height); err != nil {
		return Grid{}, err
	}
	img, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return Grid{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return n.Normalize(img, side)
}

func (n *Normalizer) checkSize(w, h int) error {
	limit := n.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: empty image %dx%d", ErrImageDecode, w, h)
	}
	if w > limit/h {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageDecode, w, h, limit)
	}
	return nil
}

// Normalize scales img to cover a side×side square and center-crops it.
// The centered min(w,h) square is cut out first and only that square is
// resampled, so no intermediate is larger than the source or the target.
func (n *Normalizer) Normalize(img image.Image, side int) (Grid, error) {
	if side <= 0 {
		return Grid{}, fmt.Errorf("target side must be positive, got %d", side)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return Grid{}, fmt.Errorf("%w: empty image %dx%d", ErrImageDecode, w, h)
	}

	crop := centerSquare(b)
	var square image.Image = straight(img, crop)
	if crop.Dx() != side {
		square = resize.Resize(uint(side), uint(side), square, n.Interp)
	}

	grid := NewGrid(side)
	dst := grid.Image()
	draw.Draw(dst, dst.Bounds(), square, square.Bounds().Min, draw.Src)
	return grid, nil
}

// centerSquare returns the largest square centered in b.
func centerSquare(b image.Rectangle) image.Rectangle {
	c := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-c)/2
	y0 := b.Min.Y + (b.Dy()-c)/2
	return image.Rect(x0, y0, x0+c, y0+c)
}

// straight copies the r region of img into a zero-origin NRGBA, so channel
// values are not premultiplied by alpha.
func straight(img image.Image, r image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
