package imaging

import (
	"fmt"
	"image"
)

// Grid is a square RGBA pixel buffer, one byte per channel, row-major with a
// stride of 4*Side. Color channels are straight, not premultiplied by alpha.
type Grid struct {
	Side int
	Pix  []uint8
}

// NewGrid allocates a zeroed side×side grid.
func NewGrid(side int) Grid {
	return Grid{Side: side, Pix: make([]uint8, 4*side*side)}
}

// Validate reports whether the buffer length matches the declared side.
func (g Grid) Validate() error {
	if g.Side <= 0 {
		return fmt.Errorf("grid side must be positive, got %d", g.Side)
	}
	if len(g.Pix) != 4*g.Side*g.Side {
		return fmt.Errorf("grid of side %d needs %d bytes, got %d", g.Side, 4*g.Side*g.Side, len(g.Pix))
	}
	return nil
}

// Image wraps the grid as an *image.NRGBA sharing the same buffer.
func (g Grid) Image() *image.NRGBA {
	return &image.NRGBA{Pix: g.Pix, Stride: 4 * g.Side, Rect: image.Rect(0, 0, g.Side, g.Side)}
}
