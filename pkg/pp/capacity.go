package pp

import (
	"fmt"

	"github.com/video-system/go-camera-pp/pkg/image"
)

const (
	// MaxFormats is the size of the per-side format table
	MaxFormats = 8
	// MaxImages bounds the number of images one side of a stage can take
	MaxImages = 4
)

type formatEntry struct {
	format     image.PixelFormat
	widthAlign int
}

// Capacity declares which pixel formats one side of a stage accepts and how
// many images it expects. It is a fixed table; the zero value takes one image
// and no formats.
type Capacity struct {
	numOfImage int
	count      int
	entries    [MaxFormats]formatEntry
}

// NewCapacity returns a capacity expecting n images
func NewCapacity(n int) Capacity {
	return Capacity{numOfImage: n}
}

// AddFormat appends a format with a width alignment (<= 0 means 1).
// The table never grows past MaxFormats; later formats are rejected.
func (c *Capacity) AddFormat(f image.PixelFormat, widthAlign int) error {
	if c.count >= MaxFormats {
		return fmt.Errorf("add %s: %w", f, ErrCapacityFull)
	}
	if widthAlign <= 0 {
		widthAlign = 1
	}
	c.entries[c.count] = formatEntry{format: f, widthAlign: widthAlign}
	c.count++
	return nil
}

// AddFormats appends formats with alignment 1, stopping at the first error
func (c *Capacity) AddFormats(fs ...image.PixelFormat) error {
	for _, f := range fs {
		if err := c.AddFormat(f, 1); err != nil {
			return err
		}
	}
	return nil
}

// Supports reports whether an image of format f and width w is accepted.
// Only the first entry declaring f is consulted.
func (c Capacity) Supports(f image.PixelFormat, width int) bool {
	for i := 0; i < c.count; i++ {
		if c.entries[i].format != f {
			continue
		}
		return width%c.entries[i].widthAlign == 0
	}
	return false
}

// SetNumOfImage sets how many images this side expects
func (c *Capacity) SetNumOfImage(n int) {
	c.numOfImage = n
}

// NumOfImage returns how many images this side expects
func (c Capacity) NumOfImage() int {
	return c.numOfImage
}

// Formats returns the declared formats in declaration order
func (c Capacity) Formats() []image.PixelFormat {
	out := make([]image.PixelFormat, c.count)
	for i := 0; i < c.count; i++ {
		out[i] = c.entries[i].format
	}
	return out
}

// WidthAlign returns the alignment of the first entry for f, or 0 if absent
func (c Capacity) WidthAlign(f image.PixelFormat) int {
	for i := 0; i < c.count; i++ {
		if c.entries[i].format == f {
			return c.entries[i].widthAlign
		}
	}
	return 0
}

// Equal compares image count and the format table in declaration order
func (c Capacity) Equal(o Capacity) bool {
	return c == o
}

// String lists the formats for logs
func (c Capacity) String() string {
	s := fmt.Sprintf("images(%d) formats[", c.numOfImage)
	for i := 0; i < c.count; i++ {
		if i > 0 {
			s += " "
		}
		s += c.entries[i].format.String()
		if c.entries[i].widthAlign > 1 {
			s += fmt.Sprintf("/%d", c.entries[i].widthAlign)
		}
	}
	return s + "]"
}
