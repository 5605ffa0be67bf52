// Package image describes the buffers handed to post-processing stages.
package image

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// PixelFormat is a V4L2-style fourcc pixel format code
type PixelFormat uint32

// Fourcc builds a PixelFormat from its four characters
func Fourcc(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	FormatNV12     = Fourcc('N', 'V', '1', '2')
	FormatNV21     = Fourcc('N', 'V', '2', '1')
	FormatNV12M    = Fourcc('N', 'M', '1', '2') // Y and CbCr in separate planes
	FormatNV21M    = Fourcc('N', 'M', '2', '1') // Y and CrCb in separate planes
	FormatYVU420   = Fourcc('Y', 'V', '1', '2') // YV12
	FormatYUYV     = Fourcc('Y', 'U', 'Y', 'V')
	FormatABGR32   = Fourcc('A', 'R', '2', '4')
	FormatJPEG     = Fourcc('J', 'P', 'E', 'G')
	FormatJPEG420  = Fourcc('J', '4', '2', '0')
	FormatJPEG422  = Fourcc('J', '4', '2', '2')
	FormatSBGGR10  = Fourcc('B', 'G', '1', '0')
	FormatSBGGR10P = Fourcc('p', 'B', 'A', 'A')
	FormatSBGGR12  = Fourcc('B', 'G', '1', '2')
	FormatSBGGR16  = Fourcc('B', 'Y', 'R', '2')
)

// String returns the four characters of the code
func (f PixelFormat) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '.'
		}
	}
	return string(b)
}

// ParseFormat converts a four character name into a PixelFormat
func ParseFormat(s string) (PixelFormat, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("pixel format %q: want 4 characters", s)
	}
	return Fourcc(s[0], s[1], s[2], s[3]), nil
}

// Rotation is a clockwise rotation in degrees
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four supported angles
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Rect is the geometry and format of an image
type Rect struct {
	X      int         `json:"x"`
	Y      int         `json:"y"`
	W      int         `json:"w"`
	H      int         `json:"h"`
	FullW  int         `json:"full_w"`
	FullH  int         `json:"full_h"`
	Format PixelFormat `json:"format"`
}

// Buffer is the memory behind an image. The stage never owns it.
type Buffer struct {
	Index  int      // slot index in the owning buffer pool, -1 if unset
	FDs    []int    // dma-buf fd per plane
	Planes [][]byte // mapped plane memory; len(Planes[i]) is the plane size
}

// PlaneCount returns the number of mapped planes
func (b Buffer) PlaneCount() int {
	return len(b.Planes)
}

// PlaneSize returns the byte size of plane i, or 0 if it does not exist
func (b Buffer) PlaneSize(i int) int {
	if i < 0 || i >= len(b.Planes) {
		return 0
	}
	return len(b.Planes[i])
}

// FD returns the fd of plane i, or -1 if it does not exist
func (b Buffer) FD(i int) int {
	if i < 0 || i >= len(b.FDs) {
		return -1
	}
	return b.FDs[i]
}

// Image is one buffer to be processed by a stage
type Image struct {
	Rect     Rect
	Buf      Buffer
	Rotation Rotation
	FlipH    bool
	FlipV    bool

	// Meta is the capture request metadata. Only backends interpret it.
	Meta any
}

// Fields flattens the image for structured logging
func (img Image) Fields() logrus.Fields {
	f := logrus.Fields{
		"x":          img.Rect.X,
		"y":          img.Rect.Y,
		"w":          img.Rect.W,
		"h":          img.Rect.H,
		"fullW":      img.Rect.FullW,
		"fullH":      img.Rect.FullH,
		"format":     img.Rect.Format.String(),
		"index":      img.Buf.Index,
		"planeCount": img.Buf.PlaneCount(),
		"rotation":   int(img.Rotation),
		"flipH":      img.FlipH,
		"flipV":      img.FlipV,
	}
	for i := 0; i < img.Buf.PlaneCount() && i < 3; i++ {
		f[fmt.Sprintf("fd[%d]", i)] = img.Buf.FD(i)
		f[fmt.Sprintf("size[%d]", i)] = img.Buf.PlaneSize(i)
	}
	return f
}
