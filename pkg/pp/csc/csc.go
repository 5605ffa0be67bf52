// Package csc provides colour-space converter stages: the G2D blitter
// ("acryl") and the software libcsc path used as its YV12 fallback.
package csc

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
)

const (
	NameAcryl  = "LibAcryl"
	NameLibCSC = "LibCSC"
)

// acryl cannot handle YV12
var acrylFormats = []image.PixelFormat{
	image.FormatNV21,
	image.FormatNV21M,
	image.FormatNV12,
	image.FormatNV12M,
	image.FormatYUYV,
	image.FormatABGR32,
}

// Converter is a colour-space conversion backend. It crops, scales, rotates
// and flips with nearest-neighbour sampling.
type Converter struct {
	name    string
	formats []image.PixelFormat
	align   int
	log     *logrus.Entry

	opened atomic.Bool
	frames atomic.Int64
}

// NewAcryl returns the G2D converter
func NewAcryl(log *logrus.Entry) *Converter {
	return &Converter{
		name:    NameAcryl,
		formats: acrylFormats,
		align:   2,
		log:     log.WithField("backend", NameAcryl),
	}
}

// NewLibCSC returns the software converter, which also accepts YV12
func NewLibCSC(log *logrus.Entry) *Converter {
	formats := append([]image.PixelFormat{image.FormatYVU420}, acrylFormats...)
	return &Converter{
		name:    NameLibCSC,
		formats: formats,
		align:   1,
		log:     log.WithField("backend", NameLibCSC),
	}
}

func (c *Converter) Name() string {
	return c.name
}

func (c *Converter) DeclareCapacity(src, dst *pp.Capacity) error {
	src.SetNumOfImage(1)
	dst.SetNumOfImage(1)
	for _, f := range c.formats {
		align := c.align
		switch f {
		case image.FormatYVU420:
			// libcsc wants 16 pixel aligned YV12 strides
			align = 16
		case image.FormatYUYV:
			align = max(align, 2)
		}
		if err := src.AddFormat(f, align); err != nil {
			return err
		}
		if err := dst.AddFormat(f, align); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) Create() error {
	if !c.opened.CompareAndSwap(false, true) {
		return fmt.Errorf("%s already open", c.name)
	}
	c.log.Debug("open")
	return nil
}

func (c *Converter) Destroy() error {
	if !c.opened.CompareAndSwap(true, false) {
		c.log.Warn("close without open")
		return nil
	}
	c.log.WithField("frames", c.frames.Load()).Debug("close")
	return nil
}

// Draw converts src[i] into dst[i]. Extra destinations reuse the last source.
func (c *Converter) Draw(src, dst []image.Image) error {
	if !c.opened.Load() {
		return fmt.Errorf("%s: %w", c.name, pp.ErrNotCreated)
	}
	for i, d := range dst {
		s := src[min(i, len(src)-1)]
		if err := c.convert(s, d); err != nil {
			return fmt.Errorf("%s dst[%d]: %w", c.name, i, err)
		}
	}
	c.frames.Add(1)
	return nil
}

func (c *Converter) convert(src, dst image.Image) error {
	f, err := readFrame(src)
	if err != nil {
		return err
	}
	_, _, w, h, err := region(dst.Rect)
	if err != nil {
		return err
	}
	if !dst.Rotation.Valid() {
		return fmt.Errorf("rotation %d: %w", dst.Rotation, ErrFormat)
	}
	return writeFrame(resample(f, w, h, dst.Rotation, dst.FlipH, dst.FlipV), dst)
}

// Frames returns the number of successful draws
func (c *Converter) Frames() int64 {
	return c.frames.Load()
}
