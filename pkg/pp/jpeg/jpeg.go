// Package jpeg provides the JPEG encoder stage.
package jpeg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
)

const Name = "JpegEncoder"

// ExtControl ids
const (
	CtrlQuality     = 1 // data: int, 1..100
	CtrlEncodedSize = 2 // data: *int, receives the size of the last encoded picture
)

const DefaultQuality = 96

var (
	ErrOutputTooSmall = errors.New("destination buffer too small for encoded picture")
	ErrBadControl     = errors.New("bad control")
	ErrRegion         = errors.New("image region outside of buffer")
)

// yuvFrame is a cropped, contiguous NV12/NV21 copy of the source region
type yuvFrame struct {
	w, h    int
	y, uv   []byte
	crFirst bool
}

// Encoder encodes NV12/NV21 family images. The encoded stream is written to
// plane 0 of the destination; JPEG_422 destinations get the same 4:2:0 stream.
type Encoder struct {
	log *logrus.Entry

	mu      sync.Mutex
	opened  bool
	quality int
	last    int
}

// New returns an encoder with DefaultQuality
func New(log *logrus.Entry) *Encoder {
	return &Encoder{
		log:     log.WithField("backend", Name),
		quality: DefaultQuality,
	}
}

func (e *Encoder) Name() string {
	return Name
}

func (e *Encoder) DeclareCapacity(src, dst *pp.Capacity) error {
	src.SetNumOfImage(1)
	dst.SetNumOfImage(1)
	if err := src.AddFormats(image.FormatNV21, image.FormatNV12, image.FormatNV21M, image.FormatNV12M); err != nil {
		return err
	}
	return dst.AddFormats(image.FormatJPEG420, image.FormatJPEG422, image.FormatJPEG)
}

func (e *Encoder) Create() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = true
	e.last = 0
	e.log.WithField("quality", e.quality).Debug("open")
	return nil
}

func (e *Encoder) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = false
	e.log.Debug("close")
	return nil
}

func (e *Encoder) Draw(src, dst []image.Image) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened {
		return fmt.Errorf("%s: %w", Name, pp.ErrNotCreated)
	}

	in, err := crop(src[0])
	if err != nil {
		return err
	}

	out, err := encode(in, e.quality)
	if err != nil {
		return fmt.Errorf("encode %dx%d: %w", in.w, in.h, err)
	}

	if dst[0].Buf.PlaneSize(0) < len(out) {
		e.log.Errorf("encoded size(%d) > dst size(%d)", len(out), dst[0].Buf.PlaneSize(0))
		return fmt.Errorf("%d > %d: %w", len(out), dst[0].Buf.PlaneSize(0), ErrOutputTooSmall)
	}
	copy(dst[0].Buf.Planes[0], out)
	e.last = len(out)

	e.log.WithFields(logrus.Fields{
		"w":       in.w,
		"h":       in.h,
		"size":    len(out),
		"quality": e.quality,
	}).Trace("encoded")
	return nil
}

// ExtControl sets the quality or reads back the last encoded size
func (e *Encoder) ExtControl(ctrl int, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ctrl {
	case CtrlQuality:
		q, ok := data.(int)
		if !ok || q < 1 || q > 100 {
			return fmt.Errorf("quality %v: %w", data, ErrBadControl)
		}
		e.quality = q
	case CtrlEncodedSize:
		p, ok := data.(*int)
		if !ok || p == nil {
			return fmt.Errorf("encoded size wants *int: %w", ErrBadControl)
		}
		*p = e.last
	default:
		return fmt.Errorf("control %d: %w", ctrl, ErrBadControl)
	}
	return nil
}

// crop copies the source region into a contiguous semi-planar frame
func crop(img image.Image) (*yuvFrame, error) {
	r := img.Rect
	x0, y0, w, h := r.X, r.Y, r.W, r.H
	if w == 0 && h == 0 {
		w, h = r.FullW, r.FullH
	}
	if x0 < 0 || y0 < 0 || w <= 0 || h <= 0 || x0+w > r.FullW || y0+h > r.FullH {
		return nil, fmt.Errorf("rect(%d,%d %dx%d) in %dx%d: %w", x0, y0, w, h, r.FullW, r.FullH, ErrRegion)
	}
	// chroma sites are shared by pixel pairs
	x0, y0, w, h = x0&^1, y0&^1, w&^1, h&^1
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("rect %dx%d too small: %w", r.W, r.H, ErrRegion)
	}

	ySrc, uvSrc, err := image.SemiPlanar(img)
	if err != nil {
		return nil, err
	}

	f := &yuvFrame{
		w:       w,
		h:       h,
		y:       make([]byte, w*h),
		uv:      make([]byte, w*h/2),
		crFirst: image.CrFirst(r.Format),
	}
	for row := 0; row < h; row++ {
		copy(f.y[row*w:(row+1)*w], ySrc[(y0+row)*r.FullW+x0:])
	}
	for row := 0; row < h/2; row++ {
		copy(f.uv[row*w:(row+1)*w], uvSrc[(y0/2+row)*r.FullW+x0:])
	}
	return f, nil
}
