// Package remosaic provides the bayer remosaic stage for quad-bayer sensors.
package remosaic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
)

const Name = "LibRemosaic"

// Sensor geometry the library is initialised for
const (
	SensorWidth  = 4608
	SensorHeight = 3456
	Pedestal     = 64
)

// ErrNoShot is returned when the source image carries no shot metadata
var ErrNoShot = errors.New("source image has no shot metadata")

// Shot is the per-frame metadata the remosaic library needs. It travels in
// image.Image.Meta.
type Shot struct {
	ColorGains [4]float32 // R, Gr, Gb, B
	AnalogGain uint32
}

// Params is what one process call is configured with
type Params struct {
	WBRGain      int16
	WBGrGain     int16
	WBGbGain     int16
	WBBGain      int16
	AnalogGain   int32
	CurLineCount int32
}

// ParamsFromShot scales white balance gains to Q10 fixed point
func ParamsFromShot(s *Shot) Params {
	return Params{
		WBRGain:      int16(s.ColorGains[0] * 1024),
		WBGrGain:     int16(s.ColorGains[1] * 1024),
		WBGbGain:     int16(s.ColorGains[2] * 1024),
		WBBGain:      int16(s.ColorGains[3] * 1024),
		AnalogGain:   int32(s.AnalogGain),
		CurLineCount: 100,
	}
}

// Remosaic converts quad-bayer captures to a standard bayer pattern. The
// library and its calibration gain map are initialised on the first frame.
type Remosaic struct {
	log *logrus.Entry

	mu     sync.Mutex
	opened bool
	inited bool
	last   Params
}

func New(log *logrus.Entry) *Remosaic {
	return &Remosaic{log: log.WithField("backend", Name)}
}

func (r *Remosaic) Name() string {
	return Name
}

func (r *Remosaic) DeclareCapacity(src, dst *pp.Capacity) error {
	formats := []image.PixelFormat{
		image.FormatSBGGR16,
		image.FormatSBGGR12,
		image.FormatSBGGR10,
		image.FormatSBGGR10P,
	}
	src.SetNumOfImage(1)
	dst.SetNumOfImage(1)
	if err := src.AddFormats(formats...); err != nil {
		return err
	}
	return dst.AddFormats(formats...)
}

func (r *Remosaic) Create() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = true
	return nil
}

func (r *Remosaic) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inited {
		r.log.Debug("never initialised. so, skip deinit")
	}
	r.inited = false
	r.opened = false
	return nil
}

func (r *Remosaic) delayedCreate() {
	r.log.WithFields(logrus.Fields{
		"w":        SensorWidth,
		"h":        SensorHeight,
		"pedestal": Pedestal,
	}).Debug("init")
	r.inited = true
}

// Draw remosaics src[0] into dst[0] plane by plane. Planes of different sizes
// are copied up to the smaller one.
func (r *Remosaic) Draw(src, dst []image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.opened {
		return fmt.Errorf("%s: %w", Name, pp.ErrNotCreated)
	}

	s, d := src[0], dst[0]
	shot, ok := s.Meta.(*Shot)
	if !ok || shot == nil {
		r.log.Error("no shot metadata. so, skip remosaic")
		return ErrNoShot
	}

	if !r.inited {
		r.delayedCreate()
	}

	p := ParamsFromShot(shot)
	r.last = p
	r.log.WithFields(logrus.Fields{
		"wbR":        p.WBRGain,
		"wbGr":       p.WBGrGain,
		"wbGb":       p.WBGbGain,
		"wbB":        p.WBBGain,
		"analogGain": p.AnalogGain,
	}).Debug("remosaic params")

	for i := 0; i < s.Buf.PlaneCount() && i < d.Buf.PlaneCount(); i++ {
		n := copy(d.Buf.Planes[i], s.Buf.Planes[i])
		if n < s.Buf.PlaneSize(i) {
			r.log.Warnf("size different : src[%d] %d, dst[%d] %d", i, s.Buf.PlaneSize(i), i, d.Buf.PlaneSize(i))
		}
	}

	// shot metadata follows the frame
	dst[0].Meta = shot
	return nil
}

// LastParams returns the parameters of the last processed frame
func (r *Remosaic) LastParams() Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Initialised reports whether the delayed library init has run
func (r *Remosaic) Initialised() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inited
}
