// Package arcsoft provides software renditions of the vendor special
// function libraries: HDR, night shot, anti-shake and flawless.
package arcsoft

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/sfl"
)

// Working memory each library asks for by default
const (
	HDRBufferSize       = 40 << 20
	NightShotBufferSize = 60 << 20
	AntiShakeBufferSize = 50 << 20
	FlawlessBufferSize  = 20 << 20
)

// ErrGeometry is returned when buffers of one capture disagree in size
var ErrGeometry = errors.New("sfl buffers differ in geometry")

// Constructors maps every slot this device has a library for. OIS and
// panorama have none.
func Constructors() map[sfl.Type]sfl.Constructor {
	return map[sfl.Type]sfl.Constructor{
		sfl.HDR:       NewHDR,
		sfl.Night:     NewNightShot,
		sfl.AntiShake: NewAntiShake,
		sfl.Flawless:  NewFlawless,
	}
}

func NewHDR(_ int, log *logrus.Entry) sfl.Library {
	return sfl.NewEngine(sfl.EngineConfig{
		Name:     "ARCSOFT HDR",
		Type:     sfl.HDR,
		MemSize:  HDRBufferSize,
		SrcCount: 3,
		DstCount: 1,
		Merge:    mergeHDR,
	}, log)
}

func NewNightShot(_ int, log *logrus.Entry) sfl.Library {
	return sfl.NewEngine(sfl.EngineConfig{
		Name:     "ARCSOFT NIGHT",
		Type:     sfl.Night,
		MemSize:  NightShotBufferSize,
		SrcCount: 4,
		DstCount: 1,
		Merge:    mergeNight,
	}, log)
}

func NewAntiShake(_ int, log *logrus.Entry) sfl.Library {
	l := log.WithField("lib", "antishake")
	return sfl.NewEngine(sfl.EngineConfig{
		Name:     "ARCSOFT ANTISHAKE",
		Type:     sfl.AntiShake,
		MemSize:  AntiShakeBufferSize,
		SrcCount: 2,
		DstCount: 1,
		Merge: func(src []sfl.Buffer, dst sfl.Buffer, meta any) error {
			return mergeAntiShake(src, dst, meta, l)
		},
	}, log)
}

func NewFlawless(_ int, log *logrus.Entry) sfl.Library {
	return sfl.NewEngine(sfl.EngineConfig{
		Name:     "ARCSOFT FLAWLESS",
		Type:     sfl.Flawless,
		MemSize:  FlawlessBufferSize,
		SrcCount: 1,
		DstCount: 1,
		Merge:    mergeFlawless,
	}, log)
}

// frame is the luma and chroma view of one NV21 buffer
type frame struct {
	y, uv []byte
}

func frames(src []sfl.Buffer, dst sfl.Buffer) ([]frame, frame, error) {
	out, err := view(dst)
	if err != nil {
		return nil, frame{}, fmt.Errorf("dst: %w", err)
	}
	in := make([]frame, 0, len(src))
	for i, b := range src {
		if b.Width != dst.Width || b.Height != dst.Height {
			return nil, frame{}, fmt.Errorf("src[%d] %dx%d, dst %dx%d: %w", i, b.Width, b.Height, dst.Width, dst.Height, ErrGeometry)
		}
		f, err := view(b)
		if err != nil {
			return nil, frame{}, fmt.Errorf("src[%d]: %w", i, err)
		}
		in = append(in, f)
	}
	return in, out, nil
}

func view(b sfl.Buffer) (frame, error) {
	img := b.Image()
	if img.Rect.Format == 0 {
		img.Rect.Format = image.FormatNV21
	}
	y, uv, err := image.SemiPlanar(img)
	if err != nil {
		return frame{}, err
	}
	return frame{y: y, uv: uv}, nil
}
