package uniplugin

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
)

const (
	NameSWVdis = "UniPluginSWVdis"
	PluginVDIS = "sw_vdis"
)

// Controls taken by the stabilisation scenario before Start
const (
	CtrlFPSRange    = 1 // [2]int{min, max}
	CtrlOrientation = 2 // int degrees
	CtrlVideoSize   = 3 // [2]int{w, h}
)

// SWVdis stabilises the recording stream in software. Each frame goes in
// with its buffer indices packed; the plugin answers with the recording
// buffer it finished and the preview crop offset.
type SWVdis struct {
	base
	status status

	minFPS, maxFPS int
	orientation    int
	outW, outH     int

	videoIndex int
	offset     Rect
	frames     int
}

func NewSWVdis(cameraID int, log *logrus.Entry) *SWVdis {
	l := log.WithField("backend", NameSWVdis)
	return &SWVdis{
		base:       newBase(PluginVDIS, cameraID, l),
		minFPS:     30,
		maxFPS:     30,
		videoIndex: -1,
	}
}

func (v *SWVdis) Name() string {
	return NameSWVdis
}

func (v *SWVdis) DeclareCapacity(src, dst *pp.Capacity) error {
	src.SetNumOfImage(1)
	dst.SetNumOfImage(1)
	if err := src.AddFormats(image.FormatNV21, image.FormatNV21M); err != nil {
		return err
	}
	return dst.AddFormats(image.FormatNV21, image.FormatNV21M)
}

func (v *SWVdis) Create() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = statusIdle
	return v.create()
}

func (v *SWVdis) Destroy() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = statusIdle
	return v.destroy()
}

func (v *SWVdis) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.join(); err != nil {
		return err
	}

	v.frames = 0
	v.videoIndex = -1
	v.offset = Rect{}

	// failures below are logged by the wrappers; init decides
	_ = v.set(IndexBufferInfo, &BufferInfo{Width: v.outW, Height: v.outH})
	_ = v.set(IndexExtraBufferInfo, &ExtraBufferInfo{Orientation: v.orientation / 90})
	fps := FPSInfo{Max: 30}
	if v.minFPS >= 60 && v.maxFPS >= 60 {
		fps.Max = 60
	}
	_ = v.set(IndexFPSInfo, &fps)

	if err := v.initPlugin(); err != nil {
		return err
	}
	v.status = statusRun
	v.log.WithFields(logrus.Fields{"w": v.outW, "h": v.outH, "fps": fps.Max}).Debugf("status %s", v.status)
	return nil
}

func (v *SWVdis) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.status = statusDeinit
	v.frames = 0
	v.log.Debugf("status %s", v.status)
	return v.deinit()
}

func (v *SWVdis) Draw(src, dst []image.Image) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loader == nil {
		return fmt.Errorf("%s: %w", NameSWVdis, pp.ErrNotCreated)
	}
	if _, err := v.join(); err != nil {
		return err
	}

	switch v.status {
	case statusRun:
	case statusDeinit:
		v.log.Debug("draw after deinit")
		return nil
	default:
		return nil
	}

	in, out := src[0].Buf.Index, dst[0].Buf.Index
	if in < 0 || out < 0 {
		v.videoIndex = -1
		return nil
	}

	info := BufferInfo{
		In:        &src[0],
		Out:       &dst[0],
		Width:     src[0].Rect.W,
		Height:    src[0].Rect.H,
		Index:     PackIndex(out, in, false),
		Timestamp: int64(v.frames),
	}
	if err := v.set(IndexBufferInfo, &info); err != nil {
		return err
	}
	if err := v.process(); err != nil {
		return err
	}
	v.frames++

	var crop Rect
	if err := v.get(IndexCropInfo, &crop); err != nil {
		return err
	}
	var done BufferInfo
	if err := v.get(IndexBufferInfo, &done); err != nil {
		return err
	}
	if done.Timestamp != 0 {
		v.offset = crop
	}
	v.videoIndex = -1
	if done.Index >= 0 {
		v.videoIndex = OutIndex(done.Index)
	}
	v.log.Tracef("frame(%d) in(%d) out(%d) video(%d)", v.frames, in, out, v.videoIndex)
	return nil
}

func (v *SWVdis) ExtControl(ctrl int, data any) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ctrl {
	case CtrlFPSRange:
		r, ok := data.([2]int)
		if !ok {
			return fmt.Errorf("fps range %T: %w", data, ErrBadPayload)
		}
		v.minFPS, v.maxFPS = r[0], r[1]
	case CtrlOrientation:
		o, ok := data.(int)
		if !ok {
			return fmt.Errorf("orientation %T: %w", data, ErrBadPayload)
		}
		v.orientation = o
	case CtrlVideoSize:
		s, ok := data.([2]int)
		if !ok {
			return fmt.Errorf("video size %T: %w", data, ErrBadPayload)
		}
		v.outW, v.outH = s[0], s[1]
	default:
		return fmt.Errorf("control %d: %w", ctrl, ErrBadIndex)
	}
	return nil
}

// VideoIndex returns the recording buffer finished by the last frame, or -1
func (v *SWVdis) VideoIndex() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.videoIndex
}

// PreviewOffset returns the stabilised crop offset for preview
func (v *SWVdis) PreviewOffset() Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}
