package uniplugin

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
)

const (
	NameObjectTracking = "UniPluginObjectTracking"
	PluginTracking     = "object_tracking"
)

// CtrlTouchROI moves the tracked region. Takes a Rect.
const CtrlTouchROI = 1

type status int

const (
	statusIdle status = iota
	statusRun
	statusDeinit
)

func (s status) String() string {
	switch s {
	case statusIdle:
		return "IDLE"
	case statusRun:
		return "RUN"
	case statusDeinit:
		return "DEINIT"
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// ObjectTracking follows a touched region through preview frames. Frames
// pass through unchanged; the tracked state is read back after each frame.
type ObjectTracking struct {
	base
	status status
	roi    Rect
	focus  FocusInfo
}

func NewObjectTracking(cameraID int, log *logrus.Entry) *ObjectTracking {
	l := log.WithField("backend", NameObjectTracking)
	return &ObjectTracking{base: newBase(PluginTracking, cameraID, l)}
}

func (t *ObjectTracking) Name() string {
	return NameObjectTracking
}

func (t *ObjectTracking) DeclareCapacity(src, dst *pp.Capacity) error {
	src.SetNumOfImage(1)
	dst.SetNumOfImage(1)
	if err := src.AddFormats(image.FormatNV21, image.FormatNV21M); err != nil {
		return err
	}
	return dst.AddFormats(image.FormatNV21, image.FormatNV21M)
}

func (t *ObjectTracking) Create() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = statusIdle
	return t.create()
}

func (t *ObjectTracking) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = statusIdle
	return t.destroy()
}

func (t *ObjectTracking) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.initPlugin(); err != nil {
		return err
	}
	roi := t.roi
	if err := t.set(IndexFocusInfo, &FocusInfo{ROI: roi}); err != nil {
		_ = t.deinit()
		return err
	}
	t.status = statusRun
	t.log.Debugf("status %s", t.status)
	return nil
}

func (t *ObjectTracking) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.focus = FocusInfo{}
	t.status = statusDeinit
	t.log.Debugf("status %s", t.status)
	return t.deinit()
}

func (t *ObjectTracking) Draw(src, dst []image.Image) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loader == nil {
		return fmt.Errorf("%s: %w", NameObjectTracking, pp.ErrNotCreated)
	}

	copyPlanes(src[0], dst[0])

	if t.status != statusRun {
		return nil
	}
	if src[0].Buf.Index < 0 {
		return nil
	}

	info := BufferInfo{
		In:     &src[0],
		Width:  src[0].Rect.W,
		Height: src[0].Rect.H,
		Index:  src[0].Buf.Index,
	}
	if err := t.set(IndexBufferInfo, &info); err != nil {
		return err
	}
	if err := t.process(); err != nil {
		return err
	}
	var focus FocusInfo
	if err := t.get(IndexFocusInfo, &focus); err != nil {
		return err
	}
	t.focus = focus
	t.log.WithFields(logrus.Fields{
		"state":  focus.State,
		"left":   focus.ROI.Left,
		"top":    focus.ROI.Top,
		"right":  focus.ROI.Right,
		"bottom": focus.ROI.Bottom,
	}).Trace("focus info")
	return nil
}

func (t *ObjectTracking) ExtControl(ctrl int, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ctrl != CtrlTouchROI {
		return fmt.Errorf("control %d: %w", ctrl, ErrBadIndex)
	}
	roi, ok := data.(Rect)
	if !ok {
		return fmt.Errorf("touch roi %T: %w", data, ErrBadPayload)
	}
	t.roi = roi
	if t.status == statusRun {
		return t.set(IndexFocusInfo, &FocusInfo{ROI: roi})
	}
	return nil
}

// Focus returns the tracked state after the last processed frame
func (t *ObjectTracking) Focus() FocusInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focus
}
