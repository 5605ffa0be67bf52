package uniplugin

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
)

const (
	NameLowLightDeblur = "UniPluginLowLightDeblur"
	PluginLowLight     = "lls_deblur"
)

// ErrBadStep is returned for a capture step outside 1..Count
var ErrBadStep = errors.New("capture step out of range")

// Capture tells the multi-frame scenario where a frame sits in its burst.
// It travels in image.Image.Meta of the source image.
type Capture struct {
	Step  int // 1-based
	Count int
	Mode  OperationMode
}

// LowLightDeblur merges a burst of low-light captures into one frame. The
// first step inits the plugin, every step feeds one frame, and the last step
// processes and deinits.
type LowLightDeblur struct {
	base
	debug []byte
}

func NewLowLightDeblur(cameraID int, log *logrus.Entry) *LowLightDeblur {
	l := log.WithField("backend", NameLowLightDeblur)
	return &LowLightDeblur{base: newBase(PluginLowLight, cameraID, l)}
}

func (d *LowLightDeblur) Name() string {
	return NameLowLightDeblur
}

func (d *LowLightDeblur) DeclareCapacity(src, dst *pp.Capacity) error {
	src.SetNumOfImage(1)
	dst.SetNumOfImage(1)
	if err := src.AddFormats(image.FormatNV21M, image.FormatNV21); err != nil {
		return err
	}
	return dst.AddFormats(image.FormatNV21M, image.FormatNV21)
}

func (d *LowLightDeblur) Create() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.create()
}

func (d *LowLightDeblur) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroy()
}

func (d *LowLightDeblur) Draw(src, dst []image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loader == nil {
		return fmt.Errorf("%s: %w", NameLowLightDeblur, pp.ErrNotCreated)
	}
	if _, err := d.join(); err != nil {
		return err
	}

	c, ok := src[0].Meta.(*Capture)
	if !ok || c == nil {
		d.log.Error("no capture step on source image. so, fail")
		return fmt.Errorf("%s: %w", NameLowLightDeblur, ErrBadStep)
	}
	if c.Count <= 0 || c.Step < 1 || c.Step > c.Count {
		d.log.Errorf("wrong step(%d) of count(%d)", c.Step, c.Count)
		return fmt.Errorf("step %d of %d: %w", c.Step, c.Count, ErrBadStep)
	}

	if c.Step == 1 {
		if err := d.first(c); err != nil {
			return err
		}
	}

	info := BufferInfo{
		In:     &src[0],
		Out:    &dst[0],
		Width:  src[0].Rect.W,
		Height: src[0].Rect.H,
		Index:  src[0].Buf.Index,
	}
	d.log.Debugf("set in-buffer info(W: %d, H: %d) step(%d/%d)", info.Width, info.Height, c.Step, c.Count)
	if err := d.set(IndexBufferInfo, &info); err != nil {
		return err
	}

	if c.Step < c.Count {
		copyPlanes(src[0], dst[0])
		return nil
	}

	d.log.Debug("last shot")
	err := d.process()
	if err == nil {
		var dbg DebugInfo
		if gerr := d.get(IndexDebugInfo, &dbg); gerr == nil {
			d.log.Debugf("debug buffer size: %d", len(dbg.Data))
			d.debug = dbg.Data
		}
	}
	if derr := d.deinit(); derr != nil && err == nil {
		err = derr
	}
	return err
}

// first inits the plugin for a new burst
func (d *LowLightDeblur) first(c *Capture) error {
	if d.inited {
		// a previous burst never reached its last step
		d.log.Warn("plugin still inited from an unfinished burst. so, deinit first")
		_ = d.deinit()
	}
	if err := d.initPlugin(); err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{"count": c.Count, "mode": c.Mode}).Debug("set capture num and mode")
	count := c.Count
	if err := d.set(IndexTotalBufferNum, &count); err != nil {
		return err
	}
	mode := c.Mode
	return d.set(IndexOperationMode, &mode)
}

// DebugInfo returns the debug blob of the last completed burst
func (d *LowLightDeblur) DebugInfo() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.debug
}
