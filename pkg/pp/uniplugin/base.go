package uniplugin

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/video-system/go-camera-pp/pkg/image"
)

// loader resolves a plugin module in the background
type loader struct {
	done   chan struct{}
	plugin Plugin
	err    error
}

func load(name string, log *logrus.Entry) *loader {
	l := &loader{done: make(chan struct{})}
	go func() {
		defer close(l.done)
		p, ok := Get(name)
		if !ok {
			l.err = fmt.Errorf("%s: %w", name, ErrPluginNotFound)
			return
		}
		l.plugin = p
		log.Debug("plugin loaded")
	}()
	return l
}

// wait joins the load
func (l *loader) wait() (Plugin, error) {
	<-l.done
	return l.plugin, l.err
}

// base holds what every scenario shares: the plugin handle behind its
// loader, the init state, and the logging wrappers around each call.
type base struct {
	plugin   string
	cameraID int
	log      *logrus.Entry

	mu     sync.Mutex
	loader *loader
	handle Plugin
	inited bool
}

func newBase(plugin string, cameraID int, log *logrus.Entry) base {
	return base{
		plugin:   plugin,
		cameraID: cameraID,
		log:      log.WithField("plugin", plugin),
	}
}

// create starts loading the plugin. Callers hold mu.
func (b *base) create() error {
	if b.loader != nil {
		return nil
	}
	b.loader = load(b.plugin, b.log)
	return nil
}

// join waits for the load started by create. Callers hold mu.
func (b *base) join() (Plugin, error) {
	if b.handle != nil {
		return b.handle, nil
	}
	if b.loader == nil {
		b.log.Error("uni plugin is not loading. so, fail")
		return nil, fmt.Errorf("%s: %w", b.plugin, ErrNotLoaded)
	}
	p, err := b.loader.wait()
	if err != nil {
		b.log.WithError(err).Error("uni plugin load fail")
		return nil, err
	}
	b.handle = p
	return p, nil
}

// destroy joins the loader, deinits if needed and unloads. Callers hold mu.
func (b *base) destroy() error {
	if b.loader == nil {
		return nil
	}
	p, err := b.loader.wait()
	b.loader = nil
	b.handle = nil
	if err != nil {
		// nothing was loaded, nothing to release
		return nil
	}

	var errs error
	if b.inited {
		errs = multierr.Append(errs, p.Deinit())
		b.inited = false
	}
	if err := p.Unload(); err != nil {
		b.log.WithError(err).Error("uni plugin unload fail")
		errs = multierr.Append(errs, err)
	}
	return errs
}

// initPlugin sets the camera info and inits the plugin. Callers hold mu.
func (b *base) initPlugin() error {
	p, err := b.join()
	if err != nil {
		return err
	}
	info := CameraInfo{CameraType: b.cameraID, SensorType: b.cameraID}
	b.log.Debugf("set camera info: %d:%d", info.CameraType, info.SensorType)
	if err := p.Set(IndexCameraInfo, &info); err != nil {
		b.log.WithError(err).Errorf("set %s fail", IndexCameraInfo)
	}
	if err := p.Init(); err != nil {
		b.log.WithError(err).Error("uni plugin init fail")
		return fmt.Errorf("%s init: %w", b.plugin, err)
	}
	b.inited = true
	return nil
}

// deinit is a no-op when the plugin was never inited. Callers hold mu.
func (b *base) deinit() error {
	if !b.inited {
		return nil
	}
	b.inited = false
	if err := b.handle.Deinit(); err != nil {
		b.log.WithError(err).Error("uni plugin deinit fail")
		return fmt.Errorf("%s deinit: %w", b.plugin, err)
	}
	return nil
}

func (b *base) set(idx Index, data any) error {
	if b.handle == nil {
		return fmt.Errorf("%s set %s: %w", b.plugin, idx, ErrNotLoaded)
	}
	if err := b.handle.Set(idx, data); err != nil {
		b.log.WithError(err).Errorf("set %s fail", idx)
		return fmt.Errorf("%s set %s: %w", b.plugin, idx, err)
	}
	return nil
}

func (b *base) get(idx Index, data any) error {
	if b.handle == nil {
		return fmt.Errorf("%s get %s: %w", b.plugin, idx, ErrNotLoaded)
	}
	if err := b.handle.Get(idx, data); err != nil {
		b.log.WithError(err).Errorf("get %s fail", idx)
		return fmt.Errorf("%s get %s: %w", b.plugin, idx, err)
	}
	return nil
}

func (b *base) process() error {
	if b.handle == nil {
		return fmt.Errorf("%s process: %w", b.plugin, ErrNotLoaded)
	}
	if err := b.handle.Process(); err != nil {
		b.log.WithError(err).Error("process fail")
		return fmt.Errorf("%s process: %w", b.plugin, err)
	}
	return nil
}

// copyPlanes copies src planes into dst unless they share storage
func copyPlanes(src, dst image.Image) {
	for i := 0; i < src.Buf.PlaneCount() && i < dst.Buf.PlaneCount(); i++ {
		s, d := src.Buf.Planes[i], dst.Buf.Planes[i]
		if len(s) > 0 && len(d) > 0 && &s[0] == &d[0] {
			continue
		}
		copy(d, s)
	}
}
