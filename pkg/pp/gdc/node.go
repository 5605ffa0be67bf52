package gdc

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/image"
)

var ErrNodeState = errors.New("node in wrong state")

// node is one queue of the memory-to-memory device: the output (source) side
// or the capture (destination) side.
type node struct {
	name string
	log  *logrus.Entry

	opened  bool
	started bool
	reqBufs int

	w, h       int
	format     image.PixelFormat
	planeCount int

	queued *image.Image
}

func openNode(name string, nodeNum int, log *logrus.Entry) (*node, error) {
	if nodeNum <= 0 {
		return nil, fmt.Errorf("%s: node number %d: %w", name, nodeNum, ErrNodeState)
	}
	n := &node{name: name, log: log.WithField("queue", name), opened: true}
	n.log.Debugf("open(%d)", nodeNum)
	return n, nil
}

// setFormat programs size and format, re-requesting buffers only on change
func (n *node) setFormat(img image.Image) error {
	r := img.Rect
	if n.reqBufs > 0 {
		if n.w == r.W && n.h == r.H && n.format == r.Format {
			return nil
		}
		n.log.Warn("node is already requested. call clrBuffers()")
		n.reset()
	}
	if r.W == 0 || r.H == 0 {
		n.log.Warnf("invalid size(%d x %d), skip setSize()", r.W, r.H)
		return fmt.Errorf("%s size %dx%d: %w", n.name, r.W, r.H, ErrNodeState)
	}
	n.w, n.h = r.W, r.H
	n.format = r.Format
	n.planeCount = img.Buf.PlaneCount()
	n.reqBufs = 1
	return nil
}

func (n *node) start() error {
	if n.reqBufs == 0 {
		return fmt.Errorf("%s start without buffers: %w", n.name, ErrNodeState)
	}
	n.started = true
	return nil
}

func (n *node) stop() {
	n.started = false
}

func (n *node) putBuffer(img *image.Image) error {
	if !n.started {
		return fmt.Errorf("%s put while stopped: %w", n.name, ErrNodeState)
	}
	n.queued = img
	return nil
}

func (n *node) getBuffer() (*image.Image, error) {
	if n.queued == nil {
		return nil, fmt.Errorf("%s nothing queued: %w", n.name, ErrNodeState)
	}
	img := n.queued
	n.queued = nil
	return img, nil
}

func (n *node) reset() {
	n.stop()
	n.reqBufs = 0
	n.queued = nil
}

func (n *node) close() error {
	if !n.opened {
		return fmt.Errorf("%s close: %w", n.name, ErrNodeState)
	}
	n.reset()
	n.opened = false
	n.log.Debug("close")
	return nil
}
