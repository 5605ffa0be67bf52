// Package gdc provides the geometric distortion correction stage. It takes
// the main image and the sensor bayer-crop image, and programs the warp grid
// from the bayer-crop rectangle whenever it changes.
package gdc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
	"github.com/video-system/go-camera-pp/pkg/pp/csc"
)

const Name = "GDC"

// ErrNoBcrop is returned when the bayer-crop source image is missing
var ErrNoBcrop = errors.New("gdc needs main and bayer-crop source images")

const (
	posSrc = iota
	posBcrop
	posDst
	posMax
)

// Corrector drives the two-queue GDC device. The correction itself is an
// identity warp rendered by the software converter.
type Corrector struct {
	nodeNum  int
	cameraID int
	log      *logrus.Entry

	mu      sync.Mutex
	nodes   [posMax]*node
	warp    *csc.Converter
	bcrop   image.Rect
	updates int
}

// New returns a corrector bound to driver node nodeNum
func New(cameraID, nodeNum int, log *logrus.Entry) *Corrector {
	return &Corrector{
		nodeNum:  nodeNum,
		cameraID: cameraID,
		log:      log.WithField("backend", Name),
	}
}

func (g *Corrector) Name() string {
	return Name
}

func (g *Corrector) DeclareCapacity(src, dst *pp.Capacity) error {
	src.SetNumOfImage(2)
	dst.SetNumOfImage(1)
	if err := src.AddFormats(image.FormatNV12M, image.FormatNV21M); err != nil {
		return err
	}
	return dst.AddFormats(image.FormatNV12M, image.FormatNV21M)
}

func (g *Corrector) Create() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	out, err := openNode("GDC_OUTPUT", g.nodeNum, g.log)
	if err != nil {
		g.log.WithError(err).Errorf("open(%d) fail", g.nodeNum)
		return err
	}
	capture, err := openNode("GDC_CAPTURE", g.nodeNum, g.log)
	if err != nil {
		_ = out.close()
		return err
	}
	g.nodes[posSrc] = out
	g.nodes[posDst] = capture

	g.warp = csc.NewLibCSC(g.log)
	if err := g.warp.Create(); err != nil {
		return multierr.Append(err, g.closeNodes())
	}
	g.bcrop = image.Rect{}
	return nil
}

func (g *Corrector) Destroy() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs error
	if g.warp != nil {
		errs = multierr.Append(errs, g.warp.Destroy())
		g.warp = nil
	}
	return multierr.Append(errs, g.closeNodes())
}

func (g *Corrector) closeNodes() error {
	var errs error
	for i, n := range g.nodes {
		if n == nil {
			continue
		}
		if err := n.close(); err != nil {
			g.log.WithError(err).Errorf("close node[%d] fail", i)
			errs = multierr.Append(errs, err)
		}
		g.nodes[i] = nil
	}
	return errs
}

func (g *Corrector) Draw(src, dst []image.Image) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.warp == nil {
		return fmt.Errorf("%s: %w", Name, pp.ErrNotCreated)
	}
	if len(src) < 2 {
		return fmt.Errorf("%d source images: %w", len(src), ErrNoBcrop)
	}

	imgs := [posMax]*image.Image{&src[0], &src[1], &dst[0]}

	defer func() {
		for _, n := range g.nodes {
			if n != nil {
				n.stop()
			}
		}
	}()

	for i, n := range g.nodes {
		if n == nil {
			continue
		}
		if err := n.setFormat(*imgs[i]); err != nil {
			return err
		}
	}

	g.setGrid(imgs[posBcrop].Rect)

	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		if err := n.start(); err != nil {
			return err
		}
	}
	for i, n := range g.nodes {
		if n == nil {
			continue
		}
		if err := n.putBuffer(imgs[i]); err != nil {
			return err
		}
	}

	in, err := g.nodes[posSrc].getBuffer()
	if err != nil {
		return err
	}
	out, err := g.nodes[posDst].getBuffer()
	if err != nil {
		return err
	}
	return g.warp.Draw([]image.Image{*in}, []image.Image{*out})
}

// setGrid reprograms the warp grid when the bayer-crop rectangle moved
func (g *Corrector) setGrid(r image.Rect) {
	if g.bcrop == r {
		return
	}
	g.log.WithFields(logrus.Fields{
		"sensor": g.cameraID,
		"x":      r.X,
		"y":      r.Y,
		"w":      r.W,
		"h":      r.H,
		"fullW":  r.FullW,
		"fullH":  r.FullH,
	}).Debug("grid control change")
	g.bcrop = r
	g.updates++
}

// GridUpdates returns how many times the grid was reprogrammed
func (g *Corrector) GridUpdates() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updates
}
