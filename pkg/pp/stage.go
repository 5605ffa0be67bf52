// Package pp implements post-processing stages: a uniform lifecycle and draw
// contract over vendor backends, capability descriptors, and a fallback chain
// walked by the capability resolver.
package pp

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/image"
)

// Backend is the vendor-specific half of a stage
type Backend interface {
	// Metadata
	Name() string
	DeclareCapacity(src, dst *Capacity) error

	// Lifecycle
	Create() error
	Destroy() error

	// Processing
	Draw(src, dst []image.Image) error
}

// Starter is implemented by backends that keep per-frame state between draws
type Starter interface {
	Start() error
	Stop() error
}

// Controller is implemented by backends that accept out-of-band controls
type Controller interface {
	ExtControl(ctrl int, data any) error
}

// Stage is one post-processing step. Create, Destroy, Draw, Start and Stop
// are serialized per stage; different stages run independently.
type Stage struct {
	name     string
	cameraID int
	nodeNum  int
	backend  Backend
	diag     *diag.Context
	log      *logrus.Entry

	// fixed at construction
	src Capacity
	dst Capacity

	mu         sync.Mutex
	created    bool
	startCount int
	engaged    bool

	next   atomic.Pointer[Stage]
	linked atomic.Bool
}

// StageInfo is a snapshot of a stage for status reporting
type StageInfo struct {
	Name       string   `json:"name"`
	NodeNum    int      `json:"node"`
	Created    bool     `json:"created"`
	Engaged    bool     `json:"engaged"`
	StartCount int      `json:"start_count"`
	Src        []string `json:"src_formats"`
	Dst        []string `json:"dst_formats"`
	SrcImages  int      `json:"src_images"`
	DstImages  int      `json:"dst_images"`
}

// NewStage wraps a backend in an uncreated stage
func NewStage(cameraID, nodeNum int, b Backend, d *diag.Context) (*Stage, error) {
	if b == nil {
		return nil, ErrNilStage
	}
	s := &Stage{
		name:     b.Name(),
		cameraID: cameraID,
		nodeNum:  nodeNum,
		backend:  b,
		diag:     d,
		log:      d.Logger().WithFields(logrus.Fields{"stage": b.Name(), "node": nodeNum}),
		src:      NewCapacity(1),
		dst:      NewCapacity(1),
	}
	if err := b.DeclareCapacity(&s.src, &s.dst); err != nil {
		s.log.WithError(err).Error("declare capacity fail")
		return nil, fmt.Errorf("stage %s: %w", s.name, err)
	}
	if s.src.NumOfImage() > MaxImages || s.dst.NumOfImage() > MaxImages {
		return nil, fmt.Errorf("stage %s: %w", s.name, ErrTooManyImages)
	}
	return s, nil
}

// Name returns the backend name
func (s *Stage) Name() string {
	return s.name
}

// CameraID returns the owning camera session id
func (s *Stage) CameraID() int {
	return s.cameraID
}

// NodeNum returns the driver node number or scenario id
func (s *Stage) NodeNum() int {
	return s.nodeNum
}

// Backend returns the wrapped backend
func (s *Stage) Backend() Backend {
	return s.backend
}

// SrcCapacity returns a copy of the source capacity
func (s *Stage) SrcCapacity() Capacity {
	return s.src
}

// DstCapacity returns a copy of the destination capacity
func (s *Stage) DstCapacity() Capacity {
	return s.dst
}

// Next returns the fallback stage, or nil
func (s *Stage) Next() *Stage {
	return s.next.Load()
}

// SetNext links the fallback stage. It can be set once.
func (s *Stage) SetNext(n *Stage) error {
	if n == nil {
		return ErrNilStage
	}
	for c := n; c != nil; c = c.Next() {
		if c == s {
			s.log.Errorf("linking %s would close a cycle. so, fail", n.name)
			return fmt.Errorf("link %s -> %s: %w", s.name, n.name, ErrChainCycle)
		}
	}
	if !n.linked.CompareAndSwap(false, true) {
		s.log.Errorf("%s is already linked into another chain. so, fail", n.name)
		return fmt.Errorf("link %s -> %s: %w", s.name, n.name, ErrAlreadyLinked)
	}
	if !s.next.CompareAndSwap(nil, n) {
		n.linked.Store(false)
		s.log.Errorf("already have next(%s). so, fail", s.Next().name)
		return fmt.Errorf("link %s -> %s: %w", s.name, n.name, ErrNextAlreadySet)
	}
	return nil
}

// IsCreated reports whether Create succeeded and Destroy has not run since
func (s *Stage) IsCreated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Create acquires backend resources
func (s *Stage) Create() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *Stage) createLocked() error {
	if s.created {
		s.log.Error("it is already created. so, fail")
		return fmt.Errorf("create %s: %w", s.name, ErrAlreadyCreated)
	}
	if err := s.backend.Create(); err != nil {
		s.log.WithError(err).Error("backend create fail")
		return fmt.Errorf("create %s: %w", s.name, err)
	}
	s.created = true
	s.diag.StageCreated()
	s.log.Debug("created")
	return nil
}

// ensureCreated creates the stage unless it already is
func (s *Stage) ensureCreated() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	return s.createLocked()
}

// Destroy releases backend resources and destroys created stages further
// down the chain. The stage is marked uncreated even if teardown failed.
func (s *Stage) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		s.log.Error("it is not created. so, fail")
		return fmt.Errorf("destroy %s: %w", s.name, ErrNotCreated)
	}
	return s.destroyLocked()
}

func (s *Stage) destroyIfCreated() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return nil
	}
	return s.destroyLocked()
}

func (s *Stage) destroyLocked() error {
	var errs error

	if s.engaged {
		if st, ok := s.backend.(Starter); ok {
			if err := st.Stop(); err != nil {
				s.log.WithError(err).Error("backend stop fail")
				errs = multierr.Append(errs, err)
			}
		}
		s.engaged = false
		s.startCount = 0
	}

	if err := s.backend.Destroy(); err != nil {
		s.log.WithError(err).Error("backend destroy fail")
		errs = multierr.Append(errs, err)
	}

	if next := s.Next(); next != nil {
		if err := next.destroyIfCreated(); err != nil {
			s.log.WithError(err).Errorf("next(%s) destroy fail", next.name)
			errs = multierr.Append(errs, err)
		}
	}

	s.created = false
	s.diag.StageDestroyed()
	s.log.Debug("destroyed")

	if errs != nil {
		return fmt.Errorf("destroy %s: %w", s.name, errs)
	}
	return nil
}

// Draw processes one source image into one destination image
func (s *Stage) Draw(src, dst image.Image) error {
	return s.DrawMulti([]image.Image{src}, []image.Image{dst})
}

// DrawMulti processes src into dst. The first image of each side selects the
// stage in the chain that does the work; if no stage declares support, this
// stage tries its own backend.
func (s *Stage) DrawMulti(src, dst []image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		s.log.Error("it is not created. so, fail")
		return fmt.Errorf("draw %s: %w", s.name, ErrNotCreated)
	}
	if len(src) == 0 || len(dst) == 0 {
		return fmt.Errorf("draw %s: %w", s.name, ErrNoImage)
	}

	s.printImages("draw():[SRC]", src, logrus.TraceLevel)
	s.printImages("draw():[DST]", dst, logrus.TraceLevel)

	target, err := resolve(s, s, src[0], dst[0])
	if err != nil {
		s.log.WithError(err).Errorf("no proper stage. so, just try the original %s", s.name)
		target = s
	}

	var drawErr error
	if target == s {
		drawErr = s.backend.Draw(src, dst)
	} else {
		s.diag.Forwarded()
		drawErr = target.drawDelegated(src, dst)
	}
	s.diag.Drew()

	if drawErr != nil {
		s.diag.DrawFailed()
		target.printImages(fmt.Sprintf("%s->draw(node(%d), numOfSrc(%d)):[SRC] fail", target.name, target.nodeNum, len(src)), src, logrus.DebugLevel)
		target.printImages(fmt.Sprintf("%s->draw(node(%d), numOfDst(%d)):[DST] fail", target.name, target.nodeNum, len(dst)), dst, logrus.DebugLevel)
		return fmt.Errorf("draw %s: %w", target.name, drawErr)
	}
	return nil
}

// drawDelegated runs the backend of a downstream stage picked by the resolver
func (s *Stage) drawDelegated(src, dst []image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return ErrNotCreated
	}
	return s.backend.Draw(src, dst)
}

// Start engages continuous processing. Nested calls are counted and only the
// first one reaches the backend.
func (s *Stage) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		s.log.Error("start: it is not created. so, fail")
		return fmt.Errorf("start %s: %w", s.name, ErrNotCreated)
	}

	s.startCount++
	if s.startCount > 1 {
		return nil
	}
	if s.engaged {
		s.log.Debug("resume from suspend")
		return nil
	}

	if st, ok := s.backend.(Starter); ok {
		if err := st.Start(); err != nil {
			s.startCount--
			s.log.WithError(err).Error("backend start fail")
			return fmt.Errorf("start %s: %w", s.name, err)
		}
	}
	s.engaged = true
	return nil
}

// Stop releases one Start. The last Stop disengages the backend unless
// suspend is set, in which case its state stays warm for the next Start.
func (s *Stage) Stop(suspend bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startCount == 0 {
		s.log.Error("stop without start. so, fail")
		return fmt.Errorf("stop %s: %w", s.name, ErrNotStarted)
	}

	s.startCount--
	if s.startCount > 0 {
		return nil
	}

	s.log.Debugf("stop, suspend(%t)", suspend)
	if suspend {
		return nil
	}

	s.engaged = false
	if st, ok := s.backend.(Starter); ok {
		if err := st.Stop(); err != nil {
			s.log.WithError(err).Error("backend stop fail")
			return fmt.Errorf("stop %s: %w", s.name, err)
		}
	}
	return nil
}

// Engaged reports whether the backend currently holds continuous state
func (s *Stage) Engaged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engaged
}

// ExtControl forwards a control to the backend if it takes any
func (s *Stage) ExtControl(ctrl int, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.backend.(Controller)
	if !ok {
		return nil
	}
	if err := c.ExtControl(ctrl, data); err != nil {
		return fmt.Errorf("ext control %s(%d): %w", s.name, ctrl, err)
	}
	return nil
}

// Info returns a status snapshot
func (s *Stage) Info() StageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := StageInfo{
		Name:       s.name,
		NodeNum:    s.nodeNum,
		Created:    s.created,
		Engaged:    s.engaged,
		StartCount: s.startCount,
		SrcImages:  s.src.NumOfImage(),
		DstImages:  s.dst.NumOfImage(),
	}
	for _, f := range s.src.Formats() {
		info.Src = append(info.Src, f.String())
	}
	for _, f := range s.dst.Formats() {
		info.Dst = append(info.Dst, f.String())
	}
	return info
}

func (s *Stage) printImages(prefix string, imgs []image.Image, level logrus.Level) {
	if !s.log.Logger.IsLevelEnabled(level) {
		return
	}
	for i, img := range imgs {
		s.log.WithFields(img.Fields()).Logf(level, "%s [%d] / [%d]", prefix, i, len(imgs))
	}
}
