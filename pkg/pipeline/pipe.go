// Package pipeline assembles post-processing chains from configuration and
// runs each one behind a frame queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
	"github.com/video-system/go-camera-pp/pkg/ppfactory"
)

var (
	ErrRunning    = errors.New("pipe already running")
	ErrClosed     = errors.New("pipe closed")
	ErrShortFrame = errors.New("frame has fewer images than the stage consumes")
)

// FrameState is the outcome of processing a frame
type FrameState int

const (
	FramePending FrameState = iota
	FrameComplete
	FrameError
)

func (s FrameState) String() string {
	switch s {
	case FramePending:
		return "PENDING"
	case FrameComplete:
		return "COMPLETE"
	case FrameError:
		return "ERROR"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// Frame is one post-processing request. Src and Dst hold at least as many
// images as the head stage consumes and produces; extras are ignored.
type Frame struct {
	Key int64
	Src []image.Image
	Dst []image.Image

	// stamped on every destination before the draw
	Rotation image.Rotation
	FlipH    bool
	FlipV    bool

	State FrameState
	Err   error
}

// PipeStatus is a snapshot of one pipe
type PipeStatus struct {
	ID        string         `json:"id"`
	Running   bool           `json:"running"`
	Processed int64          `json:"processed"`
	Failed    int64          `json:"failed"`
	Chain     []pp.StageInfo `json:"chain"`
}

// Pipe owns one stage chain and the worker feeding it
type Pipe struct {
	id      string
	cfg     PipeConfig
	camera  int
	factory *ppfactory.Factory
	head    *pp.Stage
	lazyID  int
	hasLazy bool
	log     *logrus.Entry

	in  chan *Frame
	out chan *Frame

	// guards lazy fallback attachment
	lazyMu sync.Mutex

	mu      sync.Mutex
	running bool
	closed  bool
	engaged bool
	cancel  context.CancelFunc
	done    chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPipe builds the configured chain and creates its head. Fallback stages
// are created by the resolver on first use.
func NewPipe(cfg PipeConfig, cameraID int, f *ppfactory.Factory, d *diag.Context) (*Pipe, error) {
	p := &Pipe{
		id:      cfg.ID,
		cfg:     cfg,
		camera:  cameraID,
		factory: f,
		log:     d.With("pipe", cfg.ID),
		in:      make(chan *Frame, max(cfg.QueueSize, 1)),
		out:     make(chan *Frame, max(cfg.QueueSize, 1)),
	}

	chain := make([]*pp.Stage, 0, len(cfg.Fallbacks)+1)
	for _, name := range append([]string{cfg.Node}, cfg.Fallbacks...) {
		s, err := p.newStage(name)
		if err != nil {
			return nil, fmt.Errorf("pipe %s: %w", cfg.ID, err)
		}
		chain = append(chain, s)
	}
	if err := pp.Link(chain...); err != nil {
		return nil, fmt.Errorf("pipe %s: %w", cfg.ID, err)
	}
	p.head = chain[0]

	if cfg.LazyFallback != "" {
		id, err := f.ParseID(cfg.LazyFallback)
		if err != nil {
			return nil, fmt.Errorf("pipe %s lazy fallback: %w", cfg.ID, err)
		}
		p.lazyID, p.hasLazy = id, true
	}

	if err := p.head.Create(); err != nil {
		return nil, fmt.Errorf("pipe %s: %w", cfg.ID, err)
	}
	p.log.Infof("Pipe ready: %s", p.head.Name())
	return p, nil
}

func (p *Pipe) newStage(name string) (*pp.Stage, error) {
	id, err := p.factory.ParseID(name)
	if err != nil {
		return nil, err
	}
	return p.factory.NewStage(p.camera, id)
}

// ID returns the pipe identifier
func (p *Pipe) ID() string {
	return p.id
}

// Head returns the first stage of the chain
func (p *Pipe) Head() *pp.Stage {
	return p.head
}

// Process draws one frame through the chain and records the outcome on it
func (p *Pipe) Process(f *Frame) error {
	err := p.process(f)
	if err != nil {
		f.State, f.Err = FrameError, err
		p.failed.Add(1)
		p.log.WithError(err).Errorf("frame(%d) fail", f.Key)
		return err
	}
	f.State, f.Err = FrameComplete, nil
	p.processed.Add(1)
	return nil
}

func (p *Pipe) process(f *Frame) error {
	nSrc := p.head.SrcCapacity().NumOfImage()
	nDst := p.head.DstCapacity().NumOfImage()
	if len(f.Src) < nSrc || len(f.Dst) < nDst {
		return fmt.Errorf("src(%d/%d) dst(%d/%d): %w", len(f.Src), nSrc, len(f.Dst), nDst, ErrShortFrame)
	}
	if !f.Rotation.Valid() {
		return fmt.Errorf("rotation %d: %w", f.Rotation, pp.ErrUnsupportedFormat)
	}

	src, dst := f.Src[:nSrc], f.Dst[:nDst]
	for i := range dst {
		dst[i].Rotation = f.Rotation
		dst[i].FlipH = f.FlipH
		dst[i].FlipV = f.FlipV
	}

	if err := p.attachLazy(src[0], dst[0]); err != nil {
		return err
	}

	if nSrc == 1 && nDst == 1 {
		return p.head.Draw(src[0], dst[0])
	}
	return p.head.DrawMulti(src, dst)
}

// attachLazy links the lazy fallback behind the head the first time the head
// alone cannot serve a frame
func (p *Pipe) attachLazy(src, dst image.Image) error {
	if !p.hasLazy {
		return nil
	}
	p.lazyMu.Lock()
	defer p.lazyMu.Unlock()

	if p.head.Next() != nil {
		return nil
	}
	if p.head.SrcCapacity().Supports(src.Rect.Format, src.Rect.FullW) &&
		p.head.DstCapacity().Supports(dst.Rect.Format, dst.Rect.FullW) {
		return nil
	}

	next, err := p.factory.NewStage(p.camera, p.lazyID)
	if err != nil {
		return err
	}
	if err := p.head.SetNext(next); err != nil {
		return err
	}
	p.log.Debugf("%s cannot support [SRC]%s / [DST]%s. so, attach %s",
		p.head.Name(), src.Rect.Format, dst.Rect.Format, next.Name())
	return nil
}

// Start launches the worker. With engage set the head stage is started for
// the lifetime of the worker.
func (p *Pipe) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pipe %s: %w", p.id, ErrClosed)
	}
	if p.running {
		return fmt.Errorf("pipe %s: %w", p.id, ErrRunning)
	}
	if p.cfg.Engage && !p.engaged {
		if err := p.head.Start(); err != nil {
			return fmt.Errorf("pipe %s: %w", p.id, err)
		}
		p.engaged = true
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.run(ctx, p.done)

	p.log.Info("Starting pipe")
	return nil
}

func (p *Pipe) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.in:
			_ = p.Process(f)
			select {
			case p.out <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Stop halts the worker and disengages the head stage
func (p *Pipe) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if p.engaged {
		p.engaged = false
		if err := p.head.Stop(false); err != nil {
			return fmt.Errorf("pipe %s: %w", p.id, err)
		}
	}
	p.log.Info("Pipe stopped")
	return nil
}

// Push queues a frame for the worker
func (p *Pipe) Push(ctx context.Context, f *Frame) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("pipe %s: %w", p.id, ErrClosed)
	}

	f.State, f.Err = FramePending, nil
	select {
	case p.in <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Output delivers processed frames, failed ones included
func (p *Pipe) Output() <-chan *Frame {
	return p.out
}

// Running reports whether the worker is active
func (p *Pipe) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Status returns a snapshot of the pipe and its chain
func (p *Pipe) Status() PipeStatus {
	return PipeStatus{
		ID:        p.id,
		Running:   p.Running(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Chain:     pp.ChainInfo(p.head),
	}
}

// Close stops the worker and destroys every created stage of the chain
func (p *Pipe) Close() error {
	errs := p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errs
	}
	p.closed = true

	if p.head.IsCreated() {
		errs = multierr.Append(errs, p.head.Destroy())
	}
	if errs != nil {
		p.log.WithError(errs).Error("close fail")
	}
	return errs
}
