package sfl

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// MergeFunc renders the source buffers of one capture into dst
type MergeFunc func(src []Buffer, dst Buffer, meta any) error

// EngineConfig describes one library rendition
type EngineConfig struct {
	Name    string
	Type    Type
	MemSize uint32

	// capture buffers Prepare expects on each side
	SrcCount uint32
	DstCount uint32

	Merge MergeFunc
}

type counters [NumBufferTypes][NumPositions]uint32

// Engine implements Library around a merge function. It keeps the buffer
// bookkeeping every library shares: per-(type, position) counters and the
// capture buffers queued for the next Process.
type Engine struct {
	cfg EngineConfig
	log *logrus.Entry

	mu       sync.Mutex
	enable   bool
	running  bool
	inited   bool
	memSize  uint32
	meta     any
	maxBuf   counters
	curBuf   counters
	maxSel   counters
	curSel   counters
	inBufs   []Buffer
	outBufs  []Buffer
	runCount int

	// serializes Process
	runMu sync.Mutex
}

// NewEngine returns a library running cfg.Merge on Process
func NewEngine(cfg EngineConfig, log *logrus.Entry) *Engine {
	return &Engine{
		cfg:     cfg,
		log:     log.WithField("sfl", cfg.Name),
		memSize: cfg.MemSize,
	}
}

// Name returns the library name
func (e *Engine) Name() string {
	return e.cfg.Name
}

// Type returns the slot the library serves
func (e *Engine) Type() Type {
	return e.cfg.Type
}

// Init opens the working memory
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		e.log.Debugf("mem mgr create: size(%d)", e.memSize)
	}
	e.inited = true
	return nil
}

// Deinit drops queued buffers and restores the configured memory size
func (e *Engine) Deinit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	if e.inited {
		e.log.Debug("uninit")
	}
	e.inited = false
	e.memSize = e.cfg.MemSize
	return nil
}

// Prepare sets the capture buffer maxima for the next run
func (e *Engine) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxBuf[TypeCapture][PosSrc] = e.cfg.SrcCount
	e.maxBuf[TypeCapture][PosDst] = e.cfg.DstCount
	return nil
}

// Reset drops queued buffers and clears every counter
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	e.inBufs = nil
	e.outBufs = nil
	e.meta = nil
	e.maxBuf = counters{}
	e.curBuf = counters{}
	e.maxSel = counters{}
	e.curSel = counters{}
}

// SetMetaInfo stores the metadata handed to the next merge
func (e *Engine) SetMetaInfo(meta any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meta = meta
	return nil
}

// SetEnable sets whether the library may be used
func (e *Engine) SetEnable(enable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enable = enable
}

// Enable reports whether the library may be used
func (e *Engine) Enable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enable
}

// SetRunEnable marks the library as mid-execution
func (e *Engine) SetRunEnable(enable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = enable
}

// RunEnable reports whether the library is mid-execution
func (e *Engine) RunEnable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Runs returns how many times Process completed
func (e *Engine) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCount
}

// ProcessCommand runs one driver command against the buffer bookkeeping
func (e *Engine) ProcessCommand(info CommandInfo, arg any) error {
	e.log.Tracef("command(%s) type(%s) pos(%s)", info.Cmd, info.Type, info.Pos)
	if !info.valid() {
		e.log.Errorf("invalid type(%d) pos(%d)", info.Type, info.Pos)
		return fmt.Errorf("%s %s/%s: %w", info.Cmd, info.Type, info.Pos, ErrBadCommand)
	}

	switch info.Cmd {
	case CmdProcess:
		out, ok := arg.(*[]Buffer)
		if !ok || out == nil {
			return fmt.Errorf("%s payload %T: %w", info.Cmd, arg, ErrBadPayload)
		}
		e.log.Debugf("command(%s) type(%s) pos(%s)", info.Cmd, info.Type, info.Pos)
		return e.process(out)
	case CmdAddBuffer:
		buf, ok := arg.(*Buffer)
		if !ok || buf == nil {
			return fmt.Errorf("%s payload %T: %w", info.Cmd, arg, ErrBadPayload)
		}
		e.log.Debugf("command(%s) type(%s) pos(%s)", info.Cmd, info.Type, info.Pos)
		return e.addBuffer(info, buf)
	case CmdSetMaxBufferCnt:
		return e.setParam(&e.maxBuf[info.Type][info.Pos], info, arg)
	case CmdGetMaxBufferCnt:
		return e.getParam(&e.maxBuf[info.Type][info.Pos], info, arg)
	case CmdGetCurBufferCnt:
		return e.getParam(&e.curBuf[info.Type][info.Pos], info, arg)
	case CmdSetMaxSelectCnt:
		return e.setParam(&e.maxSel[info.Type][info.Pos], info, arg)
	case CmdGetMaxSelectCnt:
		return e.getParam(&e.maxSel[info.Type][info.Pos], info, arg)
	case CmdSetCurSelectCnt:
		return e.setParam(&e.curSel[info.Type][info.Pos], info, arg)
	case CmdGetCurSelectCnt:
		return e.getParam(&e.curSel[info.Type][info.Pos], info, arg)
	case CmdSetSize:
		return e.setParam(&e.memSize, info, arg)
	case CmdGetSize:
		return e.getParam(&e.memSize, info, arg)
	}

	e.log.Errorf("invalid command %d", int(info.Cmd))
	return fmt.Errorf("%s: %w", info.Cmd, ErrBadCommand)
}

func (e *Engine) setParam(p *uint32, info CommandInfo, arg any) error {
	v, ok := arg.(*uint32)
	if !ok || v == nil {
		return fmt.Errorf("%s payload %T: %w", info.Cmd, arg, ErrBadPayload)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	*p = *v
	return nil
}

func (e *Engine) getParam(p *uint32, info CommandInfo, arg any) error {
	v, ok := arg.(*uint32)
	if !ok || v == nil {
		return fmt.Errorf("%s payload %T: %w", info.Cmd, arg, ErrBadPayload)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	*v = *p
	return nil
}

func (e *Engine) addBuffer(info CommandInfo, buf *Buffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, limit := e.curBuf[info.Type][info.Pos], e.maxBuf[info.Type][info.Pos]
	if cur > limit {
		e.log.Errorf("too many buffer, cur(%d) max(%d)", cur, limit)
	}

	if info.Type != TypeCapture {
		e.log.Errorf("invalid buffer type(%s)", info.Type)
		return fmt.Errorf("%s: %w", info.Type, ErrBadBufferType)
	}
	buf.Info = info
	if info.Pos == PosSrc {
		e.inBufs = append(e.inBufs, *buf)
	} else {
		e.outBufs = append(e.outBufs, *buf)
	}
	e.curBuf[info.Type][info.Pos]++
	return nil
}

// process merges the queued capture buffers and hands back every buffer
// it consumed, sources first.
func (e *Engine) process(out *[]Buffer) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if !e.inited {
		e.mu.Unlock()
		e.log.Error("process before init. so, fail")
		return fmt.Errorf("%s: %w", e.cfg.Name, ErrNotInitialized)
	}
	for _, pos := range []Position{PosSrc, PosDst} {
		cur, limit := e.curBuf[TypeCapture][pos], e.maxBuf[TypeCapture][pos]
		curSel, maxSel := e.curSel[TypeCapture][pos], e.maxSel[TypeCapture][pos]
		if cur != limit || curSel != maxSel {
			e.log.Errorf("insufficient status, %s maxBufCnt(%d) curBufCnt(%d) maxCnt(%d) curCnt(%d)",
				pos, limit, cur, maxSel, curSel)
		}
	}
	src, dst, meta := e.inBufs, e.outBufs, e.meta
	e.inBufs, e.outBufs = nil, nil
	e.curBuf[TypeCapture] = [NumPositions]uint32{}
	e.mu.Unlock()

	*out = (*out)[:0]
	*out = append(*out, src...)
	*out = append(*out, dst...)

	if len(src) == 0 || len(dst) == 0 {
		e.log.Errorf("src(%d) dst(%d) buffers. so, skip process", len(src), len(dst))
		return fmt.Errorf("%s src(%d) dst(%d): %w", e.cfg.Name, len(src), len(dst), ErrNoBuffers)
	}

	if err := e.cfg.Merge(src, dst[0], meta); err != nil {
		e.log.WithError(err).Error("process image fail")
		return fmt.Errorf("%s: %w", e.cfg.Name, err)
	}

	e.mu.Lock()
	e.runCount++
	e.mu.Unlock()
	return nil
}
