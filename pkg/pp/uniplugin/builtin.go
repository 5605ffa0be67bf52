package uniplugin

import (
	"errors"
	"fmt"

	"github.com/video-system/go-camera-pp/pkg/image"
)

// ErrPluginState is returned by the software plugins when called out of order
var ErrPluginState = errors.New("uni plugin called in wrong state")

func init() {
	Register(PluginLowLight, func() Plugin { return &llsPlugin{} })
	Register(PluginTracking, func() Plugin { return &trackingPlugin{} })
	Register(PluginVDIS, func() Plugin { return &vdisPlugin{} })
}

// lifecycle is the init/deinit bookkeeping shared by the software plugins
type lifecycle struct {
	camera CameraInfo
	inited bool
}

func (l *lifecycle) Init() error {
	if l.inited {
		return fmt.Errorf("init twice: %w", ErrPluginState)
	}
	l.inited = true
	return nil
}

func (l *lifecycle) Deinit() error {
	if !l.inited {
		return fmt.Errorf("deinit without init: %w", ErrPluginState)
	}
	l.inited = false
	return nil
}

func (l *lifecycle) Unload() error {
	l.inited = false
	return nil
}

func (l *lifecycle) setCamera(data any) error {
	c, ok := data.(*CameraInfo)
	if !ok {
		return fmt.Errorf("camera info %T: %w", data, ErrBadPayload)
	}
	l.camera = *c
	return nil
}

// llsPlugin averages (compose) or picks the brightest of (select) the luma of
// a burst, taking chroma from the last frame.
type llsPlugin struct {
	lifecycle
	total  int
	mode   OperationMode
	frames int

	sum     []int
	best    []byte
	bestAvg int
	chroma  []byte
	out     *image.Image
}

func (p *llsPlugin) Set(idx Index, data any) error {
	switch idx {
	case IndexCameraInfo:
		return p.setCamera(data)
	case IndexTotalBufferNum:
		n, ok := data.(*int)
		if !ok {
			return fmt.Errorf("total %T: %w", data, ErrBadPayload)
		}
		p.total = *n
		p.frames = 0
		p.sum, p.best, p.bestAvg = nil, nil, -1
	case IndexOperationMode:
		m, ok := data.(*OperationMode)
		if !ok {
			return fmt.Errorf("mode %T: %w", data, ErrBadPayload)
		}
		p.mode = *m
	case IndexBufferInfo:
		b, ok := data.(*BufferInfo)
		if !ok || b.In == nil {
			return fmt.Errorf("buffer info %T: %w", data, ErrBadPayload)
		}
		if !p.inited {
			return fmt.Errorf("buffer before init: %w", ErrPluginState)
		}
		return p.add(b)
	default:
		return fmt.Errorf("%s: %w", idx, ErrBadIndex)
	}
	return nil
}

func (p *llsPlugin) add(b *BufferInfo) error {
	y, uv, err := image.SemiPlanar(*b.In)
	if err != nil {
		return err
	}
	if p.sum == nil {
		p.sum = make([]int, len(y))
	}
	total := 0
	for i := 0; i < len(y) && i < len(p.sum); i++ {
		p.sum[i] += int(y[i])
		total += int(y[i])
	}
	if avg := total / max(len(y), 1); avg > p.bestAvg {
		p.bestAvg = avg
		p.best = append(p.best[:0], y...)
	}
	p.chroma = append(p.chroma[:0], uv...)
	p.out = b.Out
	p.frames++
	return nil
}

func (p *llsPlugin) Get(idx Index, data any) error {
	if idx != IndexDebugInfo {
		return fmt.Errorf("%s: %w", idx, ErrBadIndex)
	}
	d, ok := data.(*DebugInfo)
	if !ok {
		return fmt.Errorf("debug info %T: %w", data, ErrBadPayload)
	}
	d.Data = []byte(fmt.Sprintf("LLS frames=%d/%d mode=%d", p.frames, p.total, p.mode))
	return nil
}

func (p *llsPlugin) Process() error {
	if !p.inited || p.frames == 0 || p.out == nil {
		return fmt.Errorf("process with %d frames: %w", p.frames, ErrPluginState)
	}
	y, uv, err := image.SemiPlanar(*p.out)
	if err != nil {
		return err
	}
	switch p.mode {
	case OpSelectImage:
		copy(y, p.best)
	default:
		for i := 0; i < len(y) && i < len(p.sum); i++ {
			y[i] = byte(p.sum[i] / p.frames)
		}
	}
	copy(uv, p.chroma)
	return nil
}

// trackingPlugin keeps the touched region and reports it as tracked once
// frames arrive.
type trackingPlugin struct {
	lifecycle
	focus  FocusInfo
	frames int
}

func (p *trackingPlugin) Set(idx Index, data any) error {
	switch idx {
	case IndexCameraInfo:
		return p.setCamera(data)
	case IndexFocusInfo:
		f, ok := data.(*FocusInfo)
		if !ok {
			return fmt.Errorf("focus info %T: %w", data, ErrBadPayload)
		}
		p.focus = FocusInfo{ROI: f.ROI}
		p.frames = 0
	case IndexBufferInfo:
		if _, ok := data.(*BufferInfo); !ok {
			return fmt.Errorf("buffer info %T: %w", data, ErrBadPayload)
		}
	default:
		return fmt.Errorf("%s: %w", idx, ErrBadIndex)
	}
	return nil
}

func (p *trackingPlugin) Get(idx Index, data any) error {
	if idx != IndexFocusInfo && idx != IndexFocusPredicted {
		return fmt.Errorf("%s: %w", idx, ErrBadIndex)
	}
	f, ok := data.(*FocusInfo)
	if !ok {
		return fmt.Errorf("focus info %T: %w", data, ErrBadPayload)
	}
	*f = p.focus
	return nil
}

func (p *trackingPlugin) Process() error {
	if !p.inited {
		return fmt.Errorf("process before init: %w", ErrPluginState)
	}
	p.frames++
	if p.focus.ROI != (Rect{}) {
		p.focus.State = 1
		p.focus.Weight = p.frames
	}
	return nil
}

// vdisPlugin passes each frame through and reports a fixed stabilisation
// margin as the preview crop.
type vdisPlugin struct {
	lifecycle
	fps   FPSInfo
	extra ExtraBufferInfo
	cur   BufferInfo
	done  BufferInfo
}

func (p *vdisPlugin) Set(idx Index, data any) error {
	switch idx {
	case IndexCameraInfo:
		return p.setCamera(data)
	case IndexBufferInfo:
		b, ok := data.(*BufferInfo)
		if !ok {
			return fmt.Errorf("buffer info %T: %w", data, ErrBadPayload)
		}
		p.cur = *b
	case IndexExtraBufferInfo:
		e, ok := data.(*ExtraBufferInfo)
		if !ok {
			return fmt.Errorf("extra info %T: %w", data, ErrBadPayload)
		}
		p.extra = *e
	case IndexFPSInfo:
		f, ok := data.(*FPSInfo)
		if !ok {
			return fmt.Errorf("fps %T: %w", data, ErrBadPayload)
		}
		p.fps = *f
	default:
		return fmt.Errorf("%s: %w", idx, ErrBadIndex)
	}
	return nil
}

func (p *vdisPlugin) Get(idx Index, data any) error {
	switch idx {
	case IndexCropInfo:
		r, ok := data.(*Rect)
		if !ok {
			return fmt.Errorf("crop %T: %w", data, ErrBadPayload)
		}
		mx, my := p.cur.Width/10, p.cur.Height/10
		*r = Rect{Left: mx, Top: my, Right: p.cur.Width - mx, Bottom: p.cur.Height - my}
	case IndexBufferInfo:
		b, ok := data.(*BufferInfo)
		if !ok {
			return fmt.Errorf("buffer info %T: %w", data, ErrBadPayload)
		}
		*b = p.done
	default:
		return fmt.Errorf("%s: %w", idx, ErrBadIndex)
	}
	return nil
}

func (p *vdisPlugin) Process() error {
	if !p.inited {
		return fmt.Errorf("process before init: %w", ErrPluginState)
	}
	if p.cur.In == nil || p.cur.Out == nil {
		return fmt.Errorf("process without buffers: %w", ErrPluginState)
	}
	copyPlanes(*p.cur.In, *p.cur.Out)
	p.done = BufferInfo{Index: p.cur.Index, Timestamp: p.cur.Timestamp + 1}
	return nil
}
