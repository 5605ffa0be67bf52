// Package uniplugin runs vendor "uni-plugin" modules as post-processing
// stages. Plugins are looked up by name in a registry and loaded in the
// background when the stage is created.
package uniplugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/video-system/go-camera-pp/pkg/image"
)

// Index selects the parameter a Set or Get call addresses
type Index int

const (
	IndexCameraInfo Index = iota
	IndexBufferInfo
	IndexExtraBufferInfo
	IndexTotalBufferNum
	IndexOperationMode
	IndexFocusInfo
	IndexFocusPredicted
	IndexCropInfo
	IndexFaceInfo
	IndexFPSInfo
	IndexDebugInfo
)

var indexNames = [...]string{
	"CAMERA_INFO",
	"BUFFER_INFO",
	"EXTRA_BUFFER_INFO",
	"TOTAL_BUFFER_NUM",
	"OPERATION_MODE",
	"FOCUS_INFO",
	"FOCUS_PREDICTED",
	"CROP_INFO",
	"FACE_INFO",
	"FPS_INFO",
	"DEBUG_INFO",
}

func (i Index) String() string {
	if i < 0 || int(i) >= len(indexNames) {
		return fmt.Sprintf("INDEX(%d)", int(i))
	}
	return indexNames[i]
}

// Plugin is the call contract of a vendor plugin module
type Plugin interface {
	Init() error
	Deinit() error
	Set(idx Index, data any) error
	Get(idx Index, data any) error
	Process() error
	Unload() error
}

var (
	ErrPluginNotFound = errors.New("uni plugin not registered")
	ErrNotLoaded      = errors.New("uni plugin not loaded")
	ErrBadIndex       = errors.New("uni plugin index not supported")
	ErrBadPayload     = errors.New("uni plugin payload has wrong type")
)

// CameraInfo is set once per init (IndexCameraInfo)
type CameraInfo struct {
	CameraType int
	SensorType int
}

// BufferInfo describes the frame handed to Process (IndexBufferInfo).
// Stabilisation plugins report their output frame back through Get in the
// same struct.
type BufferInfo struct {
	In, Out   *image.Image
	Width     int
	Height    int
	Index     int
	Timestamp int64
}

// PackIndex encodes buffer indices the way stabilisation plugins expect them:
// [31:16] output index, [15:8] input index, [7:0] skip flag.
func PackIndex(out, in int, skip bool) int {
	flag := 0
	if skip {
		flag = 1
	}
	return (out&0xffff)<<16 | (in&0xff)<<8 | flag
}

// OutIndex extracts the output buffer index from a packed index
func OutIndex(packed int) int {
	return (packed >> 16) & 0xff
}

// FPSInfo is the frame rate the plugin is tuned for (IndexFPSInfo)
type FPSInfo struct {
	Max int
}

// ExtraBufferInfo carries per-frame capture conditions (IndexExtraBufferInfo)
type ExtraBufferInfo struct {
	ZoomRatio   float32
	Orientation int
	ExposureNs  int64
}

// Rect is a region of interest in plugin coordinates
type Rect struct {
	Left, Top, Right, Bottom int
}

// FocusInfo is the tracked object state (IndexFocusInfo, IndexFocusPredicted)
type FocusInfo struct {
	State  int
	ROI    Rect
	Weight int
}

// OperationMode selects how a multi-frame plugin combines its inputs
type OperationMode int

const (
	OpComposeImage OperationMode = iota
	OpSelectImage
)

// DebugInfo receives the plugin's EXIF debug blob (IndexDebugInfo)
type DebugInfo struct {
	Data []byte
}

var (
	registryMu sync.RWMutex

	// Registry holds registered plugin modules
	Registry = make(map[string]func() Plugin)
)

// Register registers a plugin module under name
func Register(name string, factory func() Plugin) {
	registryMu.Lock()
	defer registryMu.Unlock()
	Registry[name] = factory
}

// Get returns a new instance of the named plugin module
func Get(name string) (Plugin, bool) {
	registryMu.RLock()
	factory, ok := Registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// List returns the registered plugin names
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
