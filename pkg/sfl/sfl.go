// Package sfl manages the special function libraries: mutually exclusive,
// stateful image-enhancement engines driven through a uniform command
// dispatch.
package sfl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/video-system/go-camera-pp/pkg/image"
)

// Type selects a library slot
type Type int

const (
	None Type = iota
	HDR
	Night
	AntiShake
	OIS
	Panorama
	Flawless
	NumTypes
)

var typeNames = [NumTypes]string{"NONE", "HDR", "NIGHT", "ANTISHAKE", "OIS", "PANORAMA", "FLAWLESS"}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("TYPE(%d)", int(t))
	}
	return typeNames[t]
}

// Valid reports whether t is None or a library slot
func (t Type) Valid() bool {
	return t >= None && t < NumTypes
}

// ParseType converts a type name, case-insensitively
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if strings.EqualFold(s, name) {
			return Type(i), nil
		}
	}
	return None, fmt.Errorf("%q: %w", s, ErrInvalidType)
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// BufferType is the logical stream a buffer command applies to
type BufferType int

const (
	TypePreview BufferType = iota
	TypePreviewCB
	TypeRecording
	TypeCapture
	NumBufferTypes
)

func (b BufferType) String() string {
	switch b {
	case TypePreview:
		return "PREVIEW"
	case TypePreviewCB:
		return "PREVIEW_CB"
	case TypeRecording:
		return "RECORDING"
	case TypeCapture:
		return "CAPTURE"
	}
	return fmt.Sprintf("BUFFER_TYPE(%d)", int(b))
}

// Position says whether a buffer is an input or an output of the library
type Position int

const (
	PosSrc Position = iota
	PosDst
	NumPositions
)

func (p Position) String() string {
	switch p {
	case PosSrc:
		return "SRC"
	case PosDst:
		return "DST"
	}
	return fmt.Sprintf("POS(%d)", int(p))
}

// Command is the operation ProcessCommand performs. The payload type is
// implied by the command:
//
//	Process                      *[]Buffer (filled with the buffers used)
//	AddBuffer                    *Buffer
//	Set*/Get* counts, SetSize... *uint32
type Command int

const (
	CmdProcess Command = iota
	CmdAddBuffer
	CmdSetMaxBufferCnt
	CmdGetMaxBufferCnt
	CmdGetCurBufferCnt
	CmdSetMaxSelectCnt
	CmdGetMaxSelectCnt
	CmdSetCurSelectCnt
	CmdGetCurSelectCnt
	CmdSetSize
	CmdGetSize
)

var commandNames = [...]string{
	"PROCESS",
	"ADD_BUFFER",
	"SET_MAXBUFFERCNT",
	"GET_MAXBUFFERCNT",
	"GET_CURBUFFERCNT",
	"SET_MAXSELECTCNT",
	"GET_MAXSELECTCNT",
	"SET_CURSELECTCNT",
	"GET_CURSELECTCNT",
	"SET_SIZE",
	"GET_SIZE",
}

func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return fmt.Sprintf("COMMAND(%d)", int(c))
	}
	return commandNames[c]
}

// CommandInfo is the dispatch key of one command
type CommandInfo struct {
	Type BufferType
	Pos  Position
	Cmd  Command
}

func (c CommandInfo) valid() bool {
	return c.Type >= 0 && c.Type < NumBufferTypes && c.Pos >= 0 && c.Pos < NumPositions
}

// Buffer is one frame handed to a library. Info is stamped by AddBuffer.
type Buffer struct {
	Index  int
	Width  int
	Height int
	Format image.PixelFormat
	Planes [][]byte
	Info   CommandInfo
}

// Image views the buffer as a full-frame image
func (b Buffer) Image() image.Image {
	return image.Image{
		Rect: image.Rect{W: b.Width, H: b.Height, FullW: b.Width, FullH: b.Height, Format: b.Format},
		Buf:  image.Buffer{Index: b.Index, Planes: b.Planes},
	}
}

var (
	ErrInvalidType    = errors.New("invalid sfl type")
	ErrNoLibrary      = errors.New("no library in sfl slot")
	ErrInProgress     = errors.New("current sfl library is in progress")
	ErrBadPayload     = errors.New("sfl command payload has wrong type")
	ErrBadCommand     = errors.New("invalid sfl command")
	ErrBadBufferType  = errors.New("sfl buffer type not accepted")
	ErrNotInitialized = errors.New("sfl library not initialized")
	ErrNoBuffers      = errors.New("sfl library has no buffers to process")
)

// Library is one special function library instance
type Library interface {
	// Metadata
	Name() string
	Type() Type

	// Lifecycle
	Init() error
	Deinit() error
	Prepare() error
	Reset()

	// Per-capture input
	SetMetaInfo(meta any) error
	ProcessCommand(info CommandInfo, arg any) error

	// Flags
	SetEnable(enable bool)
	Enable() bool
	SetRunEnable(enable bool)
	RunEnable() bool
}
