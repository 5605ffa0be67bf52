package image

import (
	"errors"
	"fmt"
)

// ErrShortPlane is returned when a plane is too small for the declared geometry
var ErrShortPlane = errors.New("plane smaller than image geometry")

// IsSemiPlanar420 reports whether f is an NV12/NV21 family format
func IsSemiPlanar420(f PixelFormat) bool {
	switch f {
	case FormatNV12, FormatNV21, FormatNV12M, FormatNV21M:
		return true
	}
	return false
}

// CrFirst reports whether the interleaved chroma of f starts with Cr (V)
func CrFirst(f PixelFormat) bool {
	return f == FormatNV21 || f == FormatNV21M
}

// SemiPlanar returns the luma and interleaved chroma of an NV12/NV21 image.
// Single-plane variants carry chroma right after luma; M variants use plane 1.
func SemiPlanar(img Image) (y, uv []byte, err error) {
	f := img.Rect.Format
	if !IsSemiPlanar420(f) {
		return nil, nil, fmt.Errorf("%s is not semi-planar 4:2:0", f)
	}
	ySize := img.Rect.FullW * img.Rect.FullH
	uvSize := ySize / 2

	switch f {
	case FormatNV12M, FormatNV21M:
		if img.Buf.PlaneCount() < 2 {
			return nil, nil, fmt.Errorf("%s needs 2 planes, have %d", f, img.Buf.PlaneCount())
		}
		if img.Buf.PlaneSize(0) < ySize || img.Buf.PlaneSize(1) < uvSize {
			return nil, nil, fmt.Errorf("%s %dx%d: %w", f, img.Rect.FullW, img.Rect.FullH, ErrShortPlane)
		}
		return img.Buf.Planes[0][:ySize], img.Buf.Planes[1][:uvSize], nil
	default:
		if img.Buf.PlaneSize(0) < ySize+uvSize {
			return nil, nil, fmt.Errorf("%s %dx%d: %w", f, img.Rect.FullW, img.Rect.FullH, ErrShortPlane)
		}
		p := img.Buf.Planes[0]
		return p[:ySize], p[ySize : ySize+uvSize], nil
	}
}

// YV12 returns the Y, V and U planes of a single-plane YVU420 image
func YV12(img Image) (y, v, u []byte, err error) {
	if img.Rect.Format != FormatYVU420 {
		return nil, nil, nil, fmt.Errorf("%s is not YV12", img.Rect.Format)
	}
	ySize := img.Rect.FullW * img.Rect.FullH
	cSize := ySize / 4
	if img.Buf.PlaneSize(0) < ySize+2*cSize {
		return nil, nil, nil, fmt.Errorf("YV12 %dx%d: %w", img.Rect.FullW, img.Rect.FullH, ErrShortPlane)
	}
	p := img.Buf.Planes[0]
	return p[:ySize], p[ySize : ySize+cSize], p[ySize+cSize : ySize+2*cSize], nil
}

// FrameSize returns the bytes a packed single-plane image of f needs
func FrameSize(f PixelFormat, w, h int) int {
	switch f {
	case FormatNV12, FormatNV21, FormatNV12M, FormatNV21M, FormatYVU420:
		return w * h * 3 / 2
	case FormatYUYV, FormatSBGGR10, FormatSBGGR12, FormatSBGGR16:
		return w * h * 2
	case FormatSBGGR10P:
		return w * h * 5 / 4
	case FormatABGR32:
		return w * h * 4
	}
	return 0
}
