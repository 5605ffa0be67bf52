package csc

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/video-system/go-camera-pp/pkg/image"
)

var (
	ErrRegion = errors.New("image region outside of buffer")
	ErrFormat = errors.New("format not handled by converter")
)

// frame is a 4:2:0 planar working copy of an image region
type frame struct {
	w, h    int
	y, u, v []byte
}

func newFrame(w, h int) *frame {
	cw, ch := (w+1)/2, (h+1)/2
	return &frame{
		w: w,
		h: h,
		y: make([]byte, w*h),
		u: make([]byte, cw*ch),
		v: make([]byte, cw*ch),
	}
}

func (f *frame) cw() int { return (f.w + 1) / 2 }
func (f *frame) ch() int { return (f.h + 1) / 2 }

// region returns the processed rectangle. A zero W/H means the full image.
func region(r image.Rect) (x, y, w, h int, err error) {
	x, y, w, h = r.X, r.Y, r.W, r.H
	if w == 0 && h == 0 {
		w, h = r.FullW, r.FullH
	}
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > r.FullW || y+h > r.FullH {
		return 0, 0, 0, 0, fmt.Errorf("rect(%d,%d %dx%d) in %dx%d: %w", x, y, w, h, r.FullW, r.FullH, ErrRegion)
	}
	return x, y, w, h, nil
}

// chroma subsampled layouts need even buffer dimensions
func checkEven(r image.Rect) error {
	if r.FullW%2 != 0 || r.FullH%2 != 0 {
		return fmt.Errorf("%s needs even size, have %dx%d: %w", r.Format, r.FullW, r.FullH, ErrRegion)
	}
	return nil
}

// packed 4:2:2 stores one chroma pair per two pixels
func checkEvenWidth(r image.Rect) error {
	if r.FullW%2 != 0 {
		return fmt.Errorf("%s needs even width, have %d: %w", r.Format, r.FullW, ErrRegion)
	}
	return nil
}

func clamp(v, hi int) int {
	if v > hi {
		return hi
	}
	return v
}

func readFrame(img image.Image) (*frame, error) {
	x0, y0, w, h, err := region(img.Rect)
	if err != nil {
		return nil, err
	}
	if image.IsSemiPlanar420(img.Rect.Format) || img.Rect.Format == image.FormatYVU420 {
		if err := checkEven(img.Rect); err != nil {
			return nil, err
		}
	}
	if img.Rect.Format == image.FormatYUYV {
		if err := checkEvenWidth(img.Rect); err != nil {
			return nil, err
		}
	}
	full := img.Rect.FullW
	f := newFrame(w, h)
	cw, ch := f.cw(), f.ch()

	switch format := img.Rect.Format; {
	case image.IsSemiPlanar420(format):
		ySrc, uv, err := image.SemiPlanar(img)
		if err != nil {
			return nil, err
		}
		for row := 0; row < h; row++ {
			copy(f.y[row*w:(row+1)*w], ySrc[(y0+row)*full+x0:])
		}
		crFirst := image.CrFirst(format)
		maxCol, maxRow := full/2-1, img.Rect.FullH/2-1
		for row := 0; row < ch; row++ {
			sr := clamp(y0/2+row, maxRow)
			for col := 0; col < cw; col++ {
				off := sr*full + clamp(x0/2+col, maxCol)*2
				cb, cr := uv[off], uv[off+1]
				if crFirst {
					cb, cr = cr, cb
				}
				f.u[row*cw+col] = cb
				f.v[row*cw+col] = cr
			}
		}

	case format == image.FormatYVU420:
		ySrc, vSrc, uSrc, err := image.YV12(img)
		if err != nil {
			return nil, err
		}
		for row := 0; row < h; row++ {
			copy(f.y[row*w:(row+1)*w], ySrc[(y0+row)*full+x0:])
		}
		cstride := full / 2
		maxCol, maxRow := cstride-1, img.Rect.FullH/2-1
		for row := 0; row < ch; row++ {
			sr := clamp(y0/2+row, maxRow)
			for col := 0; col < cw; col++ {
				off := sr*cstride + clamp(x0/2+col, maxCol)
				f.u[row*cw+col] = uSrc[off]
				f.v[row*cw+col] = vSrc[off]
			}
		}

	case format == image.FormatYUYV:
		p, err := packedPlane(img, 2)
		if err != nil {
			return nil, err
		}
		stride := full * 2
		for row := 0; row < h; row++ {
			line := p[(y0+row)*stride:]
			for col := 0; col < w; col++ {
				f.y[row*w+col] = line[(x0+col)*2]
			}
			if row%2 != 0 {
				continue
			}
			maxPair := full/2 - 1
			for col := 0; col < cw; col++ {
				pair := clamp((x0+col*2)/2, maxPair) * 4
				f.u[(row/2)*cw+col] = line[pair+1]
				f.v[(row/2)*cw+col] = line[pair+3]
			}
		}

	case format == image.FormatABGR32:
		p, err := packedPlane(img, 4)
		if err != nil {
			return nil, err
		}
		stride := full * 4
		for row := 0; row < h; row++ {
			line := p[(y0+row)*stride:]
			for col := 0; col < w; col++ {
				px := line[(x0+col)*4:]
				yy, cb, cr := color.RGBToYCbCr(px[2], px[1], px[0])
				f.y[row*w+col] = yy
				if row%2 == 0 && col%2 == 0 {
					f.u[(row/2)*cw+col/2] = cb
					f.v[(row/2)*cw+col/2] = cr
				}
			}
		}

	default:
		return nil, fmt.Errorf("read %s: %w", format, ErrFormat)
	}
	return f, nil
}

func writeFrame(f *frame, img image.Image) error {
	x0, y0, w, h, err := region(img.Rect)
	if err != nil {
		return err
	}
	if w != f.w || h != f.h {
		return fmt.Errorf("write %dx%d into %dx%d: %w", f.w, f.h, w, h, ErrRegion)
	}
	if image.IsSemiPlanar420(img.Rect.Format) || img.Rect.Format == image.FormatYVU420 {
		if err := checkEven(img.Rect); err != nil {
			return err
		}
	}
	if img.Rect.Format == image.FormatYUYV {
		if err := checkEvenWidth(img.Rect); err != nil {
			return err
		}
	}
	full := img.Rect.FullW
	cw, ch := f.cw(), f.ch()

	switch format := img.Rect.Format; {
	case image.IsSemiPlanar420(format):
		yDst, uv, err := image.SemiPlanar(img)
		if err != nil {
			return err
		}
		for row := 0; row < h; row++ {
			copy(yDst[(y0+row)*full+x0:], f.y[row*w:(row+1)*w])
		}
		crFirst := image.CrFirst(format)
		maxCol, maxRow := full/2-1, img.Rect.FullH/2-1
		for row := 0; row < ch; row++ {
			dr := clamp(y0/2+row, maxRow)
			for col := 0; col < cw; col++ {
				off := dr*full + clamp(x0/2+col, maxCol)*2
				cb, cr := f.u[row*cw+col], f.v[row*cw+col]
				if crFirst {
					cb, cr = cr, cb
				}
				uv[off], uv[off+1] = cb, cr
			}
		}

	case format == image.FormatYVU420:
		yDst, vDst, uDst, err := image.YV12(img)
		if err != nil {
			return err
		}
		for row := 0; row < h; row++ {
			copy(yDst[(y0+row)*full+x0:], f.y[row*w:(row+1)*w])
		}
		cstride := full / 2
		maxCol, maxRow := cstride-1, img.Rect.FullH/2-1
		for row := 0; row < ch; row++ {
			dr := clamp(y0/2+row, maxRow)
			for col := 0; col < cw; col++ {
				off := dr*cstride + clamp(x0/2+col, maxCol)
				uDst[off] = f.u[row*cw+col]
				vDst[off] = f.v[row*cw+col]
			}
		}

	case format == image.FormatYUYV:
		p, err := packedPlane(img, 2)
		if err != nil {
			return err
		}
		stride := full * 2
		for row := 0; row < h; row++ {
			line := p[(y0+row)*stride:]
			crow := row / 2
			for col := 0; col < w; col++ {
				px := (x0 + col) * 2
				line[px] = f.y[row*w+col]
				if col%2 == 0 {
					line[px+1] = f.u[crow*cw+col/2]
				} else {
					line[px+1] = f.v[crow*cw+col/2]
				}
			}
		}

	case format == image.FormatABGR32:
		p, err := packedPlane(img, 4)
		if err != nil {
			return err
		}
		stride := full * 4
		for row := 0; row < h; row++ {
			line := p[(y0+row)*stride:]
			for col := 0; col < w; col++ {
				ci := (row/2)*cw + col/2
				r, g, b := color.YCbCrToRGB(f.y[row*w+col], f.u[ci], f.v[ci])
				px := line[(x0+col)*4:]
				px[0], px[1], px[2], px[3] = b, g, r, 0xff
			}
		}

	default:
		return fmt.Errorf("write %s: %w", format, ErrFormat)
	}
	return nil
}

func packedPlane(img image.Image, bpp int) ([]byte, error) {
	need := img.Rect.FullW * img.Rect.FullH * bpp
	if img.Buf.PlaneSize(0) < need {
		return nil, fmt.Errorf("%s %dx%d: %w", img.Rect.Format, img.Rect.FullW, img.Rect.FullH, image.ErrShortPlane)
	}
	return img.Buf.Planes[0], nil
}

// resample scales f to w x h with nearest-neighbour sampling, then applies
// clockwise rotation and flips. w and h are the rotated output dimensions.
func resample(f *frame, w, h int, rot image.Rotation, flipH, flipV bool) *frame {
	if w == f.w && h == f.h && rot == image.Rotate0 && !flipH && !flipV {
		return f
	}
	out := newFrame(w, h)
	samplePlane(f.y, f.w, f.h, out.y, w, h, rot, flipH, flipV)
	samplePlane(f.u, f.cw(), f.ch(), out.u, out.cw(), out.ch(), rot, flipH, flipV)
	samplePlane(f.v, f.cw(), f.ch(), out.v, out.cw(), out.ch(), rot, flipH, flipV)
	return out
}

func samplePlane(src []byte, sw, sh int, dst []byte, dw, dh int, rot image.Rotation, flipH, flipV bool) {
	// dimensions before rotation
	pw, ph := dw, dh
	if rot == image.Rotate90 || rot == image.Rotate270 {
		pw, ph = dh, dw
	}
	for dy := 0; dy < dh; dy++ {
		for dx := 0; dx < dw; dx++ {
			x, y := dx, dy
			if flipH {
				x = dw - 1 - x
			}
			if flipV {
				y = dh - 1 - y
			}
			var ox, oy int
			switch rot {
			case image.Rotate90:
				ox, oy = y, ph-1-x
			case image.Rotate180:
				ox, oy = pw-1-x, ph-1-y
			case image.Rotate270:
				ox, oy = pw-1-y, x
			default:
				ox, oy = x, y
			}
			sx := ox * sw / pw
			sy := oy * sh / ph
			dst[dy*dw+dx] = src[sy*sw+sx]
		}
	}
}
