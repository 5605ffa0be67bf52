//go:build !gocv

package jpeg

import (
	"bytes"
	stdimage "image"
	stdjpeg "image/jpeg"
)

func encode(f *yuvFrame, quality int) ([]byte, error) {
	img := stdimage.NewYCbCr(stdimage.Rect(0, 0, f.w, f.h), stdimage.YCbCrSubsampleRatio420)
	copy(img.Y, f.y)

	cw := f.w / 2
	for row := 0; row < f.h/2; row++ {
		line := f.uv[row*f.w:]
		for col := 0; col < cw; col++ {
			cb, cr := line[col*2], line[col*2+1]
			if f.crFirst {
				cb, cr = cr, cb
			}
			img.Cb[row*img.CStride+col] = cb
			img.Cr[row*img.CStride+col] = cr
		}
	}

	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, img, &stdjpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
