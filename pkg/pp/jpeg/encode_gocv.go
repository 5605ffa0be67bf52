//go:build gocv

package jpeg

import (
	"fmt"

	"gocv.io/x/gocv"
)

// encode converts through BGR with OpenCV
func encode(f *yuvFrame, quality int) ([]byte, error) {
	nv := make([]byte, 0, len(f.y)+len(f.uv))
	nv = append(nv, f.y...)
	nv = append(nv, f.uv...)

	yuv, err := gocv.NewMatFromBytes(f.h*3/2, f.w, gocv.MatTypeCV8UC1, nv)
	if err != nil {
		return nil, fmt.Errorf("yuv mat: %w", err)
	}
	defer yuv.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	code := gocv.ColorYUVToBGRNV12
	if f.crFirst {
		code = gocv.ColorYUVToBGRNV21
	}
	if err := gocv.CvtColor(yuv, &bgr, code); err != nil {
		return nil, fmt.Errorf("cvt color: %w", err)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("imencode: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
