package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFormatString(t *testing.T) {
	assert.Equal(t, "NV21", FormatNV21.String())
	assert.Equal(t, "J420", FormatJPEG420.String())
	assert.Equal(t, "....", PixelFormat(0).String())

	f, err := ParseFormat("NM12")
	require.NoError(t, err)
	assert.Equal(t, FormatNV12M, f)

	_, err = ParseFormat("NV2")
	assert.Error(t, err)
}

func TestSemiPlanarSinglePlane(t *testing.T) {
	buf := make([]byte, 4*2*3/2)
	for i := range buf {
		buf[i] = byte(i)
	}
	img := Image{
		Rect: Rect{FullW: 4, FullH: 2, Format: FormatNV21},
		Buf:  Buffer{Planes: [][]byte{buf}},
	}
	y, uv, err := SemiPlanar(img)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, y)
	assert.Equal(t, []byte{8, 9, 10, 11}, uv)
	assert.True(t, CrFirst(img.Rect.Format))
}

func TestSemiPlanarMultiPlane(t *testing.T) {
	img := Image{
		Rect: Rect{FullW: 4, FullH: 2, Format: FormatNV12M},
		Buf:  Buffer{Planes: [][]byte{make([]byte, 8)}},
	}
	_, _, err := SemiPlanar(img)
	assert.Error(t, err)

	img.Buf.Planes = append(img.Buf.Planes, make([]byte, 2))
	_, _, err = SemiPlanar(img)
	assert.ErrorIs(t, err, ErrShortPlane)

	img.Buf.Planes[1] = make([]byte, 4)
	y, uv, err := SemiPlanar(img)
	require.NoError(t, err)
	assert.Len(t, y, 8)
	assert.Len(t, uv, 4)
}

func TestBufferAccessors(t *testing.T) {
	b := Buffer{FDs: []int{7}, Planes: [][]byte{make([]byte, 16)}}
	assert.Equal(t, 1, b.PlaneCount())
	assert.Equal(t, 16, b.PlaneSize(0))
	assert.Equal(t, 0, b.PlaneSize(3))
	assert.Equal(t, 7, b.FD(0))
	assert.Equal(t, -1, b.FD(1))

	fields := Image{Rect: Rect{Format: FormatNV12}, Buf: b}.Fields()
	assert.Equal(t, "NV12", fields["format"])
	assert.Equal(t, 7, fields["fd[0]"])
}
