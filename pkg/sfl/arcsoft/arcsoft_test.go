package arcsoft

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/sfl"
)

const w, h = 4, 2

func testLog() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

func nv21(index int, luma, chroma byte) sfl.Buffer {
	p := make([]byte, w*h*3/2)
	for i := range p {
		if i < w*h {
			p[i] = luma
		} else {
			p[i] = chroma
		}
	}
	return sfl.Buffer{Index: index, Width: w, Height: h, Format: image.FormatNV21, Planes: [][]byte{p}}
}

func luma(b sfl.Buffer) []byte {
	return b.Planes[0][:w*h]
}

func chroma(b sfl.Buffer) []byte {
	return b.Planes[0][w*h:]
}

func TestConstructors(t *testing.T) {
	ctors := Constructors()
	assert.Len(t, ctors, 4)
	assert.NotContains(t, ctors, sfl.OIS)
	assert.NotContains(t, ctors, sfl.Panorama)

	log, _ := testLog()
	for typ, ctor := range ctors {
		lib := ctor(0, log)
		assert.Equal(t, typ, lib.Type())
	}
	assert.Equal(t, "ARCSOFT HDR", NewHDR(0, log).Name())
	assert.Equal(t, "ARCSOFT FLAWLESS", NewFlawless(0, log).Name())
}

func TestMergeHDR(t *testing.T) {
	src := []sfl.Buffer{nv21(0, 0, 10), nv21(1, 0, 20), nv21(2, 200, 30)}
	dst := nv21(3, 0, 0)

	require.NoError(t, mergeHDR(src, dst, nil))
	// the mid-tone sample dominates the dark ones
	for _, v := range luma(dst) {
		assert.EqualValues(t, 196, v)
	}
	for _, v := range chroma(dst) {
		assert.EqualValues(t, 20, v)
	}
}

func TestMergeHDRFlat(t *testing.T) {
	src := []sfl.Buffer{nv21(0, 77, 1), nv21(1, 77, 2), nv21(2, 77, 3)}
	dst := nv21(3, 0, 0)
	require.NoError(t, mergeHDR(src, dst, nil))
	assert.Equal(t, luma(src[0]), luma(dst))
}

func TestMergeNight(t *testing.T) {
	src := []sfl.Buffer{nv21(0, 10, 100), nv21(1, 20, 110), nv21(2, 30, 120), nv21(3, 40, 130)}
	dst := nv21(4, 0, 0)

	require.NoError(t, mergeNight(src, dst, nil))
	for _, v := range luma(dst) {
		assert.EqualValues(t, 25, v)
	}
	for _, v := range chroma(dst) {
		assert.EqualValues(t, 115, v)
	}
}

func TestMergeAntiShake(t *testing.T) {
	blurred := nv21(0, 50, 1)
	sharp := nv21(1, 0, 2)
	for i := range luma(sharp) {
		if i%2 == 1 {
			sharp.Planes[0][i] = 255
		}
	}
	dst := nv21(2, 0, 0)
	log, hook := testLog()

	require.NoError(t, mergeAntiShake([]sfl.Buffer{blurred, sharp}, dst, &ShotInfo{Sensitivity: 500, ExposureNs: 33}, log))
	assert.Equal(t, luma(sharp), luma(dst))
	assert.Equal(t, chroma(sharp), chroma(dst))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "intensity(7) iso(1000) exposure(33)", hook.LastEntry().Message)
}

func TestIntensity(t *testing.T) {
	for _, tc := range []struct {
		sens      uint32
		intensity int
		iso       uint32
	}{
		{0, 5, 400},
		{199, 5, 400},
		{200, 6, 600},
		{599, 7, 1000},
		{600, 8, 1400},
		{800, 10, 1600},
		{3200, 10, 1600},
	} {
		intensity, iso := Intensity(tc.sens)
		assert.Equal(t, tc.intensity, intensity, "sensitivity %d", tc.sens)
		assert.Equal(t, tc.iso, iso, "sensitivity %d", tc.sens)
	}
}

func TestMergeFlawless(t *testing.T) {
	src := nv21(0, 0, 9)
	for i := range luma(src) {
		if i%2 == 1 {
			src.Planes[0][i] = 90
		}
	}

	for _, tc := range []struct {
		name string
		meta any
		want []byte
	}{
		{"off", nil, []byte{0, 90, 0, 90}},
		{"disabled", &FlawlessConfig{FaceBeautyIntensity: 100}, []byte{0, 90, 0, 90}},
		{"full", &FlawlessConfig{FaceBeauty: true, FaceBeautyIntensity: 100}, []byte{30, 30, 60, 60}},
		{"half", &FlawlessConfig{FaceBeauty: true, FaceBeautyIntensity: 50}, []byte{15, 60, 30, 75}},
		{"clamped", &FlawlessConfig{FaceBeauty: true, FaceBeautyIntensity: 400}, []byte{30, 30, 60, 60}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dst := nv21(1, 0, 0)
			require.NoError(t, mergeFlawless([]sfl.Buffer{src}, dst, tc.meta))
			assert.Equal(t, tc.want, luma(dst)[:w])
			assert.Equal(t, tc.want, luma(dst)[w:])
			assert.Equal(t, chroma(src), chroma(dst))
		})
	}
}

func TestGeometry(t *testing.T) {
	small := sfl.Buffer{Width: 2, Height: 2, Format: image.FormatNV21, Planes: [][]byte{make([]byte, 6)}}
	err := mergeNight([]sfl.Buffer{nv21(0, 1, 1), small}, nv21(2, 0, 0), nil)
	assert.ErrorIs(t, err, ErrGeometry)

	short := nv21(0, 1, 1)
	short.Planes[0] = short.Planes[0][:w*h]
	err = mergeNight([]sfl.Buffer{short}, nv21(1, 0, 0), nil)
	assert.ErrorIs(t, err, image.ErrShortPlane)
}

func TestNightShotThroughManager(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := diag.New(1, logger)
	m := sfl.NewManager("arcsoft", 1, Constructors(), d)
	defer func() { require.NoError(t, m.Close()) }()
	assert.EqualValues(t, 4, d.Snapshot().LibsAlive)

	require.NoError(t, m.SetType(sfl.Night))
	require.NoError(t, m.SetRunEnable(sfl.Night, true))
	lib, err := m.GetLibrary(sfl.Night)
	require.NoError(t, err)
	require.NoError(t, lib.Init())
	require.NoError(t, lib.Prepare())

	var n uint32
	require.NoError(t, m.Command(sfl.CommandInfo{Type: sfl.TypeCapture, Pos: sfl.PosSrc, Cmd: sfl.CmdGetMaxBufferCnt}, &n))
	assert.EqualValues(t, 4, n)
	require.NoError(t, m.Command(sfl.CommandInfo{Type: sfl.TypeCapture, Cmd: sfl.CmdGetSize}, &n))
	assert.EqualValues(t, NightShotBufferSize, n)

	for i, v := range []byte{40, 80, 120, 160} {
		b := nv21(i, v, 128)
		require.NoError(t, m.Command(sfl.CommandInfo{Type: sfl.TypeCapture, Pos: sfl.PosSrc, Cmd: sfl.CmdAddBuffer}, &b))
	}
	out := nv21(9, 0, 0)
	require.NoError(t, m.Command(sfl.CommandInfo{Type: sfl.TypeCapture, Pos: sfl.PosDst, Cmd: sfl.CmdAddBuffer}, &out))

	// the current library is running, so switching is refused
	assert.ErrorIs(t, m.SetType(sfl.HDR), sfl.ErrInProgress)

	var used []sfl.Buffer
	require.NoError(t, m.Command(sfl.CommandInfo{Type: sfl.TypeCapture, Cmd: sfl.CmdProcess}, &used))
	require.Len(t, used, 5)
	assert.Equal(t, 9, used[4].Index)
	for _, v := range luma(out) {
		assert.EqualValues(t, 100, v)
	}

	require.NoError(t, m.SetRunEnable(sfl.Night, false))
	require.NoError(t, m.SetType(sfl.HDR))
}
