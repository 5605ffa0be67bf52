package pp

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-camera-pp/pkg/image"
)

func TestResolvePicksFirstCapableStage(t *testing.T) {
	d, _ := newTestDiag(t)
	acryl, ba := newFakeStage(t, d, "acryl", yuv, yuv)
	enc, be := newFakeStage(t, d, "jpeg", yuv, jpeg)
	enc2, be2 := newFakeStage(t, d, "jpeg2", yuv, jpeg)
	require.NoError(t, Link(acryl, enc, enc2))

	got, err := Resolve(acryl, nv(image.FormatNV21, 640), nv(image.FormatJPEG420, 640))
	require.NoError(t, err)
	assert.Same(t, enc, got)
	assert.True(t, enc.IsCreated())
	assert.Equal(t, int32(1), be.creates.Load())

	// stages that were not selected stay untouched
	assert.False(t, acryl.IsCreated())
	assert.False(t, enc2.IsCreated())
	assert.Equal(t, int32(0), ba.creates.Load())
	assert.Equal(t, int32(0), be2.creates.Load())

	// second resolution reuses the created stage
	got, err = Resolve(acryl, nv(image.FormatNV12, 640), nv(image.FormatJPEG422, 640))
	require.NoError(t, err)
	assert.Same(t, enc, got)
	assert.Equal(t, int32(1), be.creates.Load())
}

func TestResolveHeadMatches(t *testing.T) {
	d, _ := newTestDiag(t)
	head, b := newFakeStage(t, d, "acryl", yuv, yuv)

	got, err := Resolve(head, nv(image.FormatNV12, 64), nv(image.FormatNV21, 64))
	require.NoError(t, err)
	assert.Same(t, head, got)
	assert.Equal(t, int32(1), b.creates.Load())
}

func TestResolveRespectsWidthAlignment(t *testing.T) {
	d, _ := newTestDiag(t)
	b := &fakeBackend{name: "gdc"}
	s, err := NewStage(0, 0, b, d)
	require.NoError(t, err)
	require.NoError(t, s.src.AddFormat(image.FormatNV21, 16))
	require.NoError(t, s.dst.AddFormat(image.FormatNV21, 16))

	_, err = Resolve(s, nv(image.FormatNV21, 650), nv(image.FormatNV21, 640))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	got, err := Resolve(s, nv(image.FormatNV21, 640), nv(image.FormatNV21, 640))
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestResolveNoMatchLogsBothSides(t *testing.T) {
	d, hook := newTestDiag(t)
	a, ba := newFakeStage(t, d, "a", yuv, yuv)
	b, bb := newFakeStage(t, d, "b", yuv, jpeg)
	require.NoError(t, a.SetNext(b))

	got, err := Resolve(a, nv(image.FormatYUYV, 640), nv(image.FormatABGR32, 640))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, int32(0), ba.creates.Load())
	assert.Equal(t, int32(0), bb.creates.Load())

	var sides []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			sides = append(sides, e.Data["format"].(string))
		}
	}
	assert.Equal(t, []string{"YUYV", "AR24"}, sides)
}

func TestResolveNoMatchLogsOnlyFailingSide(t *testing.T) {
	d, hook := newTestDiag(t)
	s, _ := newFakeStage(t, d, "jpeg", yuv, jpeg)

	_, err := Resolve(s, nv(image.FormatNV21, 640), nv(image.FormatNV12, 640))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	var errs int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errs++
			assert.Contains(t, e.Message, "[DST]")
		}
	}
	assert.Equal(t, 1, errs)
}

func TestResolveCreateFailure(t *testing.T) {
	d, _ := newTestDiag(t)
	head, _ := newFakeStage(t, d, "acryl", yuv, yuv)
	b := &fakeBackend{name: "jpeg", src: yuv, dst: jpeg, createErr: assert.AnError}
	enc, err := NewStage(0, 0, b, d)
	require.NoError(t, err)
	require.NoError(t, head.SetNext(enc))

	got, err := Resolve(head, nv(image.FormatNV21, 640), nv(image.FormatJPEG420, 640))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, enc.IsCreated())
}

func TestResolveConcurrentCreatesOnce(t *testing.T) {
	d, _ := newTestDiag(t)
	head, _ := newFakeStage(t, d, "acryl", yuv, yuv)
	enc, be := newFakeStage(t, d, "jpeg", yuv, jpeg)
	require.NoError(t, head.SetNext(enc))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Resolve(head, nv(image.FormatNV21, 640), nv(image.FormatJPEG420, 640))
			assert.NoError(t, err)
			assert.Same(t, enc, got)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), be.creates.Load())
	assert.Equal(t, int64(1), d.Snapshot().StagesAlive)
}

func TestResolveNilHead(t *testing.T) {
	_, err := Resolve(nil, image.Image{}, image.Image{})
	assert.ErrorIs(t, err, ErrNilStage)
}
