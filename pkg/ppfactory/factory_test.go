package ppfactory

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/pp"
	"github.com/video-system/go-camera-pp/pkg/pp/csc"
	"github.com/video-system/go-camera-pp/pkg/pp/jpeg"
)

func newFactory(t *testing.T) (*Factory, *diag.Context, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	d := diag.New(0, logger)
	return New(d), d, hook
}

func img(f image.PixelFormat, w int) image.Image {
	return image.Image{Rect: image.Rect{W: w, H: 8, FullW: w, FullH: 8, Format: f}}
}

func TestBuiltins(t *testing.T) {
	f, d, _ := newFactory(t)

	cases := []struct {
		id   int
		name string
	}{
		{NodeLibAcryl, csc.NameAcryl},
		{NodeLibCSC, csc.NameLibCSC},
		{NodeJPEG, jpeg.Name},
		{NodeGDC, "GDC"},
		{NodeRemosaic, "LibRemosaic"},
		{ScenarioLowLightDeblur, "UniPluginLowLightDeblur"},
		{ScenarioObjectTracking, "UniPluginObjectTracking"},
		{ScenarioSWVdis, "UniPluginSWVdis"},
	}
	for _, c := range cases {
		s, err := f.NewStage(3, c.id)
		require.NoError(t, err, c.name)
		assert.Equal(t, c.name, s.Name())
		assert.Equal(t, 3, s.CameraID())
		assert.Equal(t, c.id, s.NodeNum())
		assert.False(t, s.IsCreated(), "factory never creates")
	}
	assert.Len(t, f.IDs(), len(cases))
	assert.Zero(t, d.Snapshot().StagesAlive)
}

func TestUnknownID(t *testing.T) {
	f, _, hook := newFactory(t)

	s, err := f.NewStage(0, 7)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrUnknownID)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestParseID(t *testing.T) {
	f, _, _ := newFactory(t)

	id, err := f.ParseID("LibAcryl")
	require.NoError(t, err)
	assert.Equal(t, NodeLibAcryl, id)

	id, err = f.ParseID(" sw_vdis ")
	require.NoError(t, err)
	assert.Equal(t, ScenarioSWVdis, id)

	id, err = f.ParseID("103")
	require.NoError(t, err)
	assert.Equal(t, NodeGDC, id)

	_, err = f.ParseID("hdr")
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestRegisterReplaces(t *testing.T) {
	f, _, _ := newFactory(t)

	f.Register(NodeJPEG, "encoder", func(_, _ int, log *logrus.Entry) pp.Backend {
		return csc.NewLibCSC(log)
	})
	s, err := f.NewStage(0, NodeJPEG)
	require.NoError(t, err)
	assert.Equal(t, csc.NameLibCSC, s.Name())

	name, ok := f.Name(NodeJPEG)
	assert.True(t, ok)
	assert.Equal(t, "encoder", name)
	_, err = f.ParseID("jpeg")
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestChainResolvesJpeg(t *testing.T) {
	f, d, _ := newFactory(t)

	head, err := f.NewStage(0, NodeLibAcryl)
	require.NoError(t, err)
	enc, err := f.NewStage(0, NodeJPEG)
	require.NoError(t, err)
	require.NoError(t, pp.Link(head, enc))
	require.NoError(t, head.Create())

	got, err := pp.Resolve(head, img(image.FormatNV21, 640), img(image.FormatJPEG420, 640))
	require.NoError(t, err)
	assert.Same(t, enc, got)
	assert.True(t, enc.IsCreated())
	assert.EqualValues(t, 2, d.Snapshot().StagesAlive)

	got, err = pp.Resolve(head, img(image.FormatNV21, 640), img(image.FormatNV12, 640))
	require.NoError(t, err)
	assert.Same(t, head, got)

	require.NoError(t, head.Destroy())
	assert.False(t, enc.IsCreated())
	assert.Zero(t, d.Snapshot().StagesAlive)
}

func TestAcrylFallsBackToLibCSC(t *testing.T) {
	f, _, _ := newFactory(t)

	head, err := f.NewStage(0, NodeLibAcryl)
	require.NoError(t, err)
	gsc, err := f.NewStage(0, NodeLibCSC)
	require.NoError(t, err)
	require.NoError(t, head.SetNext(gsc))
	require.NoError(t, head.Create())
	t.Cleanup(func() { _ = head.Destroy() })

	got, err := pp.Resolve(head, img(image.FormatNV21, 640), img(image.FormatYVU420, 640))
	require.NoError(t, err)
	assert.Same(t, gsc, got)
}
