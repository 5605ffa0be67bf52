package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-camera-pp/pkg/image"
	"github.com/video-system/go-camera-pp/pkg/ppfactory"
	"github.com/video-system/go-camera-pp/pkg/sfl"
)

const managerConfig = `
camera:
  id: 1
pipes:
  - id: preview
    node: libacryl
    lazy_fallback: libcsc
  - id: capture
    node: libacryl
    fallbacks: [jpeg]
sfl:
  name: SFL_TEST
  enable: [hdr, flawless]
`

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg, err := ParseConfig([]byte(managerConfig))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	m, err := NewManager(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManagerBuild(t *testing.T) {
	m := newTestManager(t)

	assert.Equal(t, []string{"capture", "preview"}, m.ListPipes())
	p, ok := m.GetPipe("preview")
	require.True(t, ok)
	assert.Equal(t, "preview", p.ID())
	_, ok = m.GetPipe("missing")
	assert.False(t, ok)

	st := m.Diag().Snapshot()
	assert.Equal(t, 1, st.CameraID)
	assert.EqualValues(t, 2, st.StagesAlive)
	assert.EqualValues(t, 4, st.LibsAlive)

	assert.Equal(t, "SFL_TEST", m.SFL().Name())
	assert.True(t, m.SFL().Enable(sfl.HDR))
	assert.True(t, m.SFL().Enable(sfl.Flawless))
	assert.False(t, m.SFL().Enable(sfl.Night))

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Len(t, statuses["capture"].Chain, 2)

	_, ok = m.Factory().Name(ppfactory.NodeJPEG)
	assert.True(t, ok)
}

func TestManagerRun(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	for _, st := range m.Statuses() {
		assert.True(t, st.Running)
	}

	p, _ := m.GetPipe("preview")
	f := frame(1, image.FormatYVU420)
	require.NoError(t, p.Push(ctx, f))
	select {
	case got := <-p.Output():
		assert.Equal(t, FrameComplete, got.State)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	waited := make(chan struct{})
	go func() {
		m.Wait()
		close(waited)
	}()
	cancel()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}

	m.Stop()
	for _, st := range m.Statuses() {
		assert.False(t, st.Running)
	}
}

func TestManagerClose(t *testing.T) {
	m := newTestManager(t)
	d := m.Diag()

	require.NoError(t, m.Close())
	assert.Empty(t, m.ListPipes())
	st := d.Snapshot()
	assert.Zero(t, st.StagesAlive)
	assert.Zero(t, st.LibsAlive)
	assert.Equal(t, sfl.None, m.SFL().Type())
}

func TestManagerConfigErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg, err := ParseConfig([]byte("pipes: [{id: a, node: libacryl}, {id: b, node: nothing}]"))
	require.NoError(t, err)
	_, err = NewManager(cfg, logger)
	assert.ErrorIs(t, err, ppfactory.ErrUnknownID)

	cfg, err = ParseConfig([]byte("sfl: {enable: [ois]}"))
	require.NoError(t, err)
	_, err = NewManager(cfg, logger)
	assert.ErrorIs(t, err, sfl.ErrNoLibrary)

	cfg, err = ParseConfig([]byte("sfl: {enable: [sparkle]}"))
	require.NoError(t, err)
	_, err = NewManager(cfg, logger)
	assert.ErrorIs(t, err, sfl.ErrInvalidType)
}

func TestManagerWaitWithoutStart(t *testing.T) {
	m := newTestManager(t)
	m.Wait()
}
