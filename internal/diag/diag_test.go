package diag

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCounters(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := New(2, logger)

	_, err := uuid.Parse(d.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, d.CameraID())

	d.StageCreated()
	d.StageCreated()
	d.StageDestroyed()
	d.LibraryAdded()
	d.Drew()
	d.Forwarded()
	d.DrawFailed()

	s := d.Snapshot()
	assert.Equal(t, int64(1), s.StagesAlive)
	assert.Equal(t, int64(1), s.LibsAlive)
	assert.Equal(t, int64(1), s.Draws)
	assert.Equal(t, int64(1), s.Forwards)
	assert.Equal(t, int64(1), s.DrawFailures)

	d.With("stage", "csc").Info("hello")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, 2, hook.LastEntry().Data["camera"])
	assert.Equal(t, "csc", hook.LastEntry().Data["stage"])
}

func TestSessionsAreIndependent(t *testing.T) {
	a := New(0, nil)
	b := New(0, nil)
	a.StageCreated()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, int64(0), b.Snapshot().StagesAlive)
}
