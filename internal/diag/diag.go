// Package diag holds the per-session diagnostics context shared by stages
// and special function libraries of one camera session.
package diag

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Context tracks object lifetimes and draw outcomes for one camera session
type Context struct {
	id       string
	cameraID int
	log      *logrus.Entry

	stages    atomic.Int64
	libraries atomic.Int64
	draws     atomic.Int64
	forwards  atomic.Int64
	failures  atomic.Int64
}

// Stats is a point-in-time copy of the counters
type Stats struct {
	SessionID    string `json:"session_id"`
	CameraID     int    `json:"camera_id"`
	StagesAlive  int64  `json:"stages_alive"`
	LibsAlive    int64  `json:"libraries_alive"`
	Draws        int64  `json:"draws"`
	Forwards     int64  `json:"forwards"`
	DrawFailures int64  `json:"draw_failures"`
}

// New creates a diagnostics context. A nil logger uses the logrus standard logger.
func New(cameraID int, logger *logrus.Logger) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := uuid.NewString()
	return &Context{
		id:       id,
		cameraID: cameraID,
		log: logger.WithFields(logrus.Fields{
			"camera":  cameraID,
			"session": id[:8],
		}),
	}
}

// ID returns the session trace id
func (c *Context) ID() string {
	return c.id
}

// CameraID returns the camera the session belongs to
func (c *Context) CameraID() int {
	return c.cameraID
}

// Logger returns the session logger
func (c *Context) Logger() *logrus.Entry {
	return c.log
}

// With returns the session logger with one extra field
func (c *Context) With(key string, value any) *logrus.Entry {
	return c.log.WithField(key, value)
}

func (c *Context) StageCreated()   { c.stages.Add(1) }
func (c *Context) StageDestroyed() { c.stages.Add(-1) }
func (c *Context) LibraryAdded()   { c.libraries.Add(1) }
func (c *Context) LibraryRemoved() { c.libraries.Add(-1) }
func (c *Context) Drew()           { c.draws.Add(1) }
func (c *Context) Forwarded()      { c.forwards.Add(1) }
func (c *Context) DrawFailed()     { c.failures.Add(1) }

// Snapshot returns the current counters
func (c *Context) Snapshot() Stats {
	return Stats{
		SessionID:    c.id,
		CameraID:     c.cameraID,
		StagesAlive:  c.stages.Load(),
		LibsAlive:    c.libraries.Load(),
		Draws:        c.draws.Load(),
		Forwards:     c.forwards.Load(),
		DrawFailures: c.failures.Load(),
	}
}
