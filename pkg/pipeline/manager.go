package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/ppfactory"
	"github.com/video-system/go-camera-pp/pkg/sfl"
	"github.com/video-system/go-camera-pp/pkg/sfl/arcsoft"
)

// Manager orchestrates the pipes and the SFL manager of one camera session
type Manager struct {
	cfg     *Config
	diag    *diag.Context
	factory *ppfactory.Factory
	sfl     *sfl.Manager
	log     *logrus.Entry

	mu    sync.RWMutex
	pipes map[string]*Pipe

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager builds every configured pipe and the SFL manager
func NewManager(cfg *Config, logger *logrus.Logger) (*Manager, error) {
	d := diag.New(cfg.Camera.ID, logger)
	m := &Manager{
		cfg:     cfg,
		diag:    d,
		factory: ppfactory.New(d),
		log:     d.With("component", "pipeline"),
		pipes:   make(map[string]*Pipe),
	}
	m.log.Infof("Session %s, camera %d", d.ID(), cfg.Camera.ID)

	for _, pc := range cfg.Pipes {
		p, err := NewPipe(pc, cfg.Camera.ID, m.factory, d)
		if err != nil {
			if cerr := m.closePipes(); cerr != nil {
				err = multierr.Append(err, cerr)
			}
			return nil, fmt.Errorf("create pipe %s: %w", pc.ID, err)
		}
		m.pipes[pc.ID] = p
		m.log.Infof("Pipe configured: %s", pc.ID)
	}

	m.sfl = sfl.NewManager(cfg.SFL.Name, cfg.Camera.ID, arcsoft.Constructors(), d)
	for _, name := range cfg.SFL.Enable {
		t, err := sfl.ParseType(name)
		if err == nil {
			err = m.sfl.SetEnable(t, true)
		}
		if err != nil {
			err = multierr.Append(err, m.Close())
			return nil, fmt.Errorf("enable sfl %s: %w", name, err)
		}
	}

	return m, nil
}

// Start starts all pipes
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	m.log.Infof("Starting %d pipe(s)", len(m.pipes))

	for id, p := range m.pipes {
		if err := p.Start(m.ctx); err != nil {
			m.log.WithError(err).Warnf("failed to start pipe %s", id)
			// Continue with other pipes
		}
	}
	return nil
}

// Stop stops all pipes
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	pipes := make(map[string]*Pipe, len(m.pipes))
	for id, p := range m.pipes {
		pipes[id] = p
	}
	m.mu.Unlock()

	for id, p := range pipes {
		if err := p.Stop(); err != nil {
			m.log.WithError(err).Warnf("failed to stop pipe %s", id)
		}
	}
	m.log.Info("All pipes stopped")
}

// Wait blocks until the context given to Start is cancelled
func (m *Manager) Wait() {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()
	if ctx == nil {
		return
	}
	<-ctx.Done()
}

// Close stops and tears down every pipe and the SFL manager
func (m *Manager) Close() error {
	m.Stop()
	errs := m.closePipes()
	if m.sfl != nil {
		errs = multierr.Append(errs, m.sfl.Close())
	}
	st := m.diag.Snapshot()
	m.log.WithFields(logrus.Fields{
		"draws":    st.Draws,
		"forwards": st.Forwards,
		"failures": st.DrawFailures,
		"stages":   st.StagesAlive,
		"libs":     st.LibsAlive,
	}).Info("Session closed")
	return errs
}

func (m *Manager) closePipes() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs error
	for id, p := range m.pipes {
		errs = multierr.Append(errs, p.Close())
		delete(m.pipes, id)
	}
	return errs
}

// GetPipe returns a pipe by ID
func (m *Manager) GetPipe(id string) (*Pipe, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipes[id]
	return p, ok
}

// ListPipes returns all pipe IDs in order
func (m *Manager) ListPipes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.pipes))
	for id := range m.pipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Statuses returns status for all pipes
func (m *Manager) Statuses() map[string]PipeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]PipeStatus, len(m.pipes))
	for id, p := range m.pipes {
		statuses[id] = p.Status()
	}
	return statuses
}

// SFL returns the special function library manager
func (m *Manager) SFL() *sfl.Manager {
	return m.sfl
}

// Diag returns the session diagnostics
func (m *Manager) Diag() *diag.Context {
	return m.diag
}

// Factory returns the stage factory pipes are built from
func (m *Manager) Factory() *ppfactory.Factory {
	return m.factory
}
