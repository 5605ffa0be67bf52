package sfl

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/video-system/go-camera-pp/internal/diag"
)

// Constructor builds the library for one slot
type Constructor func(cameraID int, log *logrus.Entry) Library

// Manager owns one library per slot and tracks which one is current. At most
// the current library may be running; switching away from it is refused
// while it runs.
type Manager struct {
	name     string
	cameraID int
	diag     *diag.Context
	log      *logrus.Entry

	// Slot writes hold both libMu and stateMu, so holding either one is
	// enough to read a slot. Flag and selector paths take stateMu alone.
	// Take libMu first when both are needed.
	libMu   sync.RWMutex
	library [NumTypes]Library

	stateMu sync.Mutex
	curType Type
}

// LibraryStatus is one slot of a status snapshot
type LibraryStatus struct {
	Type    Type   `json:"type"`
	Name    string `json:"name,omitempty"`
	Present bool   `json:"present"`
	Enable  bool   `json:"enable"`
	Running bool   `json:"running"`
}

// Status is a snapshot of the manager
type Status struct {
	Name      string          `json:"name"`
	Current   Type            `json:"current"`
	Libraries []LibraryStatus `json:"libraries"`
}

// NewManager populates every slot that has a constructor. Slots without one
// stay empty for the manager's lifetime.
func NewManager(name string, cameraID int, ctors map[Type]Constructor, d *diag.Context) *Manager {
	m := &Manager{
		name:     name,
		cameraID: cameraID,
		diag:     d,
		log:      d.Logger().WithField("sfl", name),
		curType:  None,
	}

	m.libMu.Lock()
	defer m.libMu.Unlock()
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	for t := None + 1; t < NumTypes; t++ {
		ctor, ok := ctors[t]
		if !ok || ctor == nil {
			m.log.Debugf("no library for %s", t)
			continue
		}
		m.library[t] = ctor(cameraID, m.log)
		d.LibraryAdded()
		m.log.Debugf("created %s(%s)", t, m.library[t].Name())
	}
	return m
}

// Name returns the manager name
func (m *Manager) Name() string {
	return m.name
}

// GetLibrary returns the library of slot t
func (m *Manager) GetLibrary(t Type) (Library, error) {
	m.libMu.RLock()
	defer m.libMu.RUnlock()
	return m.libraryLocked(t, "get library")
}

// libraryLocked needs libMu or stateMu held
func (m *Manager) libraryLocked(t Type, op string) (Library, error) {
	if t == None || !t.Valid() {
		m.log.Errorf("%s failed, invalid type(%s)", op, t)
		return nil, fmt.Errorf("%s %s: %w", op, t, ErrInvalidType)
	}
	lib := m.library[t]
	if lib == nil {
		m.log.Errorf("%s failed, library is nil, type(%s)", op, t)
		return nil, fmt.Errorf("%s %s: %w", op, t, ErrNoLibrary)
	}
	return lib, nil
}

// SetEnable marks whether library t may be used
func (m *Manager) SetEnable(t Type, enable bool) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	lib, err := m.libraryLocked(t, "set status")
	if err != nil {
		return err
	}
	lib.SetEnable(enable)
	return nil
}

// Enable reports the enable flag of library t. Empty or invalid slots report
// false.
func (m *Manager) Enable(t Type) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	lib, err := m.libraryLocked(t, "get status")
	if err != nil {
		return false
	}
	return lib.Enable()
}

// SetRunEnable marks library t as mid-execution
func (m *Manager) SetRunEnable(t Type, enable bool) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	lib, err := m.libraryLocked(t, "set runEnable")
	if err != nil {
		return err
	}
	lib.SetRunEnable(enable)
	return nil
}

// RunEnable reports whether library t is mid-execution
func (m *Manager) RunEnable(t Type) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	lib, err := m.libraryLocked(t, "get runEnable")
	if err != nil {
		return false
	}
	return lib.RunEnable()
}

// SetType selects the current library. Switching from a running library to
// another one fails with ErrInProgress; selecting the current type again or
// clearing to None always succeeds.
func (m *Manager) SetType(t Type) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if !t.Valid() {
		m.log.Errorf("set curType failed, invalid type(%d)", int(t))
		return fmt.Errorf("set type %s: %w", t, ErrInvalidType)
	}

	if m.curType != None && m.curType != t && t != None {
		if lib := m.library[m.curType]; lib != nil && lib.RunEnable() {
			m.log.Errorf("set curType skipped, curType is in-progress, curType(%s) newType(%s) curRunEnable(true)", m.curType, t)
			return fmt.Errorf("set type %s while %s runs: %w", t, m.curType, ErrInProgress)
		}
	}

	if m.curType != t {
		m.log.Debugf("curType %s -> %s", m.curType, t)
		m.curType = t
	}
	return nil
}

// Type returns the current library type
func (m *Manager) Type() Type {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.curType
}

// Command dispatches a command to the current library
func (m *Manager) Command(info CommandInfo, arg any) error {
	m.libMu.RLock()
	defer m.libMu.RUnlock()

	m.stateMu.Lock()
	t := m.curType
	m.stateMu.Unlock()

	lib, err := m.libraryLocked(t, "command")
	if err != nil {
		return err
	}
	return lib.ProcessCommand(info, arg)
}

// Status returns a snapshot of every slot
func (m *Manager) Status() Status {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	st := Status{Name: m.name, Current: m.curType}
	for t := None + 1; t < NumTypes; t++ {
		ls := LibraryStatus{Type: t}
		if lib := m.library[t]; lib != nil {
			ls.Present = true
			ls.Name = lib.Name()
			ls.Enable = lib.Enable()
			ls.Running = lib.RunEnable()
		}
		st.Libraries = append(st.Libraries, ls)
	}
	return st
}

// Close clears the current type and deinits every library. Each slot is
// emptied before its library is deinitialized, so flag calls made meanwhile
// see an empty slot and never wait on Deinit.
func (m *Manager) Close() error {
	m.libMu.Lock()
	defer m.libMu.Unlock()

	m.stateMu.Lock()
	m.curType = None
	m.stateMu.Unlock()

	var errs error
	for t := None + 1; t < NumTypes; t++ {
		m.stateMu.Lock()
		lib := m.library[t]
		m.library[t] = nil
		m.stateMu.Unlock()
		if lib == nil {
			continue
		}
		if err := lib.Deinit(); err != nil {
			m.log.WithError(err).Errorf("destroy %s failed", t)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", t, err))
		}
		m.diag.LibraryRemoved()
	}
	return errs
}
