// Package ppfactory builds post-processing stages from driver node numbers
// and scenario ids.
package ppfactory

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/internal/diag"
	"github.com/video-system/go-camera-pp/pkg/pp"
	"github.com/video-system/go-camera-pp/pkg/pp/csc"
	"github.com/video-system/go-camera-pp/pkg/pp/gdc"
	"github.com/video-system/go-camera-pp/pkg/pp/jpeg"
	"github.com/video-system/go-camera-pp/pkg/pp/remosaic"
	"github.com/video-system/go-camera-pp/pkg/pp/uniplugin"
)

// Driver node numbers
const (
	NodeLibAcryl = 100 + iota
	NodeLibCSC       // picture GSC, the fallback for what G2D cannot do
	NodeJPEG
	NodeGDC
	NodeRemosaic
)

// Scenario ids for plugin stages
const (
	ScenarioLowLightDeblur = 1000 + iota
	ScenarioObjectTracking
	ScenarioSWVdis
)

// ErrUnknownID is returned for ids nothing is registered under
var ErrUnknownID = errors.New("unknown post-processing node or scenario")

// Constructor builds the backend for one stage
type Constructor func(cameraID, id int, log *logrus.Entry) pp.Backend

type entry struct {
	name string
	ctor Constructor
}

// Factory maps ids to backend constructors and wraps the result in stages
type Factory struct {
	diag *diag.Context
	log  *logrus.Entry

	mu      sync.RWMutex
	entries map[int]entry
	names   map[string]int
}

// New returns a factory with every built-in backend registered
func New(d *diag.Context) *Factory {
	f := &Factory{
		diag:    d,
		log:     d.With("component", "ppfactory"),
		entries: make(map[int]entry),
		names:   make(map[string]int),
	}

	f.Register(NodeLibAcryl, "libacryl", func(_, _ int, log *logrus.Entry) pp.Backend {
		return csc.NewAcryl(log)
	})
	f.Register(NodeLibCSC, "libcsc", func(_, _ int, log *logrus.Entry) pp.Backend {
		return csc.NewLibCSC(log)
	})
	f.Register(NodeJPEG, "jpeg", func(_, _ int, log *logrus.Entry) pp.Backend {
		return jpeg.New(log)
	})
	f.Register(NodeGDC, "gdc", func(cameraID, id int, log *logrus.Entry) pp.Backend {
		return gdc.New(cameraID, id, log)
	})
	f.Register(NodeRemosaic, "remosaic", func(_, _ int, log *logrus.Entry) pp.Backend {
		return remosaic.New(log)
	})
	f.Register(ScenarioLowLightDeblur, "low_light_deblur", func(cameraID, _ int, log *logrus.Entry) pp.Backend {
		return uniplugin.NewLowLightDeblur(cameraID, log)
	})
	f.Register(ScenarioObjectTracking, "object_tracking", func(cameraID, _ int, log *logrus.Entry) pp.Backend {
		return uniplugin.NewObjectTracking(cameraID, log)
	})
	f.Register(ScenarioSWVdis, "sw_vdis", func(cameraID, _ int, log *logrus.Entry) pp.Backend {
		return uniplugin.NewSWVdis(cameraID, log)
	})

	return f
}

// Register adds or replaces the constructor for id. name is what config
// files refer to it by.
func (f *Factory) Register(id int, name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.entries[id]; ok {
		delete(f.names, old.name)
	}
	f.entries[id] = entry{name: name, ctor: ctor}
	f.names[strings.ToLower(name)] = id
}

// NewStage builds an uncreated stage for id
func (f *Factory) NewStage(cameraID, id int) (*pp.Stage, error) {
	f.mu.RLock()
	e, ok := f.entries[id]
	f.mu.RUnlock()
	if !ok {
		f.log.Errorf("unexpected id(%d), assert!!!!", id)
		return nil, fmt.Errorf("camera %d id %d: %w", cameraID, id, ErrUnknownID)
	}

	log := f.diag.Logger().WithField("node", id)
	s, err := pp.NewStage(cameraID, id, e.ctor(cameraID, id, log), f.diag)
	if err != nil {
		f.log.WithError(err).Errorf("new %s(%d) fail", e.name, id)
		return nil, err
	}
	return s, nil
}

// ParseID accepts a registered name or a decimal id
func (f *Factory) ParseID(name string) (int, error) {
	f.mu.RLock()
	id, ok := f.names[strings.ToLower(strings.TrimSpace(name))]
	f.mu.RUnlock()
	if ok {
		return id, nil
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownID)
	}
	return n, nil
}

// Name returns the registered name of id
func (f *Factory) Name(id int) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[id]
	return e.name, ok
}

// IDs returns every registered id in ascending order
func (f *Factory) IDs() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]int, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
