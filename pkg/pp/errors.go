package pp

import "errors"

var (
	ErrAlreadyCreated    = errors.New("stage already created")
	ErrNotCreated        = errors.New("stage not created")
	ErrNextAlreadySet    = errors.New("stage already has a next stage")
	ErrAlreadyLinked     = errors.New("stage already linked into a chain")
	ErrChainCycle        = errors.New("linking would create a cycle")
	ErrNilStage          = errors.New("nil stage")
	ErrUnsupportedFormat = errors.New("no stage in chain supports the image pair")
	ErrCapacityFull      = errors.New("capacity format table is full")
	ErrTooManyImages     = errors.New("image count exceeds capacity limit")
	ErrNoImage           = errors.New("draw needs at least one source and one destination image")
	ErrNotStarted        = errors.New("stage not started")
)
