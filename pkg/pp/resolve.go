package pp

import (
	"fmt"

	"github.com/video-system/go-camera-pp/pkg/image"
)

// Resolve walks the chain starting at head and returns the first stage whose
// source and destination capacities accept src and dst, creating it on first
// use. Stages that do not match are never created.
func Resolve(head *Stage, src, dst image.Image) (*Stage, error) {
	if head == nil {
		return nil, ErrNilStage
	}
	return resolve(head, nil, src, dst)
}

// resolve is Resolve for a caller that already holds locked's mutex
func resolve(head, locked *Stage, src, dst image.Image) (*Stage, error) {
	for c := head; c != nil; c = c.Next() {
		if c.accepts(src, dst) {
			var err error
			if c == locked {
				if !c.created {
					err = c.createLocked()
				}
			} else {
				err = c.ensureCreated()
			}
			if err != nil {
				head.log.WithError(err).Errorf("%s create fail", c.name)
				return nil, err
			}
			return c, nil
		}

		if c.Next() == nil {
			head.reportMismatch(c, src, dst)
			break
		}

		head.log.Debugf("%s sends post-processing to next(%s), to support [SRC]%s, fullW(%d) / [DST]%s, fullW(%d)",
			c.name, c.Next().name,
			src.Rect.Format, src.Rect.FullW,
			dst.Rect.Format, dst.Rect.FullW)
	}

	return nil, fmt.Errorf("[SRC]%s fullW(%d) / [DST]%s fullW(%d): %w",
		src.Rect.Format, src.Rect.FullW,
		dst.Rect.Format, dst.Rect.FullW,
		ErrUnsupportedFormat)
}

func (s *Stage) accepts(src, dst image.Image) bool {
	return s.src.Supports(src.Rect.Format, src.Rect.FullW) &&
		s.dst.Supports(dst.Rect.Format, dst.Rect.FullW)
}

// reportMismatch logs each side the tail of the chain rejects
func (s *Stage) reportMismatch(tail *Stage, src, dst image.Image) {
	if !tail.src.Supports(src.Rect.Format, src.Rect.FullW) {
		s.log.WithFields(src.Fields()).Errorf("%s cannot support %s, fullW(%d) (node(%d)):[SRC]",
			tail.name, src.Rect.Format, src.Rect.FullW, tail.nodeNum)
	}
	if !tail.dst.Supports(dst.Rect.Format, dst.Rect.FullW) {
		s.log.WithFields(dst.Fields()).Errorf("%s cannot support %s, fullW(%d) (node(%d)):[DST]",
			tail.name, dst.Rect.Format, dst.Rect.FullW, tail.nodeNum)
	}
}
