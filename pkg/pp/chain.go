package pp

import "fmt"

// Link chains stages in order: stages[i].Next() == stages[i+1].
// Stages already linked the same way are left alone.
func Link(stages ...*Stage) error {
	for i := 0; i+1 < len(stages); i++ {
		cur, next := stages[i], stages[i+1]
		if cur == nil || next == nil {
			return fmt.Errorf("link position %d: %w", i, ErrNilStage)
		}
		if cur.Next() == next {
			continue
		}
		if err := cur.SetNext(next); err != nil {
			return err
		}
	}
	return nil
}

// Chain returns head followed by every stage reachable through Next
func Chain(head *Stage) []*Stage {
	var out []*Stage
	for c := head; c != nil; c = c.Next() {
		out = append(out, c)
	}
	return out
}

// ChainInfo returns status snapshots for the whole chain
func ChainInfo(head *Stage) []StageInfo {
	stages := Chain(head)
	out := make([]StageInfo, 0, len(stages))
	for _, s := range stages {
		out = append(out, s.Info())
	}
	return out
}
