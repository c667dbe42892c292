// Package history merges successive session snapshots and derives per-cycle rates.
package history

import (
	"github.com/powa-team/pgtop/internal/model"
)

// Store keeps the rows observed in the previous cycle, keyed by identity.
// It is not safe for concurrent use; the monitoring loop owns it.
type Store struct {
	clockTicks float64
	previous   map[model.Identity]model.SnapshotRow
}

// New creates an empty store. clockTicks is the server's clock ticks per second,
// used to turn CPU tick deltas into a fraction of one core.
func New(clockTicks int) *Store {
	return &Store{
		clockTicks: float64(clockTicks),
		previous:   make(map[model.Identity]model.SnapshotRow),
	}
}

// Merge folds one cycle of snapshots into the store and returns a record per row.
// Rows seen in the previous cycle get rates computed against it; first seen
// rows get zero rates. Identities missing from this cycle are forgotten.
func (s *Store) Merge(snapshots []model.HostSnapshot) []*model.ProcessRecord {
	current := make(map[model.Identity]model.SnapshotRow)
	var records []*model.ProcessRecord

	for _, snap := range snapshots {
		for _, row := range snap.Rows {
			rec := &model.ProcessRecord{Host: snap.Host, Current: row}
			id := rec.Identity()

			if prev, ok := s.previous[id]; ok {
				rec.Previous = &prev
				rec.Stats = s.loopStats(prev, row)
			}

			current[id] = row
			records = append(records, rec)
		}
	}

	s.previous = current
	return records
}

// Len returns the number of identities retained for the next cycle.
func (s *Store) Len() int {
	return len(s.previous)
}

// Contains reports whether id was observed in the last merged cycle.
func (s *Store) Contains(id model.Identity) bool {
	_, ok := s.previous[id]
	return ok
}

// loopStats derives rates from two observations of the same identity.
// Counter decreases (pid reuse) are not corrected and yield negative rates.
func (s *Store) loopStats(prev, cur model.SnapshotRow) model.LoopStats {
	elapsed := cur.Epoch - prev.Epoch
	if elapsed <= 0 {
		return model.LoopStats{}
	}
	ticks := elapsed * s.clockTicks
	return model.LoopStats{
		CPUUser:   float64(cur.UTime-prev.UTime) / ticks,
		CPUSystem: float64(cur.STime-prev.STime) / ticks,
		IORead:    float64(cur.RChar-prev.RChar) / elapsed,
		IOWrite:   float64(cur.WChar-prev.WChar) / elapsed,
	}
}
