package engine

import (
	"cmp"
	"slices"

	"github.com/powa-team/pgtop/internal/model"
)

// Rank orders records by descending interest, in priority order: combined CPU
// rate, blocking pid, statement age, combined I/O rate and process age. Ties
// fall back to the identity so the order is total.
func Rank(records []*model.ProcessRecord) {
	slices.SortFunc(records, compareInterest)
}

func compareInterest(a, b *model.ProcessRecord) int {
	if c := cmp.Compare(b.Stats.CPU(), a.Stats.CPU()); c != 0 {
		return c
	}
	if c := cmp.Compare(positive(b.Current.BlockingPID.Int64), positive(a.Current.BlockingPID.Int64)); c != 0 {
		return c
	}
	if c := cmp.Compare(positive(b.Current.StatementAge.Int64), positive(a.Current.StatementAge.Int64)); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Stats.IO(), a.Stats.IO()); c != 0 {
		return c
	}
	if c := cmp.Compare(positive(b.Current.ProcessAge), positive(a.Current.ProcessAge)); c != 0 {
		return c
	}

	ai, bi := a.Identity(), b.Identity()
	if c := cmp.Compare(ai.HostID, bi.HostID); c != 0 {
		return c
	}
	return cmp.Compare(ai.PID, bi.PID)
}

// positive maps non-positive values (and absent ones, which read as zero) to 0.
func positive(v int64) int64 {
	if v > 0 {
		return v
	}
	return 0
}
