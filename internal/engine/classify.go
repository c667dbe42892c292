package engine

import (
	"strings"

	"github.com/powa-team/pgtop/internal/model"
)

// Highlight colors.
const (
	DefaultColor = model.ColorWhite
	BlockedColor = model.ColorRed
)

// Classify returns the highlight of a record and the alert events it raises.
// The rules are evaluated independently:
//   - a backend waiting on a lock gets the blocked color and a lock alert;
//   - a statement at least as old as the threshold gets the bold flag, and a
//     slow statement alert unless it runs as the reserved user or is a bulk copy.
func Classify(rec *model.ProcessRecord, rules Rules) (model.Highlight, []model.AlertEvent) {
	row := &rec.Current
	highlight := DefaultColor
	var events []model.AlertEvent

	if row.BlockingPID.Valid {
		highlight = highlight.WithColor(BlockedColor)
		events = append(events, model.AlertEvent{
			Kind:     model.AlertLock,
			Identity: rec.Identity(),
			Value:    row.BlockingPID.Int64,
		})
	}

	if row.StatementAge.Valid && row.StatementAge.Int64 >= rules.StatementAgeThreshold {
		highlight |= model.ModeBold
		if !isReservedUser(row.UserName.String, rules.ReservedUser) && !isBulkCopy(row.Query.String, rules) {
			events = append(events, model.AlertEvent{
				Kind:     model.AlertSlowStatement,
				Identity: rec.Identity(),
				Value:    row.StatementAge.Int64,
			})
		}
	}

	return highlight, events
}

func isReservedUser(user, reserved string) bool {
	return reserved != "" && strings.EqualFold(user, reserved)
}

func isBulkCopy(sql string, rules Rules) bool {
	return rules.BulkCopy != nil && rules.BulkCopy.MatchString(sql)
}
