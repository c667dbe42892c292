// Package engine classifies and ranks the merged session records of a cycle.
package engine

import (
	"fmt"
	"regexp"

	"github.com/powa-team/pgtop/internal/config"
	"github.com/powa-team/pgtop/internal/model"
)

// Rules are the fixed classification thresholds.
type Rules struct {
	// StatementAgeThreshold marks statements at least this old as slow.
	StatementAgeThreshold int64

	// ReservedUser never raises slow statement alerts (case-insensitive).
	ReservedUser string

	// BulkCopy matches statements that never raise slow statement alerts.
	BulkCopy *regexp.Regexp
}

// RulesFromConfig builds the classification rules from the monitor settings.
func RulesFromConfig(cfg *config.MonitorConfig) (Rules, error) {
	re, err := cfg.BulkCopyRegexp()
	if err != nil {
		return Rules{}, fmt.Errorf("compiling bulk copy pattern: %w", err)
	}
	return Rules{
		StatementAgeThreshold: cfg.StatementAgeAlertThreshold,
		ReservedUser:          cfg.ReservedUser,
		BulkCopy:              re,
	}, nil
}

// Engine runs the per-cycle classification and ranking.
type Engine struct {
	rules Rules
}

// New creates a new Engine with the given rules.
func New(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Analyze assigns every record its highlight, orders the records by descending
// interest and returns the alert events raised this cycle.
func (e *Engine) Analyze(records []*model.ProcessRecord) []model.AlertEvent {
	var alerts []model.AlertEvent
	for _, rec := range records {
		highlight, events := Classify(rec, e.rules)
		rec.Highlight = highlight
		alerts = append(alerts, events...)
	}
	Rank(records)
	return alerts
}
