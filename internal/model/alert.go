package model

import (
	"fmt"
	"time"
)

// AlertKind tells what condition raised an AlertEvent.
type AlertKind string

const (
	// AlertLock is raised for a backend waiting on another backend's lock.
	AlertLock AlertKind = "lock"

	// AlertSlowStatement is raised for a statement running past the age threshold.
	AlertSlowStatement AlertKind = "slow_statement"
)

// AlertEvent is a transient per-cycle marker. It is never carried over to the next cycle.
type AlertEvent struct {
	Kind AlertKind `json:"kind"`

	// Identity is the backend the event was raised for.
	Identity Identity `json:"identity"`

	// Value is the blocking pid for AlertLock and the statement age for AlertSlowStatement.
	Value int64 `json:"value"`
}

// String renders the event as "lock=<pid>_<blocker>" or "slow_statement=<pid>_<age>".
func (e AlertEvent) String() string {
	return fmt.Sprintf("%s=%d_%d", e.Kind, e.Identity.PID, e.Value)
}

// Report is the periodic capacity report built from the latest Status.
type Report struct {
	// GeneratedAt is when the report was built.
	GeneratedAt time.Time `json:"generated_at"`

	// CycleAt is when the cycle the report is based on completed.
	CycleAt time.Time `json:"cycle_at"`

	// Connected is false when no cycle has completed on the current connection.
	Connected bool `json:"connected"`

	// Hosts holds one usage line per monitored host.
	Hosts []HostUsage `json:"hosts"`

	// BlockedCount is the number of lock alerts in the cycle.
	BlockedCount int `json:"blocked_count"`

	// SlowCount is the number of slow statement alerts in the cycle.
	SlowCount int `json:"slow_count"`

	// TopSessions are the highest ranked sessions of the cycle.
	TopSessions []ProcessRecord `json:"top_sessions,omitempty"`
}

// HostUsage compares a host's session count with its usable connection budget.
type HostUsage struct {
	Host           HostRef `json:"host"`
	Sessions       int     `json:"sessions"`
	MaxConnections int     `json:"max_connections"`

	// UsagePercent is Sessions relative to MaxConnections.
	UsagePercent float64 `json:"usage_percent"`

	// Warning is set once UsagePercent reaches the configured limit.
	Warning bool `json:"warning"`
}

// HasWarnings reports whether any host is over its usage limit.
func (r *Report) HasWarnings() bool {
	for _, h := range r.Hosts {
		if h.Warning {
			return true
		}
	}
	return false
}
