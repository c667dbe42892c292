// Package model defines the core data structures used by pgtop.
package model

import (
	"fmt"

	"gopkg.in/guregu/null.v3"
)

// SnapshotRow is one backend's instantaneous state as reported by a host at query time.
// It maps to one row of the session status view.
type SnapshotRow struct {
	// PID is the backend process id.
	PID int64 `json:"pid"`

	// State is the operating system process state label (e.g. "R", "S").
	State null.String `json:"state"`

	// UTime is the accumulated user mode CPU time, in clock ticks.
	UTime int64 `json:"utime"`

	// STime is the accumulated kernel mode CPU time, in clock ticks.
	STime int64 `json:"stime"`

	// RChar is the accumulated number of bytes read by the process.
	RChar int64 `json:"rchar"`

	// WChar is the accumulated number of bytes written by the process.
	WChar int64 `json:"wchar"`

	// UserName is the role the session is authenticated as.
	UserName null.String `json:"user_name"`

	// DatabaseName is the database the session is connected to.
	DatabaseName null.String `json:"database_name"`

	// ApplicationName is the client supplied application_name.
	ApplicationName null.String `json:"application_name"`

	// ProcessAge is the age of the backend, in the unit emitted by the view.
	ProcessAge int64 `json:"process_age"`

	// StatementAge is the age of the running statement, in the unit emitted by the view.
	StatementAge null.Int `json:"statement_age"`

	// BlockingPID is the pid this backend is waiting on, if any.
	BlockingPID null.Int `json:"blocking_pid"`

	// LockRelation is the relation the backend is waiting to lock, if any.
	LockRelation null.String `json:"lock_relation"`

	// Query is the submitted SQL text with the request comment prefix removed.
	Query null.String `json:"query"`

	// Epoch is the server clock (seconds since the Unix epoch) at observation time.
	Epoch float64 `json:"epoch"`
}

// HostRef identifies the host a snapshot was taken on.
type HostRef struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// ID returns the registry key of the host, "[address]:port".
func (h HostRef) ID() string {
	return fmt.Sprintf("[%s]:%d", h.Address, h.Port)
}

// HostSnapshot holds every row one host returned in a single cycle.
type HostSnapshot struct {
	Host HostRef       `json:"host"`
	Rows []SnapshotRow `json:"rows"`
}

// Identity uniquely identifies a backend across cycles.
// HostID keeps equal pids on different hosts apart.
type Identity struct {
	HostID string `json:"host_id"`
	PID    int64  `json:"pid"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%d", i.HostID, i.PID)
}
