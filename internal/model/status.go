package model

import "time"

// Host is one monitored database server together with its usable connection budget.
type Host struct {
	HostRef

	// Primary is set for the host pgtop was pointed at.
	Primary bool `json:"primary"`

	// MaxConnections is max_connections minus superuser_reserved_connections,
	// computed once per connection cycle.
	MaxConnections int `json:"max_connections"`
}

// HostStatus is the per-host part of a Status.
type HostStatus struct {
	Host     Host `json:"host"`
	Sessions int  `json:"sessions"`
}

// Status is a read-only copy of the last completed monitoring cycle.
type Status struct {
	// Connected is true while the current connection cycle is healthy.
	Connected bool `json:"connected"`

	// Cycles counts the cycles rendered since startup.
	Cycles int64 `json:"cycles"`

	// Reconnects counts the connection cycles started since startup.
	Reconnects int64 `json:"reconnects"`

	// UpdatedAt is when the last cycle completed.
	UpdatedAt time.Time `json:"updated_at"`

	// LastError holds the error that ended the previous connection cycle, if any.
	LastError string `json:"last_error,omitempty"`

	Hosts   []HostStatus    `json:"hosts"`
	Records []ProcessRecord `json:"-"`
	Alerts  []AlertEvent    `json:"alerts"`
}

// CountAlerts returns the number of events of the given kind.
func (s Status) CountAlerts(kind AlertKind) int {
	n := 0
	for _, a := range s.Alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
