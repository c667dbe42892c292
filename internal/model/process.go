package model

// LoopStats are the per-cycle rates derived from two consecutive snapshots of the same identity.
type LoopStats struct {
	// CPUUser is the user mode CPU rate as a fraction of one core.
	CPUUser float64 `json:"cpu_user"`

	// CPUSystem is the kernel mode CPU rate as a fraction of one core.
	CPUSystem float64 `json:"cpu_system"`

	// IORead is the read rate in bytes per second.
	IORead float64 `json:"io_read"`

	// IOWrite is the write rate in bytes per second.
	IOWrite float64 `json:"io_write"`
}

// CPU returns the combined user and system CPU rate.
func (s LoopStats) CPU() float64 {
	return s.CPUUser + s.CPUSystem
}

// IO returns the combined read and write rate.
func (s LoopStats) IO() float64 {
	return s.IORead + s.IOWrite
}

// ProcessRecord is the merged view of one backend for the current cycle.
type ProcessRecord struct {
	// Host is the host the backend runs on.
	Host HostRef `json:"host"`

	// Current is the row observed this cycle.
	Current SnapshotRow `json:"current"`

	// Previous is the row observed for the same identity in the previous cycle,
	// or nil when the identity is seen for the first time.
	Previous *SnapshotRow `json:"-"`

	// Stats holds the derived rates; zero when Previous is nil.
	Stats LoopStats `json:"stats"`

	// Highlight is the display mode assigned by the classifier.
	Highlight Highlight `json:"highlight"`
}

// Identity returns the (host, pid) identity of the record.
func (r *ProcessRecord) Identity() Identity {
	return Identity{HostID: r.Host.ID(), PID: r.Current.PID}
}
