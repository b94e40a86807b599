// Copyright 2024 Canonical Ltd.
// See LICENSE file for licensing details.

// Package status holds the workload status values a charm is allowed to
// report through the status-set hook tool.
package status

// Status represents a unit workload status value.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

const (
	// Active is set when the unit believes it is correctly offering all
	// the services it has been asked to offer.
	Active Status = "active"

	// Blocked is set when the unit needs manual intervention to get back
	// to the Active state, for example a missing integration or an
	// invalid configuration value.
	Blocked Status = "blocked"

	// Maintenance is set when the unit is performing an operation that
	// makes it temporarily unavailable.
	Maintenance Status = "maintenance"

	// Waiting is set when the unit is unable to progress because an
	// integration it depends on is not ready.
	Waiting Status = "waiting"

	// Error is never set by the charm itself; Juju reports it when a
	// hook has failed. It is part of the vocabulary so callers can
	// recognise it when reading status back.
	Error Status = "error"
)

// KnownWorkloadStatus reports whether status is a value a charm may pass
// to status-set.
func KnownWorkloadStatus(status Status) bool {
	switch status {
	case Active, Blocked, Maintenance, Waiting:
		return true
	}
	return false
}
