// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	FieldEvent     = "event"
	FieldComponent = "component"

	// Listener / endpoint fields
	FieldEndpoint = "endpoint"
	FieldAddr     = "addr"
	FieldPath     = "path"
	FieldFD       = "fd"
	FieldBacklog  = "backlog"

	// Worker fields
	FieldWorkerID = "worker_id"
	FieldThreads  = "threads"
	FieldCPU      = "cpu"
	FieldCPUSet   = "cpu_set"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
