// Package sagalog records every step of a stock transition saga.
//
// One saga runs per order status update that moves stock. Each row is an
// immutable event; the newest row per saga_id is its current state. The log
// is what an operator reads when a compensation failed and stock has to be
// fixed by hand, and trace_id joins a row to the distributed trace.
package sagalog

import "time"

// Status represents the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// SagaLog is a single row in the saga_logs table.
type SagaLog struct {
	// SagaID identifies one transition attempt, "<order id>:<from>-><to>".
	SagaID string

	Status Status

	// CurrentStep is the step that just executed or failed.
	CurrentStep string

	// Payload is optional JSON input, stored on STARTED rows only.
	Payload string

	// ErrorMessages is a JSON array, one entry per failed step or compensation.
	ErrorMessages string

	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
