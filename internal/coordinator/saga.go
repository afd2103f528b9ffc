package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/storefront-integrity/internal/coordinator/sagalog"
)

var tracer = otel.Tracer("github.com/jcmexdev/storefront-integrity/internal/coordinator")

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Orchestrator manages the execution of a collection of Steps.
type Orchestrator struct {
	sagaID string
	steps  []Step
	log    sagalog.Repository // nil-safe
}

func NewOrchestrator(sagaID string, steps []Step, log sagalog.Repository) *Orchestrator {
	return &Orchestrator{sagaID: sagaID, steps: steps, log: log}
}

// Start runs the saga steps sequentially.
// If a step fails, it triggers the compensation of all previously successful
// steps and returns the step error.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "saga.start")
	span.SetAttributes(attribute.String("saga.id", o.sagaID), attribute.Int("saga.steps", len(o.steps)))
	defer span.End()

	o.record(ctx, sagalog.StatusStarted, "", nil)

	var successfulSteps []Step

	for _, step := range o.steps {
		slog.DebugContext(ctx, "executing step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Execute(ctx); err != nil {
			slog.WarnContext(ctx, "step failed, starting rollback",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Name())

			errs := []string{fmt.Sprintf("step %s failed: %v", step.Name(), err)}
			o.record(ctx, sagalog.StatusCompensating, step.Name(), errs)
			errs = append(errs, o.rollback(ctx, successfulSteps)...)
			o.record(ctx, sagalog.StatusFailed, step.Name(), errs)
			return err
		}
		// Track successful step for potential compensation (LIFO)
		successfulSteps = append(successfulSteps, step)
		o.record(ctx, sagalog.StatusStepDone, step.Name(), nil)
	}

	o.record(ctx, sagalog.StatusCompleted, "", nil)
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) []string {
	var errs []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		slog.InfoContext(ctx, "compensating step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to compensate step",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("compensation of %s failed: %v", step.Name(), err))
		}
	}
	return errs
}

func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step string, errs []string) {
	if o.log == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, "", errs)
	if err := o.log.Save(ctx, entry); err != nil {
		slog.WarnContext(ctx, "saga log write failed", "saga_id", o.sagaID, "status", status, "error", err)
	}
}
