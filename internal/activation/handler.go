package activation

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
)

// Record payload keys set by the handlers.
const (
	PayloadJob         = "job"
	PayloadProvider    = "provider"
	PayloadTargetState = "target_state"
	PayloadResource    = "resource"
	PayloadStep        = "step"
)

// Handler drives the lifecycle of a resource kind on its provider.
//
// Lifecycle operations never return errors, failures are returned as failed records.
// The returned record is either complete or in progress, in progress records are
// completed by calling QueryStatus until complete.
type Handler interface {
	Accepts(kind model.ResourceKind, step model.Step) bool
	Activate(ctx context.Context, resourceID string, actx model.ActivationContext) *progress.Record
	FirstStart(ctx context.Context, resourceID string) *progress.Record
	Start(ctx context.Context, resourceID string) *progress.Record
	Stop(ctx context.Context, resourceID string) *progress.Record
	Delete(ctx context.Context, resourceID string) *progress.Record
	// QueryStatus returns a refreshed copy of an in progress record.
	QueryStatus(ctx context.Context, rec *progress.Record) (*progress.Record, error)
}

func newRecordID() string { return ulid.Make().String() }

// stepVerb is the verb used on user messages for a step.
func stepVerb(step model.Step) string {
	switch step {
	case model.StepActivate:
		return "activate"
	case model.StepFirstStart, model.StepStart:
		return "start"
	case model.StepStop:
		return "stop"
	case model.StepDelete:
		return "delete"
	}
	return strings.ToLower(string(step))
}

// stepPastVerb is the past participle used on user messages for a step.
func stepPastVerb(step model.Step) string {
	switch step {
	case model.StepActivate:
		return "activated"
	case model.StepFirstStart, model.StepStart:
		return "started"
	case model.StepStop:
		return "stopped"
	case model.StepDelete:
		return "deleted"
	}
	return strings.ToLower(string(step))
}

// failure returns a failed record for a step, the message is prefixed with what was being done.
func failure(step model.Step, displayName string, err error) *progress.Record {
	msg := fmt.Sprintf("Unable to %s %s. %s", stepVerb(step), displayName, err)
	return progress.Failed(newRecordID(), fmt.Sprintf("%s %s", displayName, stepVerb(step)), msg)
}

// nothingToDo returns a succeeded record for steps that don't apply.
func nothingToDo(title string) *progress.Record {
	return progress.Succeeded(newRecordID(), title+": nothing to do")
}

func acceptsStep(steps []model.Step, step model.Step) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

// deletable returns true when a resource may exist on its provider.
func deletable(res model.Resource) bool {
	return res.IsActivated() || res.IsUnknown()
}

func contractViolation(msg string) error {
	return fmt.Errorf("%s: %w: %w", msg, model.ErrFatal, model.ErrContractViolation)
}
