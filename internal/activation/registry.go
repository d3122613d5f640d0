package activation

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
)

// ErrNoHandler is returned when no handler accepts a resource kind and step.
var ErrNoHandler = errors.New("no handler")

type handlerKey struct {
	kind model.ResourceKind
	step model.Step
}

// Registry resolves the handler of a resource kind and step.
// It is resolved once when created and is safe for concurrent use.
type Registry struct {
	handlers map[handlerKey]Handler
}

// NewRegistry returns a registry with the handlers. Two handlers accepting the same
// kind and step are an error.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: map[handlerKey]Handler{}}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("nil handler: %w", model.ErrNotValid)
		}
		for _, kind := range model.ResourceKinds() {
			for _, step := range model.Steps() {
				if !h.Accepts(kind, step) {
					continue
				}
				key := handlerKey{kind: kind, step: step}
				if _, ok := r.handlers[key]; ok {
					return nil, fmt.Errorf("more than one handler for %s %s: %w", kind, step, model.ErrAlreadyExists)
				}
				r.handlers[key] = h
			}
		}
	}

	return r, nil
}

// Handler returns the handler for the kind and step.
func (r *Registry) Handler(kind model.ResourceKind, step model.Step) (Handler, error) {
	h, ok := r.handlers[handlerKey{kind: kind, step: step}]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, step, ErrNoHandler)
	}
	return h, nil
}

// Dispatch runs the step of the resource on its handler and returns the handler so
// in progress records can be queried.
func (r *Registry) Dispatch(ctx context.Context, res model.Resource, step model.Step, actx model.ActivationContext) (Handler, *progress.Record, error) {
	h, err := r.Handler(res.Kind, step)
	if err != nil {
		return nil, nil, err
	}

	var rec *progress.Record
	switch step {
	case model.StepActivate:
		rec = h.Activate(ctx, res.ID, actx)
	case model.StepFirstStart:
		rec = h.FirstStart(ctx, res.ID)
	case model.StepStart:
		rec = h.Start(ctx, res.ID)
	case model.StepStop:
		rec = h.Stop(ctx, res.ID)
	case model.StepDelete:
		rec = h.Delete(ctx, res.ID)
	default:
		return nil, nil, fmt.Errorf("unknown step %q: %w", step, model.ErrNotValid)
	}

	return h, rec, nil
}
