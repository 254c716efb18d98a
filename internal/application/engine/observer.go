package engine

import (
	"context"

	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

// Observers fans a step event out to several observers in order
type Observers []ports.Observer

// OnStepEvent delivers the event to every non-nil observer
func (o Observers) OnStepEvent(ctx context.Context, event domain.StepEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStepEvent(ctx, event)
		}
	}
}

// ObserverFunc adapts a function to the ports.Observer interface
type ObserverFunc func(ctx context.Context, event domain.StepEvent)

// OnStepEvent calls f(ctx, event)
func (f ObserverFunc) OnStepEvent(ctx context.Context, event domain.StepEvent) {
	f(ctx, event)
}
