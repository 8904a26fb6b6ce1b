package ai

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-builder/journal"
	"github.com/nstehr/vimy/vimy-builder/metrics"
	"github.com/nstehr/vimy/vimy-builder/queue"
	"github.com/nstehr/vimy/vimy-builder/world"
)

// OrderSink receives every order that leaves the queue.
type OrderSink interface {
	Record(rec journal.OrderRecord) bool
}

type orderObserver struct {
	queue *queue.Queue
	sink  OrderSink
	now   func() int
}

func (o *orderObserver) OrderAdded(ord queue.Order) {
	metrics.RecordOrderAdded(ord.Kind.String())
	metrics.RecordQueueLength(o.queue.Len())
}

func (o *orderObserver) OrderRemoved(ord queue.Order, reason queue.Reason) {
	metrics.RecordOrderRemoved(ord.Kind.String(), string(reason))
	metrics.RecordQueueLength(o.queue.Len())
	if o.sink == nil {
		return
	}
	o.sink.Record(journal.OrderRecord{
		UnitType:  ord.Def.Name,
		Kind:      ord.Kind.String(),
		List:      ord.List,
		Reason:    string(reason),
		Retries:   ord.Retries,
		Builder:   ord.Builder,
		QueuedAt:  ord.Created,
		RemovedAt: o.now(),
	})
}

type metricsDispatcher struct {
	next world.Dispatcher
}

func (d metricsDispatcher) Dispatch(cmd world.Command) error {
	if err := d.next.Dispatch(cmd); err != nil {
		return fmt.Errorf("%w: %w", world.ErrDispatch, err)
	}
	metrics.RecordCommand(string(cmd.Kind))
	return nil
}
