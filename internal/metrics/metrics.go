// Package metrics records order lifecycle counters in a Prometheus registry
// and exports them for the node exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hay-kot/pickup/internal/core/eventbus"
)

const namespace = "pickup"

// Recorder owns a registry with the pickup counters. Lifecycle counters are
// fed from bus events; cart mutations and remote errors are reported by
// the service directly.
type Recorder struct {
	reg *prometheus.Registry

	ordersPlaced      prometheus.Counter
	ordersUpdated     prometheus.Counter
	ordersCancelled   prometheus.Counter
	ordersLocked      prometheus.Counter
	orderValue        prometheus.Histogram
	conflictsDetected prometheus.Counter
	conflictsResolved *prometheus.CounterVec
	draftsSaved       prometheus.Counter
	cartMutations     *prometheus.CounterVec
	remoteErrors      *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec

	cancels []func()
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_placed_total",
			Help: "Orders placed through checkout.",
		}),
		ordersUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_updated_total",
			Help: "Edits written back to placed orders.",
		}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_cancelled_total",
			Help: "Orders cancelled by buyers.",
		}),
		ordersLocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_locked_total",
			Help: "Orders locked after their edit deadline.",
		}),
		orderValue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "order_value_minor",
			Help:    "Order totals at checkout in minor currency units.",
			Buckets: prometheus.ExponentialBuckets(500, 2, 10),
		}),
		conflictsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "conflicts_detected_total",
			Help: "Saved carts found diverging from their remote order.",
		}),
		conflictsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "conflicts_resolved_total",
			Help: "Conflicts merged, by policy.",
		}, []string{"policy"}),
		draftsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "drafts_saved_total",
			Help: "Cart snapshots persisted locally.",
		}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cart_mutations_total",
			Help: "Cart mutations by operation and outcome.",
		}, []string{"op", "result"}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "remote_errors_total",
			Help: "Failed order store calls by operation.",
		}, []string{"op"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Bus events dropped because the buffer was full.",
		}, []string{"event"}),
	}

	r.reg.MustRegister(
		r.ordersPlaced, r.ordersUpdated, r.ordersCancelled, r.ordersLocked,
		r.orderValue, r.conflictsDetected, r.conflictsResolved, r.draftsSaved,
		r.cartMutations, r.remoteErrors, r.eventsDropped,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Register subscribes the recorder to bus.
func (r *Recorder) Register(bus *eventbus.EventBus) {
	if r == nil || bus == nil {
		return
	}

	bus.OnDrop(func(event eventbus.Event, _ any) {
		r.eventsDropped.WithLabelValues(string(event)).Inc()
	})

	r.cancels = append(r.cancels,
		bus.SubscribeOrderPlaced(func(p eventbus.OrderPlacedPayload) {
			r.ordersPlaced.Inc()
			r.orderValue.Observe(float64(p.Order.Total()))
		}),
		bus.SubscribeOrderUpdated(func(eventbus.OrderUpdatedPayload) { r.ordersUpdated.Inc() }),
		bus.SubscribeOrderCancelled(func(eventbus.OrderCancelledPayload) { r.ordersCancelled.Inc() }),
		bus.SubscribeOrderLocked(func(eventbus.OrderLockedPayload) { r.ordersLocked.Inc() }),
		bus.SubscribeDraftSaved(func(eventbus.DraftSavedPayload) { r.draftsSaved.Inc() }),
		bus.SubscribeConflictDetected(func(eventbus.ConflictDetectedPayload) { r.conflictsDetected.Inc() }),
		bus.SubscribeConflictResolved(func(p eventbus.ConflictResolvedPayload) {
			r.conflictsResolved.WithLabelValues(p.Policy).Inc()
		}),
	)
}

// Close removes the recorder's bus subscriptions.
func (r *Recorder) Close() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}

// CartMutation counts a cart mutation; err decides the result label.
func (r *Recorder) CartMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	r.cartMutations.WithLabelValues(op, result).Inc()
}

// RemoteError counts a failed order store call.
func (r *Recorder) RemoteError(op string) {
	r.remoteErrors.WithLabelValues(op).Inc()
}

// WriteTextfile writes the registry to path atomically in the text
// exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
