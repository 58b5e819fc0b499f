package eventbus

import (
	"fmt"
	"strings"
)

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
)

// NoticeRouter turns domain events into user-facing notices.
type NoticeRouter struct {
	bus     *EventBus
	cancels []func()
}

// NewNoticeRouter constructs a router for bus.
func NewNoticeRouter(bus *EventBus) *NoticeRouter {
	return &NoticeRouter{bus: bus}
}

// Register subscribes all event mappings.
func (r *NoticeRouter) Register() {
	if r == nil || r.bus == nil {
		return
	}

	r.cancels = append(r.cancels,
		r.bus.SubscribeOrderPlaced(func(p OrderPlacedPayload) {
			r.noticef(NoticeInfo, "order %s placed for %s", p.Order.ID, p.Order.PickupAt.Format("Mon Jan 2"))
		}),
		r.bus.SubscribeOrderCancelled(func(p OrderCancelledPayload) {
			r.noticef(NoticeInfo, "order %s cancelled", p.OrderID)
		}),
		r.bus.SubscribeOrderLocked(func(p OrderLockedPayload) {
			r.noticef(NoticeWarning, "order %s locked: edit deadline passed", p.Order.ID)
		}),
		r.bus.SubscribeConflictDetected(func(p ConflictDetectedPayload) {
			if p.Conflict == nil {
				return
			}
			r.noticef(NoticeWarning, "saved cart differs from order %s (%s); run resolve",
				p.Conflict.Remote.ID, strings.Join(p.Conflict.ProductIDs(), ", "))
		}),
	)
}

// Close removes the router's subscriptions.
func (r *NoticeRouter) Close() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}

func (r *NoticeRouter) noticef(level NoticeLevel, format string, args ...any) {
	r.bus.PublishNoticePublished(NoticePublishedPayload{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}
