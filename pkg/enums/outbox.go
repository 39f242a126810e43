package enums

// OutboxEventType names the domain events written to the outbox table.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderStatusChanged OutboxEventType = "order.status_changed"
	EventOrderCancelled     OutboxEventType = "order.cancelled"
	EventPaymentRecorded    OutboxEventType = "payment.recorded"
	EventPaymentRefunded    OutboxEventType = "payment.refunded"
	EventPaymentFailed      OutboxEventType = "payment.failed"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)
