package enums

// AuditAction names the administrative actions recorded in the audit log.
type AuditAction string

const (
	AuditActionOrderCreated   AuditAction = "order.created"
	AuditActionOrderStatus    AuditAction = "order.status_changed"
	AuditActionOrderCancelled AuditAction = "order.cancelled"
	AuditActionPaymentAdded   AuditAction = "payment.added"
	AuditActionPaymentRefund  AuditAction = "payment.refunded"
	AuditActionGatewayNotify  AuditAction = "payment.gateway_notify"
)
