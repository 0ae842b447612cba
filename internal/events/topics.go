package events

// Topic constants for domain events emitted by the ledger.
const (
	TopicSaleCreated        = "sale.created"
	TopicPaymentRecorded    = "payment.recorded"
	TopicSaleCompleted      = "sale.completed"
	TopicCommissionRecorded = "commission.recorded"
	TopicCommissionPaid     = "commission.paid"
)

// DefaultTopics returns the canonical list of published topics.
func DefaultTopics() []string {
	return []string{
		TopicSaleCreated,
		TopicPaymentRecorded,
		TopicSaleCompleted,
		TopicCommissionRecorded,
		TopicCommissionPaid,
	}
}
