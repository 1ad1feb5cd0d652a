package orders

const (
	TopicOrderPlaced      = "order.placed"
	TopicPaymentInitiated = "order.payment.initiated"
	TopicPaymentStatus    = "order.payment.status"
)

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
