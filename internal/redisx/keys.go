package redisx

import "time"

const (
	// Idempotency for quick sales: idem:quicksale:{request_id} -> order_id
	KeyIdemQuickSale = "idem:quicksale:%s"

	// Cache of an order's status: order_status:{order_id} -> OPEN | CLOSED
	KeyOrderStatus = "order_status:%d"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
