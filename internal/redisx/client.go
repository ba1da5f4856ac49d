package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr})
	return r.WithTimeout(2 * time.Second)
}

// ClaimQuickSale atomically claims a quick-sale request id. It returns
// (0, true) when this caller won the claim, or the previously stored order id
// when a sale with the same request id already went through. A nil client
// claims unconditionally, so idempotency degrades gracefully without Redis.
func ClaimQuickSale(ctx context.Context, rdb *redis.Client, requestID string) (int64, bool, error) {
	if rdb == nil {
		return 0, true, nil
	}
	key := fmt.Sprintf(KeyIdemQuickSale, requestID)
	ok, err := rdb.SetNX(ctx, key, 0, TTLIdempotency).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim quick sale %s: %w", requestID, err)
	}
	if ok {
		return 0, true, nil
	}
	orderID, err := rdb.Get(ctx, key).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read claimed quick sale %s: %w", requestID, err)
	}
	return orderID, false, nil
}

// RecordQuickSale stores the order id under the claimed request id.
func RecordQuickSale(ctx context.Context, rdb *redis.Client, requestID string, orderID int64) error {
	if rdb == nil {
		return nil
	}
	key := fmt.Sprintf(KeyIdemQuickSale, requestID)
	return rdb.Set(ctx, key, orderID, TTLIdempotency).Err()
}

// ReleaseQuickSale drops a claim after the sale failed, so the client can retry.
func ReleaseQuickSale(ctx context.Context, rdb *redis.Client, requestID string) {
	if rdb == nil {
		return
	}
	rdb.Del(ctx, fmt.Sprintf(KeyIdemQuickSale, requestID))
}

// CacheOrderStatus caches an order's status for cheap polling.
func CacheOrderStatus(ctx context.Context, rdb *redis.Client, orderID int64, status string) {
	if rdb == nil {
		return
	}
	rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), status, TTLStatusCache)
}
