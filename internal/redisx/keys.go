package redisx

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// order_status:{order_number} -> orders.StatusView JSON
	KeyOrderStatus = "order_status:%s"

	// dedup:{scope}:{id}; settlement uses rail:txid:outcome, the worker uses event ids
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func StatusCache(rdb redis.Cmdable) JSONStore {
	return JSONStore{RDB: rdb, Pattern: KeyOrderStatus, TTL: TTLStatusCache}
}

// Dedup returns the mark store for one consumer scope.
func Dedup(rdb redis.Cmdable, scope string) JSONStore {
	return JSONStore{RDB: rdb, Pattern: fmt.Sprintf(KeyDedup, scope, "%s"), TTL: TTLDedup}
}
