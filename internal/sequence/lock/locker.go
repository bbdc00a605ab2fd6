package lock

import (
	"context"
	"errors"
	"time"
)

var ErrTimeout = errors.New("lock_timeout")

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Locker serialises work on a single key. There is no global lock: callers
// for different keys never wait on each other.
type Locker interface {
	Lock(ctx context.Context, key string, timeout time.Duration) (Unlock, error)
}
