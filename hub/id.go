package hub

import "sync/atomic"

var lastID int64

// NextID returns a process-unique, monotonically increasing connection id.
func NextID() int64 {
	return atomic.AddInt64(&lastID, 1)
}
