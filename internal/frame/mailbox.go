package frame

import "sync/atomic"

// Mailbox is a single-slot, latest-frame-wins handoff between one producer
// and any number of consumers. Both directions are a single atomic swap, so
// a consumer never sees a partially published buffer and the producer never
// waits on a consumer.
type Mailbox struct {
	slot atomic.Pointer[Buffer]
}

// Publish stores b and returns the unconsumed buffer it displaced, if any.
// The displaced buffer is no longer reachable from the mailbox.
func (m *Mailbox) Publish(b *Buffer) (displaced *Buffer) {
	return m.slot.Swap(b)
}

// Take removes and returns the current buffer, or nil when empty. Each
// published buffer is returned by at most one Take.
func (m *Mailbox) Take() *Buffer {
	return m.slot.Swap(nil)
}

// Clear drops any unconsumed buffer
func (m *Mailbox) Clear() {
	m.slot.Store(nil)
}

// Pending reports whether a buffer is waiting to be taken
func (m *Mailbox) Pending() bool {
	return m.slot.Load() != nil
}
