package bridge

import "time"

// defaultReconnectDelay is the fixed wait before redialling the room.
const defaultReconnectDelay = 5 * time.Second

// afterFunc schedules f after d and returns a function that cancels it.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// reconnectTimer holds at most one pending redial. Event loop only.
//
// seq changes on every schedule and cancel, so a timer that fired before
// being cancelled is recognised as stale when its event arrives.
type reconnectTimer struct {
	after afterFunc
	delay time.Duration
	stop  func() bool
	seq   uint64
}

// schedule cancels any pending redial and arms a new one. fire receives
// the sequence number to hand back to due.
func (t *reconnectTimer) schedule(fire func(seq uint64)) {
	t.cancel()
	seq := t.seq
	t.stop = t.after(t.delay, func() { fire(seq) })
}

// cancel drops the pending redial, if any.
func (t *reconnectTimer) cancel() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.seq++
}

// due reports whether seq belongs to the pending redial, clearing it.
func (t *reconnectTimer) due(seq uint64) bool {
	if t.stop == nil || seq != t.seq {
		return false
	}
	t.stop = nil
	return true
}

func (t *reconnectTimer) pending() bool {
	return t.stop != nil
}
