package identity

import (
	"sync"
	"time"
)

// ThrottledNotifier drops messages repeated within Interval of the last one
// shown, so several resolvers sharing a page raise one notice.
type ThrottledNotifier struct {
	next     Notifier
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottledNotifier(next Notifier, interval time.Duration) *ThrottledNotifier {
	return &ThrottledNotifier{
		next:     next,
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

func (n *ThrottledNotifier) Notify(message string) {
	n.mu.Lock()
	now := n.now()
	if last, ok := n.last[message]; ok && now.Sub(last) < n.interval {
		n.mu.Unlock()
		return
	}
	n.last[message] = now
	n.mu.Unlock()

	n.next.Notify(message)
}
