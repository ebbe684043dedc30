package testutil

import (
	"sync"

	"github.com/alecgard/taskforge/internal/activity"
)

// Published collects activity delivered by a bus.
type Published struct {
	mu   sync.Mutex
	acts []*activity.Activity
}

func (p *Published) add(a *activity.Activity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acts = append(p.acts, a)
}

// All returns the activity received so far, in delivery order.
func (p *Published) All() []*activity.Activity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*activity.Activity(nil), p.acts...)
}

// Len returns the number of deliveries.
func (p *Published) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.acts)
}
