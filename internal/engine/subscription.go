package engine

import (
	"sync"
	"sync/atomic"

	"github.com/kavach/opsengine/pkg/core"
)

// Subscription receives the snapshots and alerts of one site.
//
// Snapshots are delivered on a bounded channel; when the subscriber falls
// behind the oldest buffered snapshot is discarded, so a reader always
// catches up to the latest state in sequence order. Alerts are delivered on
// a separate bounded channel and new alerts are dropped when it is full.
// Neither path ever blocks the publishing tick.
type Subscription struct {
	id        string
	site      *site
	snapshots chan core.OperationalSnapshot
	alerts    chan core.Alert
	once      sync.Once

	droppedSnapshots atomic.Uint64
	droppedAlerts    atomic.Uint64
}

func newSubscription(id string, s *site, snapshotBuffer, alertBuffer int) *Subscription {
	return &Subscription{
		id:        id,
		site:      s,
		snapshots: make(chan core.OperationalSnapshot, snapshotBuffer),
		alerts:    make(chan core.Alert, alertBuffer),
	}
}

// ID returns the unique subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// SiteID returns the site this subscription is attached to.
func (s *Subscription) SiteID() string {
	return s.site.id
}

// Snapshots returns the snapshot stream. It is closed by Close or when the engine closes.
func (s *Subscription) Snapshots() <-chan core.OperationalSnapshot {
	return s.snapshots
}

// Alerts returns the alert stream. It is closed by Close or when the engine closes.
func (s *Subscription) Alerts() <-chan core.Alert {
	return s.alerts
}

// Dropped returns how many snapshots and alerts were discarded for this subscriber.
func (s *Subscription) Dropped() (snapshots, alerts uint64) {
	return s.droppedSnapshots.Load(), s.droppedAlerts.Load()
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.site.unsubscribe(s.id)
	})
}

// deliver must be called with the site lock held; the site is the only sender.
func (s *Subscription) deliver(snap core.OperationalSnapshot, alerts []core.Alert) (droppedSnapshots, droppedAlerts int) {
	for sent := false; !sent; {
		select {
		case s.snapshots <- snap:
			sent = true
		default:
			// full: make room by discarding the oldest
			select {
			case <-s.snapshots:
				droppedSnapshots++
				s.droppedSnapshots.Add(1)
			default:
			}
		}
	}

	for _, a := range alerts {
		select {
		case s.alerts <- a:
		default:
			droppedAlerts++
			s.droppedAlerts.Add(1)
		}
	}
	return droppedSnapshots, droppedAlerts
}

// closeChannels must be called with the site lock held.
func (s *Subscription) closeChannels() {
	close(s.snapshots)
	close(s.alerts)
}
