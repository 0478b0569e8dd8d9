package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"lukechampine.com/frand"

	"github.com/candleworks/poolstr/pkg/envelopes"
	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
	"github.com/candleworks/poolstr/pkg/hex"
)

// Subscription is one live REQ on one relay. Events stream on Events;
// EndOfStoredEvents closes once when the relay signals EOSE.
type Subscription struct {
	id    string
	relay *T

	Filter *filter.T

	// Events delivers verified, filter matching events. Closed by Unsub.
	Events chan *event.T
	// EndOfStoredEvents closes when stored events are exhausted; live
	// events keep flowing after it.
	EndOfStoredEvents chan struct{}
	// ClosedByRelay closes if the relay terminates the subscription from
	// its side.
	ClosedByRelay chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	live atomic.Bool
	// mu orders event dispatch against the close of Events in Unsub
	mu       sync.RWMutex
	eoseOnce sync.Once
	// closedOnce guards ClosedByRelay; a relay could send CLOSED twice
	closedOnce sync.Once
	unsubOnce  sync.Once
}

// label is random so subscription ids cannot collide across program runs
// even against the same relay.
var label = hex.Enc(frand.Bytes(4))

func (r *T) prepareSubscription(ctx context.Context, f *filter.T) (
	sub *Subscription) {

	ctx, cancel := context.WithCancel(ctx)
	sub = &Subscription{
		id:                fmt.Sprintf("%s:%d", label, r.subCounter.Add(1)),
		relay:             r,
		Filter:            f,
		Events:            make(chan *event.T),
		EndOfStoredEvents: make(chan struct{}),
		ClosedByRelay:     make(chan struct{}),
		ctx:               ctx,
		cancel:            cancel,
	}
	r.subscriptions.Store(sub.id, sub)
	go func() {
		<-ctx.Done()
		sub.Unsub()
	}()
	return
}

// ID returns the wire subscription id.
func (sub *Subscription) ID() string { return sub.id }

// Relay returns the owning relay.
func (sub *Subscription) Relay() *T { return sub.relay }

// fire sends the REQ. Also used to replay the subscription after a
// reconnect.
func (sub *Subscription) fire() (err error) {
	var msg []byte
	if msg, err = envelopes.ReqMessage(sub.id, sub.Filter); chk.E(err) {
		return
	}
	sub.live.Store(true)
	if err = <-sub.relay.write(sub.ctx, msg); err != nil {
		sub.live.Store(false)
		return fmt.Errorf("failed to write REQ: %w", err)
	}
	return
}

// Unsub sends CLOSE to the relay, removes the subscription and closes its
// Events channel. Safe to call any number of times from any goroutine.
func (sub *Subscription) Unsub() {
	sub.unsubOnce.Do(func() {
		wasLive := sub.live.Swap(false)
		sub.relay.subscriptions.Delete(sub.id)
		// cancelling first unblocks any dispatch stuck sending on Events,
		// so the lock below cannot deadlock
		sub.cancel()
		if wasLive && sub.relay.IsConnected() {
			if msg, err := envelopes.CloseMessage(sub.id); !chk.E(err) {
				// best effort, off the caller's path: sub.ctx is already
				// cancelled and the relay may be mid reconnect
				go func() { <-sub.relay.write(sub.relay.ctx, msg) }()
			}
		}
		sub.mu.Lock()
		close(sub.Events)
		sub.mu.Unlock()
	})
}

func (sub *Subscription) dispatchEvent(ev *event.T) {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if !sub.live.Load() {
		return
	}
	select {
	case sub.Events <- ev:
	case <-sub.ctx.Done():
	}
}

func (sub *Subscription) dispatchEose() {
	sub.eoseOnce.Do(func() {
		close(sub.EndOfStoredEvents)
	})
}

func (sub *Subscription) dispatchClosed() {
	sub.closedOnce.Do(func() {
		close(sub.ClosedByRelay)
	})
	sub.Unsub()
}
