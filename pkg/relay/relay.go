// Package relay maintains one websocket connection to a relay server: a
// serialized write queue, a read loop dispatching inbound envelopes to
// subscriptions and publish callbacks, and a reconnect loop with capped
// exponential backoff.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/puzpuzpuz/xsync/v2"

	"github.com/candleworks/poolstr/pkg/envelopes"
	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
	"github.com/candleworks/poolstr/pkg/normalize"
	"github.com/candleworks/poolstr/pkg/slog"
)

var log, chk = slog.GetStd()

// Status is the connection state machine position of a relay.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
	Backoff
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	}
	return "unknown"
}

// PublishStatus is one relay's verdict on a published event.
type PublishStatus int

const (
	// PublishSent means the event was written but the relay gave no verdict
	// within the wait bound. A non-ack, not an error.
	PublishSent PublishStatus = iota
	// PublishSucceeded means the relay acknowledged acceptance.
	PublishSucceeded
	// PublishFailed means the relay rejected the event.
	PublishFailed
)

func (s PublishStatus) String() string {
	switch s {
	case PublishSent:
		return "no response"
	case PublishSucceeded:
		return "accepted"
	case PublishFailed:
		return "rejected"
	}
	return "unknown"
}

const (
	defaultPingInterval   = 29 * time.Second
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultHealthyWindow  = time.Minute
	defaultConnectTimeout = 7 * time.Second
)

type writeRequest struct {
	msg    []byte
	answer chan error
}

// T is one relay connection. All socket writes go through the connection
// goroutine's queue, so concurrent callers never race on the websocket.
type T struct {
	Config Config

	ctx    context.Context
	cancel context.CancelFunc

	state          atomic.Int32
	subscriptions  *xsync.MapOf[string, *Subscription]
	okCallbacks    *xsync.MapOf[string, func(ok bool, reason string)]
	writeQueue     chan writeRequest
	subCounter     atomic.Int64
	invalidDropped atomic.Int64

	pingInterval   time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	healthyWindow  time.Duration

	noticeHandler func(string)
}

// Option configures a relay connection.
type Option func(*T)

// WithNoticeHandler replaces the default handler (logging) for NOTICE
// messages from the relay.
func WithNoticeHandler(h func(notice string)) Option {
	return func(r *T) { r.noticeHandler = h }
}

// WithBackoff overrides the reconnect delay bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(r *T) {
		r.initialBackoff = initial
		r.maxBackoff = max
	}
}

// WithHealthyWindow sets how long a connection must survive before the
// backoff delay resets to its base value.
func WithHealthyWindow(d time.Duration) Option {
	return func(r *T) { r.healthyWindow = d }
}

// WithPingInterval sets the keepalive ping period.
func WithPingInterval(d time.Duration) Option {
	return func(r *T) { r.pingInterval = d }
}

// New creates a relay for the given config. The URL is normalized. Start
// begins connecting; Close tears everything down.
func New(ctx context.Context, cfg Config, opts ...Option) (r *T) {
	cfg.URL = normalize.URL(cfg.URL)
	ctx, cancel := context.WithCancel(ctx)
	r = &T{
		Config:         cfg,
		ctx:            ctx,
		cancel:         cancel,
		subscriptions:  xsync.NewMapOf[*Subscription](),
		okCallbacks:    xsync.NewMapOf[func(bool, string)](),
		writeQueue:     make(chan writeRequest),
		pingInterval:   defaultPingInterval,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		healthyWindow:  defaultHealthyWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return
}

// URL returns the normalized relay URL.
func (r *T) URL() string { return r.Config.URL }

func (r *T) String() string { return r.Config.URL }

// Status returns the current connection state.
func (r *T) Status() Status { return Status(r.state.Load()) }

// IsConnected reports whether the websocket is currently established.
func (r *T) IsConnected() bool { return r.Status() == Connected }

// InvalidDropped returns how many inbound events failed verification and
// were discarded on this connection.
func (r *T) InvalidDropped() int64 { return r.invalidDropped.Load() }

func (r *T) setState(s Status) { r.state.Store(int32(s)) }

// Start launches the connect/reconnect loop. It returns immediately; use
// Status to observe progress.
func (r *T) Start() {
	go r.run()
}

// Close disconnects and cancels every subscription on this relay. It is
// the only exit from the reconnect loop.
func (r *T) Close() {
	r.cancel()
}

func (r *T) run() {
	defer func() {
		r.setState(Disconnected)
		r.subscriptions.Range(func(_ string, sub *Subscription) bool {
			sub.Unsub()
			return true
		})
	}()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initialBackoff
	bo.MaxInterval = r.maxBackoff
	bo.MaxElapsedTime = 0
	for {
		r.setState(Connecting)
		dialCtx, dialCancel := context.WithTimeout(r.ctx, defaultConnectTimeout)
		conn, err := dial(dialCtx, r.Config.URL)
		dialCancel()
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			log.D.F("{%s} connect failed: %v", r.Config.URL, err)
			if !r.waitBackoff(bo.NextBackOff()) {
				return
			}
			continue
		}
		r.setState(Connected)
		log.D.F("{%s} connected", r.Config.URL)
		connectedAt := time.Now()
		// in a goroutine: the REQ writes it queues are consumed by the
		// serve pump below
		go r.resubscribe()
		r.serve(conn)
		if r.ctx.Err() != nil {
			return
		}
		// a connection that held for the healthy window earns a fresh
		// backoff schedule
		if time.Since(connectedAt) >= r.healthyWindow {
			bo.Reset()
		}
		if !r.waitBackoff(bo.NextBackOff()) {
			return
		}
	}
}

func (r *T) waitBackoff(d time.Duration) bool {
	r.setState(Backoff)
	select {
	case <-time.After(d):
		return true
	case <-r.ctx.Done():
		return false
	}
}

// serve pumps one established connection until it fails or the relay is
// closed.
func (r *T) serve(conn *connection) {
	defer conn.close()
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := new(bytes.Buffer)
		for {
			buf.Reset()
			if err := conn.readMessage(r.ctx, buf); err != nil {
				if r.ctx.Err() == nil {
					log.D.F("{%s} read error: %v", r.Config.URL, err)
				}
				return
			}
			r.handleMessage(buf.Bytes())
		}
	}()
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); chk.D(err) {
				conn.close()
				<-readDone
				return
			}
		case wr := <-r.writeQueue:
			if err := conn.writeMessage(wr.msg); err != nil {
				wr.answer <- err
				close(wr.answer)
				conn.close()
				<-readDone
				return
			}
			close(wr.answer)
		case <-readDone:
			return
		case <-r.ctx.Done():
			conn.close()
			<-readDone
			return
		}
	}
}

func (r *T) handleMessage(msg []byte) {
	log.T.F("{%s} received %.200s", r.Config.URL, msg)
	env, err := envelopes.Parse(msg)
	if err != nil {
		log.D.F("{%s} unparseable message: %v", r.Config.URL, err)
		return
	}
	switch e := env.(type) {
	case *envelopes.Event:
		sub, ok := r.subscriptions.Load(e.SubscriptionID)
		if !ok {
			log.D.F("{%s} no subscription with id '%s'", r.Config.URL,
				e.SubscriptionID)
			return
		}
		// recheck the filter so a misbehaving relay cannot slip in events
		// the subscription never asked for
		if !sub.Filter.Matches(e.Event) {
			log.D.F("{%s} event %s does not match subscription filter",
				r.Config.URL, e.Event.ID)
			return
		}
		// integrity check before anything downstream sees the event
		if err = e.Event.Verify(); err != nil {
			r.invalidDropped.Add(1)
			log.D.F("{%s} dropping event %s: %v", r.Config.URL,
				e.Event.ID, err)
			return
		}
		sub.dispatchEvent(e.Event)
	case *envelopes.Eose:
		if sub, ok := r.subscriptions.Load(e.SubscriptionID); ok {
			sub.dispatchEose()
		}
	case *envelopes.OK:
		if cb, ok := r.okCallbacks.Load(e.EventID); ok {
			cb(e.OK, e.Reason)
		}
	case *envelopes.Notice:
		if r.noticeHandler != nil {
			r.noticeHandler(e.Text)
		} else {
			log.I.F("{%s} NOTICE: %s", r.Config.URL, e.Text)
		}
	case *envelopes.Closed:
		if sub, ok := r.subscriptions.Load(e.SubscriptionID); ok {
			log.D.F("{%s} subscription %s closed by relay: %s",
				r.Config.URL, e.SubscriptionID, e.Reason)
			sub.dispatchClosed()
		}
	}
}

// resubscribe refires every live subscription after a reconnect. Stored
// events may be redelivered; the pool's dedup absorbs them.
func (r *T) resubscribe() {
	r.subscriptions.Range(func(_ string, sub *Subscription) bool {
		if sub.live.Load() {
			if err := sub.fire(); err != nil {
				log.D.F("{%s} resubscribe %s failed: %v", r.Config.URL,
					sub.id, err)
			}
		}
		return true
	})
}

// write queues a message for the connection goroutine, waiting until the
// connection can take it or ctx expires. The returned channel yields the
// write error, or closes on success. Nothing consumes the queue while the
// relay is down, so the ctx bound is what keeps callers from stalling on
// an unreachable relay.
func (r *T) write(ctx context.Context, msg []byte) <-chan error {
	ch := make(chan error, 1)
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-ctx.Done():
		ch <- fmt.Errorf("{%s} write abandoned: %w", r.Config.URL, ctx.Err())
	case <-r.ctx.Done():
		ch <- fmt.Errorf("{%s} relay connection closed", r.Config.URL)
	}
	return ch
}

// Publish sends the event and waits for the relay's OK verdict until ctx
// expires. A relay still establishing its connection is given the full
// wait bound to come up rather than failing on the current state. No
// verdict within the bound is PublishSent, a non-ack. The error return is
// non-nil only when the event could not even be written.
func (r *T) Publish(ctx context.Context, ev *event.T) (s PublishStatus,
	reason string, err error) {

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	verdict := make(chan *envelopes.OK, 1)
	r.okCallbacks.Store(ev.ID, func(ok bool, reason string) {
		select {
		case verdict <- &envelopes.OK{EventID: ev.ID, OK: ok, Reason: reason}:
		default:
		}
	})
	defer r.okCallbacks.Delete(ev.ID)

	var msg []byte
	if msg, err = envelopes.EventMessage(ev); chk.E(err) {
		return PublishSent, "", err
	}
	log.D.F("{%s} sending %.200s", r.Config.URL, msg)
	if err = <-r.write(ctx, msg); err != nil {
		return PublishSent, "", err
	}
	select {
	case v := <-verdict:
		if v.OK {
			return PublishSucceeded, v.Reason, nil
		}
		return PublishFailed, v.Reason, nil
	case <-ctx.Done():
		// no verdict within the wait bound; any later OK is ignored for
		// this call
		return PublishSent, "", nil
	case <-r.ctx.Done():
		return PublishSent, "",
			fmt.Errorf("{%s} connection closed", r.Config.URL)
	}
}

// Subscribe opens a subscription with the given filter. Events arrive on
// the subscription's Events channel until ctx is cancelled or Unsub is
// called. A relay that is not currently connected fails fast so fan-out
// callers can proceed with the relays that are up.
func (r *T) Subscribe(ctx context.Context, f *filter.T) (sub *Subscription,
	err error) {

	if !r.IsConnected() {
		return nil, fmt.Errorf("{%s} not connected", r.Config.URL)
	}
	sub = r.prepareSubscription(ctx, f)
	if err = sub.fire(); err != nil {
		sub.Unsub()
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w",
			f, r.Config.URL, err)
	}
	return
}
