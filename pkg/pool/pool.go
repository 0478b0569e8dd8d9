// Package pool coordinates a set of relay connections: fan-out publishing
// to write relays and deduplicated fetching from read relays.
package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v2"

	"github.com/candleworks/poolstr/pkg/bech32encoding"
	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
	"github.com/candleworks/poolstr/pkg/keys"
	"github.com/candleworks/poolstr/pkg/kind"
	"github.com/candleworks/poolstr/pkg/normalize"
	"github.com/candleworks/poolstr/pkg/profile"
	"github.com/candleworks/poolstr/pkg/relay"
	"github.com/candleworks/poolstr/pkg/slog"
)

var log, chk = slog.GetStd()

const (
	defaultPublishTimeout = 7 * time.Second
	defaultFetchTimeout   = 7 * time.Second
)

// T is a pool of relays. Relay membership changes and queries may be
// issued concurrently; each relay degrades or recovers independently.
type T struct {
	ctx    context.Context
	cancel context.CancelFunc

	relays *xsync.MapOf[string, *relay.T]
	// order preserves insertion order for listings; relays holds the
	// connections themselves
	order   []string
	orderMx sync.Mutex

	publishTimeout time.Duration
	fetchTimeout   time.Duration
	relayOpts      []relay.Option

	duplicatesDropped *xsync.Counter
}

// Option configures a pool.
type Option func(*T)

// WithPublishTimeout bounds how long Publish waits for relay verdicts.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *T) { p.publishTimeout = d }
}

// WithFetchTimeout bounds how long Fetch waits for results when the
// caller's context carries no deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *T) { p.fetchTimeout = d }
}

// WithRelayOptions passes options through to every relay the pool opens.
func WithRelayOptions(opts ...relay.Option) Option {
	return func(p *T) { p.relayOpts = opts }
}

// New creates an empty pool. Close shuts down every relay in it.
func New(ctx context.Context, opts ...Option) (p *T) {
	ctx, cancel := context.WithCancel(ctx)
	p = &T{
		ctx:               ctx,
		cancel:            cancel,
		relays:            xsync.NewMapOf[*relay.T](),
		publishTimeout:    defaultPublishTimeout,
		fetchTimeout:      defaultFetchTimeout,
		duplicatesDropped: xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return
}

// Close disconnects every relay and ends all subscriptions.
func (p *T) Close() {
	p.cancel()
	p.relays.Range(func(_ string, r *relay.T) bool {
		r.Close()
		return true
	})
}

// AddRelay adds a relay to the set and starts connecting in the
// background; the add itself never blocks on the network. A URL already
// in the set (after normalization) is rejected with ErrDuplicateRelay.
func (p *T) AddRelay(cfg relay.Config) (r *relay.T, err error) {
	url := normalize.URL(cfg.URL)
	if url == "" {
		return nil, log.E.Err("unusable relay url '%s'", cfg.URL)
	}
	cfg.URL = url
	if _, ok := p.relays.Load(url); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRelay, url)
	}
	r = relay.New(p.ctx, cfg, p.relayOpts...)
	p.relays.Store(url, r)
	p.orderMx.Lock()
	p.order = append(p.order, url)
	p.orderMx.Unlock()
	r.Start()
	return
}

// RemoveRelay disconnects the relay and drops it from the set. Removing
// an unknown URL is a no-op.
func (p *T) RemoveRelay(url string) {
	url = normalize.URL(url)
	r, ok := p.relays.LoadAndDelete(url)
	if !ok {
		return
	}
	p.orderMx.Lock()
	for i := range p.order {
		if p.order[i] == url {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.orderMx.Unlock()
	r.Close()
}

// Relays returns the pool's relays in insertion order.
func (p *T) Relays() (rs []*relay.T) {
	p.orderMx.Lock()
	urls := append([]string(nil), p.order...)
	p.orderMx.Unlock()
	for _, url := range urls {
		if r, ok := p.relays.Load(url); ok {
			rs = append(rs, r)
		}
	}
	return
}

func (p *T) readRelays() (rs []*relay.T) {
	for _, r := range p.Relays() {
		if r.Config.Read {
			rs = append(rs, r)
		}
	}
	return
}

func (p *T) writeRelays() (rs []*relay.T) {
	for _, r := range p.Relays() {
		if r.Config.Write {
			rs = append(rs, r)
		}
	}
	return
}

// DuplicatesDropped returns how many events arrived that had already been
// delivered from another relay.
func (p *T) DuplicatesDropped() int64 { return p.duplicatesDropped.Value() }

// InvalidDropped sums the verification drop counters of all relays.
func (p *T) InvalidDropped() (n int64) {
	p.relays.Range(func(_ string, r *relay.T) bool {
		n += r.InvalidDropped()
		return true
	})
	return
}

// Publish fans the signed event out to every write relay concurrently and
// collects each relay's verdict. The result reports success if at least
// one relay accepted; the error is non-nil only when no write relay could
// be reached at all.
func (p *T) Publish(ctx context.Context, ev *event.T) (res *PublishResult,
	err error) {

	res = &PublishResult{EventID: ev.ID}
	writers := p.writeRelays()
	if len(writers) == 0 {
		return res, ErrNoReachableRelay
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}
	verdicts := make([]RelayVerdict, len(writers))
	var wg sync.WaitGroup
	for i, r := range writers {
		wg.Add(1)
		go func(i int, r *relay.T) {
			defer wg.Done()
			v := RelayVerdict{URL: r.URL()}
			status, reason, e := r.Publish(ctx, ev)
			switch {
			case e != nil:
				v.Status = VerdictUnreachable
				v.Reason = e.Error()
			case status == relay.PublishSucceeded:
				v.Status = VerdictAccepted
				v.Reason = reason
			case status == relay.PublishFailed:
				v.Status = VerdictRejected
				v.Reason = reason
			default:
				v.Status = VerdictNoResponse
			}
			verdicts[i] = v
		}(i, r)
	}
	wg.Wait()
	res.Relays = verdicts
	reachable := false
	for _, v := range verdicts {
		if v.Status != VerdictUnreachable {
			reachable = true
		}
		if v.Status == VerdictAccepted {
			res.Published = true
		}
	}
	if !reachable {
		return res, ErrNoReachableRelay
	}
	return res, nil
}

// Fetch queries every read relay with the filter and returns the deduped
// union, newest first. complete is true when every reachable relay
// finished its stored events (or the filter's limit was reached); a
// deadline expiry returns the partial set with complete false, not an
// error.
func (p *T) Fetch(ctx context.Context, f *filter.T) (evs []*event.T,
	complete bool, err error) {

	seen := xsync.NewMapOf[struct{}]()
	var mx sync.Mutex
	collect := func(ev *event.T) (done bool) {
		if _, loaded := seen.LoadOrStore(ev.ID, struct{}{}); loaded {
			p.duplicatesDropped.Inc()
			return false
		}
		mx.Lock()
		evs = append(evs, ev)
		n := len(evs)
		mx.Unlock()
		return f.Limit > 0 && n >= f.Limit
	}
	complete, err = p.forEachMatch(ctx, f, collect)
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].CreatedAt > evs[j].CreatedAt
	})
	if f.Limit > 0 && len(evs) > f.Limit {
		evs = evs[:f.Limit]
	}
	return
}

// forEachMatch runs the filter on all read relays and feeds each unique
// match to yield until yield reports done, every relay reaches EOSE, or
// the deadline passes. It returns whether the query ran to completion.
func (p *T) forEachMatch(ctx context.Context, f *filter.T,
	yield func(*event.T) bool) (complete bool, err error) {

	readers := p.readRelays()
	if len(readers) == 0 {
		return false, ErrNoReachableRelay
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type delivery struct {
		ev   *event.T
		eose bool
	}
	ch := make(chan delivery)
	var wg sync.WaitGroup
	active := 0
	for _, r := range readers {
		sub, e := r.Subscribe(ctx, f)
		if e != nil {
			log.D.F("{%s} fetch subscribe failed: %v", r.URL(), e)
			continue
		}
		active++
		wg.Add(1)
		go func(sub *relay.Subscription) {
			defer wg.Done()
			defer sub.Unsub()
			eoseSent := false
			sendEose := func() bool {
				if eoseSent {
					return true
				}
				eoseSent = true
				select {
				case ch <- delivery{eose: true}:
					return true
				case <-ctx.Done():
					return false
				}
			}
			relayLive := func() {
				// stored events done, only live events remain
				for {
					select {
					case ev, ok := <-sub.Events:
						if !ok {
							return
						}
						select {
						case ch <- delivery{ev: ev}:
						case <-ctx.Done():
							return
						}
					case <-ctx.Done():
						return
					}
				}
			}
			for {
				select {
				case ev, ok := <-sub.Events:
					if !ok {
						sendEose()
						return
					}
					select {
					case ch <- delivery{ev: ev}:
					case <-ctx.Done():
						return
					}
				case <-sub.EndOfStoredEvents:
					if sendEose() {
						relayLive()
					}
					return
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}
	if active == 0 {
		return false, ErrNoReachableRelay
	}
	go func() {
		wg.Wait()
		close(ch)
	}()
	eoseCount := 0
	for {
		select {
		case d, ok := <-ch:
			if !ok {
				return eoseCount >= active, nil
			}
			if d.eose {
				eoseCount++
				if eoseCount >= active {
					return true, nil
				}
				continue
			}
			if yield(d.ev) {
				return true, nil
			}
		case <-ctx.Done():
			return false, nil
		}
	}
}

// FetchOne resolves a single event by id, given as 64 character hex or in
// note form. It returns the first verified copy found, or nil with found
// false when no relay has it within the wait bound.
func (p *T) FetchOne(ctx context.Context, id string) (ev *event.T,
	found bool, err error) {

	if !keys.IsValid32ByteHex(id) {
		var hexID string
		if hexID, err = bech32encoding.DecodeNote(id); err != nil {
			return nil, false, err
		}
		id = hexID
	}
	f := &filter.T{IDs: []string{id}, Limit: 1}
	var evs []*event.T
	if evs, _, err = p.Fetch(ctx, f); err != nil {
		return
	}
	if len(evs) == 0 {
		return nil, false, nil
	}
	return evs[0], true, nil
}

// FetchProfile queries for the pubkey's metadata and parses the most
// recent version found across the read relays. found is false when no
// relay returned one.
func (p *T) FetchProfile(ctx context.Context, pubKeyHex string) (pr *profile.T,
	found bool, err error) {

	f := &filter.T{
		Authors: []string{pubKeyHex},
		Kinds:   kind.List{kind.ProfileMetadata},
	}
	var evs []*event.T
	if evs, _, err = p.Fetch(ctx, f); err != nil {
		return
	}
	var newest *event.T
	for _, ev := range evs {
		if newest == nil || ev.CreatedAt > newest.CreatedAt {
			newest = ev
		}
	}
	if newest == nil {
		return nil, false, nil
	}
	return profile.FromEvent(newest), true, nil
}
