package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/candleworks/poolstr/pkg/bech32encoding"
	"github.com/candleworks/poolstr/pkg/keys"
	"github.com/candleworks/poolstr/pkg/keystore"
	"github.com/candleworks/poolstr/pkg/pool"
	"github.com/candleworks/poolstr/pkg/relay"
)

// C is the per invocation state: the open store, the identity if one is
// saved, and the relay list in effect.
type C struct {
	Store      *keystore.T
	Identity   keys.Identity
	HasKey     bool
	Relays     []relay.Config
	tempRelays bool
}

var defaultRelays = []relay.Config{
	{URL: "wss://relay.nostr.band", Read: true, Write: true},
}

func (cfg *C) load() (err error) {
	var ok bool
	if cfg.Identity, ok, err = cfg.Store.LoadIdentity(); err != nil {
		if !errors.Is(err, keystore.ErrCorruptKeyStore) {
			return
		}
		err = nil
	}
	cfg.HasKey = ok
	if cfg.Relays, err = cfg.Store.LoadRelays(); chk.E(err) {
		return
	}
	if len(cfg.Relays) == 0 {
		cfg.Relays = defaultRelays
	}
	return
}

func (cfg *C) saveRelays() (err error) {
	if cfg.tempRelays {
		return nil
	}
	return cfg.Store.SaveRelays(cfg.Relays)
}

func (cfg *C) requireKey() (err error) {
	if !cfg.HasKey {
		return fmt.Errorf("no key stored, run '%s key gen' first", appName)
	}
	return nil
}

// openPool builds a pool over the configured relays and waits briefly for
// at least one to come up, so follow-on operations aren't guaranteed to
// miss a relay that was just about to connect.
func (cfg *C) openPool(ctx context.Context) (p *pool.T, err error) {
	p = pool.New(ctx)
	for _, rc := range cfg.Relays {
		if _, err = p.AddRelay(rc); chk.D(err) {
			log.W.F("skipping relay '%s': %v", rc.URL, err)
			err = nil
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, r := range p.Relays() {
			if r.IsConnected() {
				return p, nil
			}
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			p.Close()
			return nil, ctx.Err()
		}
	}
	// proceed anyway; operations will report unreachable relays
	return p, nil
}

// resolvePubKey accepts an npub or 64 character hex public key.
func resolvePubKey(u string) (pubHex string, err error) {
	if keys.IsValid32ByteHex(u) {
		return u, nil
	}
	return bech32encoding.NpubToPubKey(u)
}
