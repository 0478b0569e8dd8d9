// Package keystore persists the user's identity and relay list in a local
// badger key value store. The identity's two entries are written in one
// transaction so a reader can never observe one half updated and the other
// stale.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/candleworks/poolstr/pkg/keys"
	"github.com/candleworks/poolstr/pkg/relay"
	"github.com/candleworks/poolstr/pkg/slog"
)

var log, chk = slog.GetStd()

// ErrCorruptKeyStore means exactly one of the two identity entries is
// present. Callers treat it as "no identity" but it is logged distinctly
// from a genuine absence so the condition is visible.
var ErrCorruptKeyStore = errors.New("key store holds a partial identity")

// ErrStorageUnavailable wraps failures of the underlying store so callers
// can tell storage faults from absent data.
var ErrStorageUnavailable = errors.New("key storage unavailable")

const (
	secKey    = "identity/sec"
	pubKey    = "identity/pub"
	relaysKey = "relays"
)

// T is an open key store.
type T struct {
	db *badger.DB
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (s *T, err error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	var db *badger.DB
	if db, err = badger.Open(opts); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return &T{db: db}, nil
}

func (s *T) Close() (err error) { return s.db.Close() }

// SaveIdentity stores both halves of the identity in a single
// transaction.
func (s *T) SaveIdentity(id keys.Identity) (err error) {
	err = s.db.Update(func(txn *badger.Txn) (err error) {
		if err = txn.Set([]byte(secKey), []byte(id.Sec)); err != nil {
			return
		}
		return txn.Set([]byte(pubKey), []byte(id.Pub))
	})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return
}

// LoadIdentity returns the stored identity. ok is false when no identity
// has ever been stored; a half present identity additionally returns
// ErrCorruptKeyStore.
func (s *T) LoadIdentity() (id keys.Identity, ok bool, err error) {
	var haveSec, havePub bool
	err = s.db.View(func(txn *badger.Txn) (err error) {
		if v, e := getString(txn, secKey); e == nil {
			id.Sec, haveSec = v, true
		} else if !errors.Is(e, badger.ErrKeyNotFound) {
			return e
		}
		if v, e := getString(txn, pubKey); e == nil {
			id.Pub, havePub = v, true
		} else if !errors.Is(e, badger.ErrKeyNotFound) {
			return e
		}
		return nil
	})
	if err != nil {
		return keys.Identity{}, false,
			fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	switch {
	case haveSec && havePub:
		return id, true, nil
	case haveSec || havePub:
		log.W.Ln("key store holds a partial identity, treating as absent")
		return keys.Identity{}, false, ErrCorruptKeyStore
	}
	return keys.Identity{}, false, nil
}

// DeleteIdentity removes both entries; the explicit logout path.
func (s *T) DeleteIdentity() (err error) {
	err = s.db.Update(func(txn *badger.Txn) (err error) {
		if err = txn.Delete([]byte(secKey)); err != nil {
			return
		}
		return txn.Delete([]byte(pubKey))
	})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return
}

// SaveRelays stores the ordered relay list as a JSON array of
// {url, read, write}.
func (s *T) SaveRelays(configs []relay.Config) (err error) {
	var b []byte
	if b, err = json.Marshal(configs); chk.E(err) {
		return
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(relaysKey), b)
	})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return
}

// LoadRelays returns the stored relay list, or nil when none was saved.
func (s *T) LoadRelays() (configs []relay.Config, err error) {
	err = s.db.View(func(txn *badger.Txn) (err error) {
		v, e := getString(txn, relaysKey)
		if errors.Is(e, badger.ErrKeyNotFound) {
			return nil
		}
		if e != nil {
			return e
		}
		return json.Unmarshal([]byte(v), &configs)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return
}

func getString(txn *badger.Txn, key string) (v string, err error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return
	}
	err = item.Value(func(val []byte) error {
		v = string(val)
		return nil
	})
	return
}
