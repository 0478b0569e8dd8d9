// Package profile projects the content of kind 0 metadata events into a
// fixed, read only record. Authors publish this content as loosely shaped
// JSON, so the decode is tolerant: missing or malformed fields degrade to
// empty strings, never to a failed call.
package profile

import (
	"encoding/json"

	"github.com/candleworks/poolstr/pkg/bech32encoding"
	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/slog"
)

var log, chk = slog.GetStd()

// T is the profile of a pubkey as derived from its most recent kind 0
// event. Rebuilt whenever a newer one is observed, never mutated in place.
type T struct {
	PubKey      string `json:"-"`
	Npub        string `json:"-"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	About       string `json:"about,omitempty"`
	Website     string `json:"website,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Location    string `json:"location,omitempty"`
}

// FromEvent parses a kind 0 event's content. On malformed JSON the
// returned profile carries only the pubkey and npub; the parse failure is
// logged and recovered, never propagated.
func FromEvent(ev *event.T) (p *T) {
	p = &T{PubKey: ev.PubKey}
	var err error
	if p.Npub, err = bech32encoding.PubKeyToNpub(ev.PubKey); chk.D(err) {
		p.Npub = ""
	}
	var meta T
	if err = json.Unmarshal([]byte(ev.Content), &meta); err != nil {
		log.D.F("unparseable profile content for %s: %v", ev.PubKey, err)
		return
	}
	meta.PubKey = p.PubKey
	meta.Npub = p.Npub
	return &meta
}
