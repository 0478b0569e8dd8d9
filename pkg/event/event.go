// Package event implements the immutable signed records exchanged through
// relays: canonical serialization, content derived ids, and schnorr
// signatures over them.
package event

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"

	"github.com/candleworks/poolstr/pkg/bech32encoding"
	"github.com/candleworks/poolstr/pkg/hex"
	"github.com/candleworks/poolstr/pkg/kind"
	"github.com/candleworks/poolstr/pkg/tags"
	"github.com/candleworks/poolstr/pkg/timestamp"
)

// T is an event. Once signed it must never be mutated: every field below
// except Sig feeds the id hash, and the signature covers the id.
type T struct {
	ID        string      `json:"id"`
	PubKey    string      `json:"pubkey"`
	CreatedAt timestamp.T `json:"created_at"`
	Kind      kind.T      `json:"kind"`
	Tags      tags.T      `json:"tags"`
	Content   string      `json:"content"`
	Sig       string      `json:"sig"`
}

// Serialize outputs the canonical byte form that is hashed to produce the
// event id:
//
//	[0,"<pubkey>",<created_at>,<kind>,<tags>,"<content>"]
//
// The field order and the RFC8259 string escaping are fixed by the
// protocol; any deviation changes the hash and the signature will not
// verify against independently computed ids.
func (ev *T) Serialize() []byte {
	dst := make([]byte, 0, 128+len(ev.Content))
	dst = append(dst, fmt.Sprintf("[0,\"%s\",%d,%d,",
		ev.PubKey, ev.CreatedAt, ev.Kind)...)
	dst = ev.Tags.MarshalTo(dst)
	dst = append(dst, ',')
	dst = tags.AppendEscaped(dst, ev.Content)
	dst = append(dst, ']')
	return dst
}

// GetID serializes the event and returns the hex encoded hash that
// identifies it.
func (ev *T) GetID() string {
	h := sha256.Sum256(ev.Serialize())
	return hex.Enc(h[:])
}

// Sign computes the id of the event, signs it with the given hex secret
// key and fills in PubKey, ID and Sig. A nil tag list is replaced with an
// empty one so the canonical form is stable.
func (ev *T) Sign(secKeyHex string) (err error) {
	var skb []byte
	if skb, err = hex.Dec(secKeyHex); err != nil {
		return fmt.Errorf("sign called with invalid secret key: %w", err)
	}
	if ev.Tags == nil {
		ev.Tags = make(tags.T, 0)
	}
	sk, pk := btcec.PrivKeyFromBytes(skb)
	ev.PubKey = hex.Enc(schnorr.SerializePubKey(pk))

	h := sha256.Sum256(ev.Serialize())
	var sig *schnorr.Signature
	if sig, err = schnorr.Sign(sk, h[:]); err != nil {
		return
	}
	ev.ID = hex.Enc(h[:])
	ev.Sig = hex.Enc(sig.Serialize())
	return
}

// CheckSignature verifies Sig against PubKey and the recomputed hash of
// the serialized event. It returns an error when the pubkey or signature
// fields cannot even be parsed.
func (ev *T) CheckSignature() (valid bool, err error) {
	var pkb []byte
	if pkb, err = hex.Dec(ev.PubKey); err != nil {
		return false, fmt.Errorf("event pubkey '%s' is invalid hex: %w",
			ev.PubKey, err)
	}
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pkb); err != nil {
		return false, fmt.Errorf("event has invalid pubkey '%s': %w",
			ev.PubKey, err)
	}
	var sb []byte
	if sb, err = hex.Dec(ev.Sig); err != nil {
		return false, fmt.Errorf("signature '%s' is invalid hex: %w",
			ev.Sig, err)
	}
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sb); err != nil {
		return false, fmt.Errorf("failed to parse signature: %w", err)
	}
	h := sha256.Sum256(ev.Serialize())
	return sig.Verify(h[:], pk), nil
}

// Verify performs the full integrity check applied to every event accepted
// from a relay: the id must equal the recomputed canonical hash, and the
// signature must verify against the pubkey and that id. Partial validity
// is not accepted.
func (ev *T) Verify() (err error) {
	if ev.GetID() != ev.ID {
		return fmt.Errorf("%w: id does not match serialized event",
			ErrIDMismatch)
	}
	var ok bool
	if ok, err = ev.CheckSignature(); err != nil {
		return fmt.Errorf("%w: %s", ErrSignatureInvalid, err.Error())
	}
	if !ok {
		return ErrSignatureInvalid
	}
	return nil
}

// Note returns the bech32 readable form of the event id.
func (ev *T) Note() (s string, err error) {
	return bech32encoding.EncodeNote(ev.ID)
}
