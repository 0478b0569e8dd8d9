// Package filter implements the subscription query sent in REQ messages:
// ids, kinds, authors, a time range and a result limit.
package filter

import (
	"encoding/json"

	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/kind"
	"github.com/candleworks/poolstr/pkg/timestamp"
)

// T is a query where any element may be left unset. Unset fields match
// everything.
type T struct {
	IDs     []string     `json:"ids,omitempty"`
	Kinds   kind.List    `json:"kinds,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

func (f *T) String() string {
	j, _ := json.Marshal(f)
	return string(j)
}

// Matches reports whether the event satisfies every set criterion of the
// filter. Relays apply the same predicate server side; the client rechecks
// so a misbehaving relay cannot inject off-filter events.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !containsString(f.IDs, ev.ID) {
		return false
	}
	if f.Kinds != nil && !f.Kinds.Contains(ev.Kind) {
		return false
	}
	if f.Authors != nil && !containsString(f.Authors, ev.PubKey) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// Clone returns a deep copy.
func (f *T) Clone() (c *T) {
	c = &T{
		IDs:     append([]string(nil), f.IDs...),
		Kinds:   append(kind.List(nil), f.Kinds...),
		Authors: append([]string(nil), f.Authors...),
		Limit:   f.Limit,
	}
	if f.Since != nil {
		c.Since = f.Since.Ptr()
	}
	if f.Until != nil {
		c.Until = f.Until.Ptr()
	}
	return
}

func containsString(haystack []string, needle string) bool {
	for i := range haystack {
		if haystack[i] == needle {
			return true
		}
	}
	return false
}
