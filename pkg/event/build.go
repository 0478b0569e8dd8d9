package event

import (
	"github.com/candleworks/poolstr/pkg/keys"
	"github.com/candleworks/poolstr/pkg/kind"
	"github.com/candleworks/poolstr/pkg/tags"
	"github.com/candleworks/poolstr/pkg/timestamp"
)

// New assembles a draft from user content, stamps it with the current
// time, and signs it with the identity's secret key, returning the fully
// populated event. The draft never escapes this function unsigned.
func New(content string, k kind.T, tg tags.T, id keys.Identity) (ev *T,
	err error) {

	ev = &T{
		CreatedAt: timestamp.Now(),
		Kind:      k,
		Tags:      tg,
		Content:   content,
	}
	if err = ev.Sign(id.Sec); err != nil {
		return nil, err
	}
	return
}
