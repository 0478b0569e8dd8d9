package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
	"github.com/candleworks/poolstr/pkg/keys"
	"github.com/candleworks/poolstr/pkg/kind"
	"github.com/candleworks/poolstr/pkg/relay"
	"github.com/candleworks/poolstr/pkg/timestamp"
)

// testRelay is an in-process relay server good enough to exercise the
// pool: it answers REQ with its stored events plus EOSE, and EVENT with a
// canned OK verdict.
type testRelay struct {
	t      *testing.T
	srv    *httptest.Server
	mx     sync.Mutex
	events []*event.T
	accept bool
	reason string
	// silent suppresses EOSE, simulating a relay that never finishes its
	// stored events
	silent bool
}

func newTestRelay(t *testing.T, evs ...*event.T) *testRelay {
	tr := &testRelay{t: t, events: evs, accept: true}
	tr.srv = httptest.NewServer(http.HandlerFunc(tr.handle))
	t.Cleanup(tr.srv.Close)
	return tr
}

func (tr *testRelay) setVerdict(accept bool, reason string) {
	tr.mx.Lock()
	tr.accept, tr.reason = accept, reason
	tr.mx.Unlock()
}

func (tr *testRelay) url() string {
	return "ws" + strings.TrimPrefix(tr.srv.URL, "http")
}

func (tr *testRelay) handle(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	go func() {
		defer conn.Close()
		for {
			msg, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if op != ws.OpText {
				continue
			}
			arr := gjson.ParseBytes(msg).Array()
			if len(arr) < 2 {
				continue
			}
			switch arr[0].Str {
			case "REQ":
				subID := arr[1].Str
				var f filter.T
				if len(arr) > 2 {
					if err = json.Unmarshal([]byte(arr[2].Raw),
						&f); err != nil {
						continue
					}
				}
				tr.mx.Lock()
				evs := append([]*event.T(nil), tr.events...)
				silent := tr.silent
				tr.mx.Unlock()
				for _, ev := range evs {
					if !f.Matches(ev) {
						continue
					}
					frame, _ := json.Marshal([]any{"EVENT", subID, ev})
					if err = wsutil.WriteServerMessage(conn, ws.OpText,
						frame); err != nil {
						return
					}
				}
				if !silent {
					frame, _ := json.Marshal([]any{"EOSE", subID})
					if err = wsutil.WriteServerMessage(conn, ws.OpText,
						frame); err != nil {
						return
					}
				}
			case "EVENT":
				id := gjson.GetBytes(msg, "1.id").Str
				tr.mx.Lock()
				accept, reason := tr.accept, tr.reason
				tr.mx.Unlock()
				frame, _ := json.Marshal([]any{"OK", id, accept, reason})
				if err = wsutil.WriteServerMessage(conn, ws.OpText,
					frame); err != nil {
					return
				}
			}
		}
	}()
}

func signedNote(t *testing.T, id keys.Identity, content string,
	at timestamp.T) *event.T {

	t.Helper()
	ev := &event.T{
		CreatedAt: at,
		Kind:      kind.TextNote,
		Content:   content,
	}
	require.NoError(t, ev.Sign(id.Sec))
	return ev
}

func testPool(t *testing.T, configs ...relay.Config) *T {
	t.Helper()
	p := New(context.Background(),
		WithFetchTimeout(3*time.Second),
		WithPublishTimeout(3*time.Second))
	t.Cleanup(p.Close)
	for _, rc := range configs {
		_, err := p.AddRelay(rc)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		for _, r := range p.Relays() {
			if !r.IsConnected() {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond, "relays did not connect")
	return p
}

func TestFetchDeduplicatesAcrossRelays(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	shared := signedNote(t, id, "on both relays", timestamp.Now())
	onlyA := signedNote(t, id, "only on a", timestamp.Now())
	onlyB := signedNote(t, id, "only on b", timestamp.Now())
	a := newTestRelay(t, shared, onlyA)
	b := newTestRelay(t, shared, onlyB)

	p := testPool(t,
		relay.Config{URL: a.url(), Read: true, Write: true},
		relay.Config{URL: b.url(), Read: true, Write: true})

	evs, complete, err := p.Fetch(context.Background(),
		&filter.T{Authors: []string{id.Pub}})
	require.NoError(t, err)
	assert.True(t, complete)
	require.Len(t, evs, 3)
	seen := map[string]int{}
	for _, ev := range evs {
		seen[ev.ID]++
	}
	for evID, n := range seen {
		assert.Equal(t, 1, n, "event %s delivered %d times", evID, n)
	}
	assert.EqualValues(t, 1, p.DuplicatesDropped())
}

func TestPublishFanoutCollectsVerdicts(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	accepting := newTestRelay(t)
	rejecting := newTestRelay(t)
	rejecting.setVerdict(false, "blocked: spam")

	p := testPool(t,
		relay.Config{URL: accepting.url(), Read: true, Write: true},
		relay.Config{URL: rejecting.url(), Read: true, Write: true})

	ev := signedNote(t, id, "fan out", timestamp.Now())
	res, err := p.Publish(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Published)
	require.Len(t, res.Relays, 2)
	byURL := map[string]RelayVerdict{}
	for _, v := range res.Relays {
		byURL[v.URL] = v
	}
	assert.Equal(t, VerdictAccepted, byURL[accepting.url()].Status)
	assert.Equal(t, VerdictRejected, byURL[rejecting.url()].Status)
	assert.Equal(t, "blocked: spam", byURL[rejecting.url()].Reason)
}

func TestPublishNoWriteRelays(t *testing.T) {
	a := newTestRelay(t)
	p := testPool(t, relay.Config{URL: a.url(), Read: true})
	id, err := keys.Generate()
	require.NoError(t, err)
	ev := signedNote(t, id, "nowhere to go", timestamp.Now())
	res, err := p.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, ErrNoReachableRelay)
	assert.False(t, res.Published)
}

func TestPublishWithEmptyPool(t *testing.T) {
	p := New(context.Background())
	defer p.Close()
	id, err := keys.Generate()
	require.NoError(t, err)
	ev := signedNote(t, id, "void", timestamp.Now())
	res, err := p.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, ErrNoReachableRelay)
	assert.False(t, res.Published)
	assert.Empty(t, res.Relays)
}

func TestPublishRoutesToWriteRelaysOnly(t *testing.T) {
	readOnly := newTestRelay(t)
	writeOnly := newTestRelay(t)
	p := testPool(t,
		relay.Config{URL: readOnly.url(), Read: true},
		relay.Config{URL: writeOnly.url(), Write: true})
	id, err := keys.Generate()
	require.NoError(t, err)
	ev := signedNote(t, id, "directed", timestamp.Now())
	res, err := p.Publish(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Published)
	require.Len(t, res.Relays, 1)
	assert.Equal(t, writeOnly.url(), res.Relays[0].URL)
}

func TestFetchRespectsReadDirection(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	hidden := signedNote(t, id, "write only relay", timestamp.Now())
	writeOnly := newTestRelay(t, hidden)
	readable := newTestRelay(t)

	p := testPool(t,
		relay.Config{URL: writeOnly.url(), Write: true},
		relay.Config{URL: readable.url(), Read: true})

	evs, complete, err := p.Fetch(context.Background(),
		&filter.T{Authors: []string{id.Pub}})
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Empty(t, evs)
}

func TestFetchDropsInvalidEvents(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	good := signedNote(t, id, "intact", timestamp.Now())
	bad := signedNote(t, id, "to be tampered", timestamp.Now())
	bad.Content = "tampered after signing"
	a := newTestRelay(t, good, bad)

	p := testPool(t, relay.Config{URL: a.url(), Read: true, Write: true})
	evs, complete, err := p.Fetch(context.Background(),
		&filter.T{Authors: []string{id.Pub}})
	require.NoError(t, err)
	assert.True(t, complete)
	require.Len(t, evs, 1)
	assert.Equal(t, good.ID, evs[0].ID)
	assert.EqualValues(t, 1, p.InvalidDropped())
}

func TestFetchOneByNote(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	ev := signedNote(t, id, "the one", timestamp.Now())
	a := newTestRelay(t, ev)
	p := testPool(t, relay.Config{URL: a.url(), Read: true, Write: true})

	note, err := ev.Note()
	require.NoError(t, err)
	got, found, err := p.FetchOne(context.Background(), note)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ev.ID, got.ID)

	_, _, err = p.FetchOne(context.Background(), "neither hex nor note")
	assert.Error(t, err)
}

func TestFetchProfileNewestWins(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	older := &event.T{
		CreatedAt: timestamp.T(1700000000),
		Kind:      kind.ProfileMetadata,
		Content:   `{"name":"old name"}`,
	}
	require.NoError(t, older.Sign(id.Sec))
	newer := &event.T{
		CreatedAt: timestamp.T(1700000500),
		Kind:      kind.ProfileMetadata,
		Content:   `{"name":"new name","display_name":"Alice"}`,
	}
	require.NoError(t, newer.Sign(id.Sec))
	a := newTestRelay(t, older)
	b := newTestRelay(t, newer, older)

	p := testPool(t,
		relay.Config{URL: a.url(), Read: true},
		relay.Config{URL: b.url(), Read: true})
	pr, found, err := p.FetchProfile(context.Background(), id.Pub)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new name", pr.Name)
	assert.Equal(t, "Alice", pr.DisplayName)
	assert.Equal(t, id.Pub, pr.PubKey)
}

func TestAddRelayRejectsDuplicateURL(t *testing.T) {
	a := newTestRelay(t)
	p := testPool(t, relay.Config{URL: a.url(), Read: true, Write: true})
	// same relay spelled differently normalizes to the same entry
	_, err := p.AddRelay(relay.Config{URL: a.url() + "/", Read: true})
	assert.ErrorIs(t, err, ErrDuplicateRelay)
	rs := p.Relays()
	require.Len(t, rs, 1)
	// the original config is untouched by the rejected add
	assert.True(t, rs[0].Config.Write)
}

func TestFetchSurvivesUnreachableRelay(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	ev := signedNote(t, id, "from the live relay", timestamp.Now())
	a := newTestRelay(t, ev)

	p := New(context.Background())
	t.Cleanup(p.Close)
	_, err = p.AddRelay(relay.Config{URL: a.url(), Read: true})
	require.NoError(t, err)
	// nothing listens on this port; the dial fails immediately and the
	// relay sits in backoff
	_, err = p.AddRelay(relay.Config{URL: "ws://127.0.0.1:1", Read: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return p.Relays()[0].IsConnected()
	}, 5*time.Second, 20*time.Millisecond, "live relay did not connect")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	evs, complete, err := p.Fetch(ctx, &filter.T{Authors: []string{id.Pub}})
	require.NoError(t, err)
	assert.True(t, complete)
	require.Len(t, evs, 1)
	assert.Equal(t, ev.ID, evs[0].ID)
	assert.Less(t, time.Since(start), 2*time.Second,
		"fetch blocked on the unreachable relay past its deadline")
}

func TestFetchDeadlineReturnsPartialResults(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	done := signedNote(t, id, "finished relay", timestamp.Now())
	stuck := signedNote(t, id, "stuck relay", timestamp.Now())
	a := newTestRelay(t, done)
	b := newTestRelay(t, stuck)
	b.mx.Lock()
	b.silent = true
	b.mx.Unlock()

	p := testPool(t,
		relay.Config{URL: a.url(), Read: true},
		relay.Config{URL: b.url(), Read: true})

	ctx, cancel := context.WithTimeout(context.Background(),
		500*time.Millisecond)
	defer cancel()
	evs, complete, err := p.Fetch(ctx, &filter.T{Authors: []string{id.Pub}})
	// deadline expiry is a normal outcome, not an error
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Len(t, evs, 2)
}

func TestRemoveRelay(t *testing.T) {
	a := newTestRelay(t)
	b := newTestRelay(t)
	p := testPool(t,
		relay.Config{URL: a.url(), Read: true},
		relay.Config{URL: b.url(), Read: true})
	p.RemoveRelay(a.url())
	rs := p.Relays()
	require.Len(t, rs, 1)
	assert.Equal(t, b.url(), rs[0].URL())
	// removing an unknown url is a no-op
	p.RemoveRelay("wss://never.added.example.com")
	assert.Len(t, p.Relays(), 1)
}
