package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
	"github.com/candleworks/poolstr/pkg/keys"
	"github.com/candleworks/poolstr/pkg/kind"
	"github.com/candleworks/poolstr/pkg/timestamp"
)

// flakyServer accepts websocket connections, counting them, and drops the
// first n immediately after the handshake. Later connections are held open.
func flakyServer(t *testing.T, dropFirst int32) (url string,
	conns *atomic.Int32) {

	conns = new(atomic.Int32)
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, _, _, err := ws.UpgradeHTTP(r, w)
			if err != nil {
				return
			}
			n := conns.Add(1)
			if n <= dropFirst {
				conn.Close()
				return
			}
			go func() {
				defer conn.Close()
				for {
					if _, _, err := wsutil.ReadClientData(conn); err != nil {
						return
					}
				}
			}()
		}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func TestReconnectsAfterConnectionDrop(t *testing.T) {
	url, conns := flakyServer(t, 1)
	r := New(context.Background(), Config{URL: url, Read: true},
		WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	r.Start()
	defer r.Close()
	require.Eventually(t, func() bool {
		return r.IsConnected() && conns.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond,
		"relay did not come back after the dropped connection")
}

func TestSubscribeFailsFastWhenDisconnected(t *testing.T) {
	// never started, so the relay can never be connected
	r := New(context.Background(), Config{URL: "ws://127.0.0.1:1", Read: true})
	defer r.Close()
	start := time.Now()
	_, err := r.Subscribe(context.Background(), &filter.T{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublishConsumesWaitBoundWhenUnreachable(t *testing.T) {
	// nothing listens here; the relay cycles through failed dials
	r := New(context.Background(), Config{URL: "ws://127.0.0.1:1", Write: true},
		WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	r.Start()
	defer r.Close()

	id, err := keys.Generate()
	require.NoError(t, err)
	ev := &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Content:   "never delivered",
	}
	require.NoError(t, ev.Sign(id.Sec))

	deadline := 300 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	start := time.Now()
	_, _, err = r.Publish(ctx, ev)
	elapsed := time.Since(start)
	require.Error(t, err)
	// the relay is given the whole bound to come up, not failed on the
	// spot, and the caller gets control back once the bound passes
	assert.GreaterOrEqual(t, elapsed, deadline-50*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}
