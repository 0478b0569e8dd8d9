package envelopes

import (
	"strings"
	"testing"

	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
	"github.com/candleworks/poolstr/pkg/keys"
	"github.com/candleworks/poolstr/pkg/kind"
)

func TestParseEvent(t *testing.T) {
	id, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	ev, err := event.New("hi", kind.TextNote, nil, id)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := marshal([]any{"EVENT", "sub:1", ev})
	if err != nil {
		t.Fatal(err)
	}
	env, err := Parse(msg)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := env.(*Event)
	if !ok {
		t.Fatalf("expected *Event, got %T", env)
	}
	if e.SubscriptionID != "sub:1" {
		t.Fatalf("wrong subscription id: %s", e.SubscriptionID)
	}
	if err = e.Event.Verify(); err != nil {
		t.Fatalf("event did not survive envelope round trip: %s", err)
	}
}

func TestParseOK(t *testing.T) {
	eid := strings.Repeat("ab", 32)
	env, err := Parse([]byte(`["OK","` + eid + `",false,"blocked: spam"]`))
	if err != nil {
		t.Fatal(err)
	}
	ok, isOK := env.(*OK)
	if !isOK {
		t.Fatalf("expected *OK, got %T", env)
	}
	if ok.EventID != eid || ok.OK || ok.Reason != "blocked: spam" {
		t.Fatalf("wrong OK fields: %+v", ok)
	}
}

func TestParseEoseNoticeClosed(t *testing.T) {
	env, err := Parse([]byte(`["EOSE","s1"]`))
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := env.(*Eose); !ok || e.SubscriptionID != "s1" {
		t.Fatalf("bad EOSE parse: %#v", env)
	}
	env, err = Parse([]byte(`["NOTICE","slow down"]`))
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := env.(*Notice); !ok || n.Text != "slow down" {
		t.Fatalf("bad NOTICE parse: %#v", env)
	}
	env, err = Parse([]byte(`["CLOSED","s1","rate limited"]`))
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := env.(*Closed); !ok || c.Reason != "rate limited" {
		t.Fatalf("bad CLOSED parse: %#v", env)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, msg := range []string{
		`{"not":"an array"}`,
		`[]`,
		`["EVENT"]`,
		`["WEIRD","x"]`,
		`not json at all`,
	} {
		if _, err := Parse([]byte(msg)); err == nil {
			t.Fatalf("malformed message accepted: %s", msg)
		}
	}
}

func TestReqMessageShape(t *testing.T) {
	f := &filter.T{Kinds: kind.List{kind.TextNote}, Limit: 3}
	msg, err := ReqMessage("abc:1", f)
	if err != nil {
		t.Fatal(err)
	}
	want := `["REQ","abc:1",{"kinds":[1],"limit":3}]`
	if string(msg) != want {
		t.Fatalf("wrong REQ frame:\n got %s\nwant %s", msg, want)
	}
}

func TestCloseMessageShape(t *testing.T) {
	msg, err := CloseMessage("abc:1")
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != `["CLOSE","abc:1"]` {
		t.Fatalf("wrong CLOSE frame: %s", msg)
	}
}

func TestEventMessageNoHTMLEscaping(t *testing.T) {
	id, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	ev, err := event.New("a<b>&c", kind.TextNote, nil, id)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := EventMessage(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(msg), "a<b>&c") {
		t.Fatalf("content was HTML escaped: %s", msg)
	}
}
