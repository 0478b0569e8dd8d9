// Package envelopes implements the JSON array framing of the relay wire
// protocol: EVENT, REQ and CLOSE going out; EVENT, EOSE, OK, NOTICE and
// CLOSED coming in.
package envelopes

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/candleworks/poolstr/pkg/event"
	"github.com/candleworks/poolstr/pkg/filter"
)

// E is any inbound envelope. Label returns the leading array element.
type E interface {
	Label() string
}

// Event carries a matching event for a subscription.
type Event struct {
	SubscriptionID string
	Event          *event.T
}

func (Event) Label() string { return "EVENT" }

// Eose signals the end of previously stored matching events; live events
// may still follow on the same subscription.
type Eose struct {
	SubscriptionID string
}

func (Eose) Label() string { return "EOSE" }

// OK is the relay's verdict on a published event.
type OK struct {
	EventID string
	OK      bool
	Reason  string
}

func (OK) Label() string { return "OK" }

// Notice is a human readable message from the relay.
type Notice struct {
	Text string
}

func (Notice) Label() string { return "NOTICE" }

// Closed reports that the relay terminated a subscription on its side.
type Closed struct {
	SubscriptionID string
	Reason         string
}

func (Closed) Label() string { return "CLOSED" }

// Parse identifies and decodes one inbound message. Unknown labels return
// an error so the read loop can skip them without dropping the connection.
func Parse(msg []byte) (env E, err error) {
	r := gjson.ParseBytes(msg)
	if !r.IsArray() {
		return nil, fmt.Errorf("message is not a JSON array: %.80s", msg)
	}
	arr := r.Array()
	if len(arr) < 2 {
		return nil, fmt.Errorf("message array too short: %.80s", msg)
	}
	switch arr[0].Str {
	case "EVENT":
		if len(arr) < 3 {
			return nil, fmt.Errorf("EVENT envelope missing event: %.80s", msg)
		}
		ev := &event.T{}
		if err = json.Unmarshal([]byte(arr[2].Raw), ev); err != nil {
			return nil, fmt.Errorf("failed to decode EVENT envelope: %w", err)
		}
		return &Event{SubscriptionID: arr[1].Str, Event: ev}, nil
	case "EOSE":
		return &Eose{SubscriptionID: arr[1].Str}, nil
	case "OK":
		if len(arr) < 3 {
			return nil, fmt.Errorf("OK envelope too short: %.80s", msg)
		}
		ok := &OK{EventID: arr[1].Str, OK: arr[2].Bool()}
		if len(arr) > 3 {
			ok.Reason = arr[3].Str
		}
		return ok, nil
	case "NOTICE":
		return &Notice{Text: arr[1].Str}, nil
	case "CLOSED":
		c := &Closed{SubscriptionID: arr[1].Str}
		if len(arr) > 2 {
			c.Reason = arr[2].Str
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown envelope label '%s'", arr[0].Str)
}

// marshal encodes v without HTML escaping and without the trailing newline
// json.Encoder appends.
func marshal(v any) (b []byte, err error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err = enc.Encode(v); err != nil {
		return
	}
	b = bytes.TrimRight(buf.Bytes(), "\n")
	return
}

// EventMessage frames a signed event for publishing.
func EventMessage(ev *event.T) (b []byte, err error) {
	return marshal([]any{"EVENT", ev})
}

// ReqMessage frames a subscription request.
func ReqMessage(subID string, f *filter.T) (b []byte, err error) {
	return marshal([]any{"REQ", subID, f})
}

// CloseMessage frames a subscription termination.
func CloseMessage(subID string) (b []byte, err error) {
	return marshal([]any{"CLOSE", subID})
}
