package pool

// VerdictStatus classifies one relay's response to a publish.
type VerdictStatus int

const (
	// VerdictNoResponse means the event was delivered but the relay never
	// acknowledged within the wait bound.
	VerdictNoResponse VerdictStatus = iota
	// VerdictAccepted means the relay acknowledged acceptance.
	VerdictAccepted
	// VerdictRejected means the relay refused the event.
	VerdictRejected
	// VerdictUnreachable means no connection was available to deliver on.
	VerdictUnreachable
)

func (s VerdictStatus) String() string {
	switch s {
	case VerdictNoResponse:
		return "no response"
	case VerdictAccepted:
		return "accepted"
	case VerdictRejected:
		return "rejected"
	case VerdictUnreachable:
		return "unreachable"
	}
	return "unknown"
}

// RelayVerdict is one relay's outcome for a published event.
type RelayVerdict struct {
	URL    string
	Status VerdictStatus
	Reason string
}

// PublishResult collects the per relay verdicts of a fan-out publish.
// Published is true when at least one relay accepted the event.
type PublishResult struct {
	EventID   string
	Published bool
	Relays    []RelayVerdict
}
