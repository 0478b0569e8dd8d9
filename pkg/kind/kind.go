// Package kind enumerates the event kinds this client exchanges.
package kind

// T is an event kind integer as found in the kind field of events and the
// kinds field of filters.
type T int

const (
	ProfileMetadata T = 0
	TextNote        T = 1
	RecommendServer T = 2
	ContactList     T = 3
	Repost          T = 6
	Reaction        T = 7
)

// List is a set of kinds, as appears in a filter.
type List []T

func (l List) Contains(k T) bool {
	for i := range l {
		if l[i] == k {
			return true
		}
	}
	return false
}
