// Package tags implements the ordered tag lists attached to events and
// their canonical JSON encoding, which must be byte for byte stable
// because it feeds the event id hash.
package tags

// Tag is one tag: an ordered sequence of strings whose first element is
// the tag name.
type Tag []string

// T is the ordered list of tags of an event.
type T []Tag

// Key returns the tag name, or an empty string for an empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the second field of the tag, where its principal value
// lives by convention.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Clone returns a deep copy.
func (t T) Clone() (c T) {
	if t == nil {
		return
	}
	c = make(T, len(t))
	for i := range t {
		c[i] = append(Tag(nil), t[i]...)
	}
	return
}

// GetFirst returns the first tag with the given name, or nil.
func (t T) GetFirst(key string) Tag {
	for i := range t {
		if t[i].Key() == key {
			return t[i]
		}
	}
	return nil
}

// MarshalTo appends the canonical JSON encoding of the tag list to dst.
// Order of tags and of fields within each tag is preserved exactly.
func (t T) MarshalTo(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tag := range t {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		for j, s := range tag {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = AppendEscaped(dst, s)
		}
		dst = append(dst, ']')
	}
	dst = append(dst, ']')
	return dst
}
