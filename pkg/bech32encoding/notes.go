package bech32encoding

// EncodeNote encodes a hex event id as a bech32 string (note).
func EncodeNote(eventIDHex string) (s string, err error) {
	return encode(NoteHRP, eventIDHex)
}

// DecodeNote decodes a note back to the hex event id.
func DecodeNote(encoded string) (eventIDHex string, err error) {
	return decode(NoteHRP, encoded)
}
