package relay

// Config describes one relay in the pool's relay set: its websocket URL
// and the directions it is used in. Immutable for the life of a session.
type Config struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}
