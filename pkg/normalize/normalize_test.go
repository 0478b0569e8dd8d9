package normalize

import "testing"

func TestURL(t *testing.T) {
	cases := map[string]string{
		"":                                 "",
		"wss://x.com":                      "wss://x.com",
		"ws://x.com":                       "ws://x.com",
		"WSS://X.COM":                      "wss://x.com",
		"x.com":                            "wss://x.com",
		"x.com/":                           "wss://x.com",
		"x.com/path/":                      "wss://x.com/path",
		"http://x.com":                     "ws://x.com",
		"https://x.com":                    "wss://x.com",
		"  wss://x.com  ":                  "wss://x.com",
		"wss://x.com:4443/":                "wss://x.com:4443",
		"localhost:4036":                   "wss://localhost:4036",
	}
	for in, want := range cases {
		if got := URL(in); got != want {
			t.Fatalf("URL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestURLIdempotent(t *testing.T) {
	for _, in := range []string{"x.com", "http://x.com/relay/", "WSS://A.B/"} {
		once := URL(in)
		if twice := URL(once); twice != once {
			t.Fatalf("URL not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
