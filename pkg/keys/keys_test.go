package keys

import (
	"strings"
	"testing"
)

func TestGeneratePrivateKey(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		sk, err := GeneratePrivateKey()
		if err != nil {
			t.Fatal(err)
		}
		if !IsValid32ByteHex(sk) {
			t.Fatalf("generated key is not 64 chars of lowercase hex: '%s'", sk)
		}
		if _, ok := seen[sk]; ok {
			t.Fatalf("generated the same key twice: %s", sk)
		}
		seen[sk] = struct{}{}
		pk, err := GetPublicKey(sk)
		if err != nil {
			t.Fatalf("failed to derive public key: %s", err)
		}
		if !IsValid32ByteHex(pk) {
			t.Fatalf("derived pubkey is not 64 chars of lowercase hex: '%s'", pk)
		}
	}
}

func TestGetPublicKeyDeterministic(t *testing.T) {
	sk, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	pk1, err := GetPublicKey(sk)
	if err != nil {
		t.Fatal(err)
	}
	pk2, err := GetPublicKey(sk)
	if err != nil {
		t.Fatal(err)
	}
	if pk1 != pk2 {
		t.Fatalf("same secret key derived two pubkeys: %s %s", pk1, pk2)
	}
}

func TestIsValid32ByteHex(t *testing.T) {
	sk, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{
		"",
		sk[:63],
		sk + "00",
		strings.ToUpper(sk),
		"zz" + sk[2:],
	} {
		if IsValid32ByteHex(bad) {
			t.Fatalf("accepted invalid key string '%s'", bad)
		}
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	reID, err := FromSecretKey(id.Sec)
	if err != nil {
		t.Fatal(err)
	}
	if reID.Pub != id.Pub {
		t.Fatalf("rederived pubkey differs: %s vs %s", reID.Pub, id.Pub)
	}
	npub, err := id.Npub()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(npub, "npub1") {
		t.Fatalf("npub has wrong prefix: %s", npub)
	}
	nsec, err := id.Nsec()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(nsec, "nsec1") {
		t.Fatalf("nsec has wrong prefix: %s", nsec)
	}
}
