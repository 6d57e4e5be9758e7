package util

import "testing"

func TestDigestStable(t *testing.T) {
	a := Digest([]byte("config"))
	if a != Digest([]byte("config")) {
		t.Fatalf("digest not stable")
	}
	if len(a) != 32 {
		t.Fatalf("digest len=%d want 32", len(a))
	}
	if a == Digest([]byte("other")) {
		t.Fatalf("digest collision on different input")
	}
}

func TestSafeKeyRoundTrip(t *testing.T) {
	for _, u := range []string{"a.js", "https://cdn.example.com/lib/app.min.js?v=1#x", "/img/ü.png"} {
		k := SafeKey(u)
		for _, r := range k {
			ok := r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				t.Fatalf("SafeKey(%q)=%q contains %q", u, k, r)
			}
		}
		back, err := FromSafeKey(k)
		if err != nil || back != u {
			t.Fatalf("FromSafeKey(%q)=%q,%v want %q", k, back, err, u)
		}
	}
	if RecordKey("ns", "a.js") != "res:ns:a.js" {
		t.Fatalf("unexpected record key %q", RecordKey("ns", "a.js"))
	}
}
