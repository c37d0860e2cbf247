package lim

import (
	"net/http/httptest"
	"testing"
)

func TestGetRealIPNoProxies(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.5:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	// Without trusted proxies the XFF header is attacker-controlled
	// and must be ignored.
	if got := GetRealIP(r, nil); got != "203.0.113.5" {
		t.Fatalf("got %q, want remote addr", got)
	}
}

func TestGetRealIPTrustedChain(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	got := GetRealIP(r, []string{"10.0.0.0/8"})
	if got != "198.51.100.1" {
		t.Fatalf("got %q, want first untrusted hop", got)
	}
}

func TestGetRealIPUntrustedRemote(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.5:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	got := GetRealIP(r, []string{"10.0.0.0/8"})
	if got != "203.0.113.5" {
		t.Fatalf("got %q, XFF from an untrusted remote must not count", got)
	}
}

func TestGetRealIPSkipsGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, not-an-ip, 10.0.0.2")
	got := GetRealIP(r, []string{"10.0.0.0/8"})
	if got != "198.51.100.1" {
		t.Fatalf("got %q", got)
	}
}

func TestCheckLimitBurstThenDeny(t *testing.T) {
	l := New(60, 3, nil)
	defer l.Stop()

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.5:4000"

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.CheckLimit(r, "create").Allowed {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("got %d allowed, want burst of 3", allowed)
	}
}

func TestCheckLimitPerEndpoint(t *testing.T) {
	l := New(60, 1, nil)
	defer l.Stop()

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.5:4000"

	if !l.CheckLimit(r, "create").Allowed {
		t.Fatal("first create denied")
	}
	if l.CheckLimit(r, "create").Allowed {
		t.Fatal("second create allowed past burst")
	}
	// A different endpoint has its own bucket.
	if !l.CheckLimit(r, "delete").Allowed {
		t.Fatal("delete shares create's bucket")
	}
}

func TestNewPanicsOnBadProxy(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("no panic for invalid proxy")
		}
	}()
	New(60, 1, []string{"not-an-ip"})
}
