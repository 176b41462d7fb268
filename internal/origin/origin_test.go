package origin

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		in       string
		wantNorm string
		wantHost string
		wantOK   bool
	}{
		{"HTTPS://Example.COM:443", "https://example.com", "example.com", true},
		{"http://example.com:80", "http://example.com", "example.com", true},
		{"https://example.com:8443", "https://example.com:8443", "example.com:8443", true},
		{"http://localhost:5173/", "http://localhost:5173", "localhost:5173", true},
		{"http://[::1]:3000", "http://[::1]:3000", "[::1]:3000", true},
		{"null", "null", "", true},
		{"", "", "", false},
		{"ftp://example.com", "", "", false},
		{"https://example.com/path", "", "", false},
		{"https://example.com/?q=1", "", "", false},
		{"https://user@example.com", "", "", false},
		{"https://example.com/#frag", "", "", false},
		{"https://example.com:0", "", "", false},
		{"https://example.com:99999", "", "", false},
		{"example.com", "", "", false},
	}
	for _, tc := range cases {
		norm, host, ok := NormalizeHeader(tc.in)
		if ok != tc.wantOK || norm != tc.wantNorm || host != tc.wantHost {
			t.Fatalf("NormalizeHeader(%q)=(%q,%q,%v), want (%q,%q,%v)", tc.in, norm, host, ok, tc.wantNorm, tc.wantHost, tc.wantOK)
		}
	}
}

func TestIsAllowed(t *testing.T) {
	t.Run("same host by default", func(t *testing.T) {
		if !IsAllowed("https://example.com", "example.com", "example.com:443", nil) {
			t.Fatalf("expected same host to be allowed")
		}
		if !IsAllowed("http://localhost:8000", "localhost:8000", "localhost:8000", nil) {
			t.Fatalf("expected same host:port to be allowed")
		}
		if IsAllowed("https://evil.example.com", "evil.example.com", "example.com", nil) {
			t.Fatalf("expected cross host to be rejected")
		}
		if IsAllowed("null", "", "example.com", nil) {
			t.Fatalf("expected null origin to be rejected by same-host policy")
		}
	})

	t.Run("explicit list", func(t *testing.T) {
		allowed := []string{"http://localhost:5173"}
		if !IsAllowed("http://localhost:5173", "localhost:5173", "api.example.com", allowed) {
			t.Fatalf("expected listed origin to be allowed")
		}
		if IsAllowed("http://localhost:3000", "localhost:3000", "localhost:3000", allowed) {
			t.Fatalf("expected unlisted origin to be rejected even when same host")
		}
	})

	t.Run("wildcard", func(t *testing.T) {
		if !IsAllowed("https://anything.test", "anything.test", "example.com", []string{Wildcard}) {
			t.Fatalf("expected wildcard to allow any origin")
		}
	})
}

func TestPolicyCheck(t *testing.T) {
	p := NewPolicy(nil)

	r := httptest.NewRequest("GET", "http://example.com/new-code", nil)
	if _, ok := p.Check(r); !ok {
		t.Fatalf("expected request without Origin to be allowed")
	}

	r.Header.Set("Origin", "http://example.com")
	if norm, ok := p.Check(r); !ok || norm != "http://example.com" {
		t.Fatalf("Check=(%q,%v), want (%q,true)", norm, ok, "http://example.com")
	}

	r.Header.Set("Origin", "not a url")
	if _, ok := p.Check(r); ok {
		t.Fatalf("expected malformed Origin to be rejected")
	}

	if p.AllowsAny() {
		t.Fatalf("AllowsAny=true for empty list")
	}
	if !NewPolicy([]string{Wildcard}).AllowsAny() {
		t.Fatalf("AllowsAny=false for wildcard list")
	}
}
