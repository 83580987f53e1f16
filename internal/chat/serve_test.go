package chat

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.RemoteAddr = "203.0.113.9:52000"

	s, ip, err := clientAddr(req)
	if err != nil {
		t.Fatalf("clientAddr() error = %v", err)
	}
	if s != "203.0.113.9" {
		t.Errorf("clientAddr() string = %q, want 203.0.113.9", s)
	}
	if ip != 0xcb007109 {
		t.Errorf("clientAddr() ip = %#x, want 0xcb007109", ip)
	}
}

func TestClientAddr_ForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")

	s, _, err := clientAddr(req)
	if err != nil {
		t.Fatalf("clientAddr() error = %v", err)
	}
	if s != "198.51.100.4" {
		t.Errorf("clientAddr() string = %q, want the first forwarded entry", s)
	}
}

func TestClientAddr_Unparseable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("X-Forwarded-For", "garbage")

	// The handshake handler rejects connections whose address cannot be
	// resolved; they could otherwise never be matched by an IP ban.
	if _, _, err := clientAddr(req); err == nil {
		t.Error("clientAddr() accepted an unparseable address")
	}
}
