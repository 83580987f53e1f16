// Package ipaddr converts between dotted-quad IPv4 strings and their
// integer form, which is how ban records and message rows store addresses.
package ipaddr

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FromRequest extracts the client's IPv4 address from an upgrade request.
// A proxy-supplied X-Forwarded-For entry wins over the transport peer
// address.
func FromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ToInt converts an IPv4 address string to its numeric form.
func ToInt(address string) (uint32, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return 0, fmt.Errorf("ipaddr: invalid address %q", address)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("ipaddr: not an IPv4 address %q", address)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}

// FromInt converts a numeric IPv4 address back to dotted-quad form.
func FromInt(n uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", n>>24&255, n>>16&255, n>>8&255, n&255)
}

// IsValid reports whether a string is a valid IPv4 address.
func IsValid(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
