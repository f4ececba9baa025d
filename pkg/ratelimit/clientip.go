package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP resolves the address a request is counted against.
//
// X-Forwarded-For and X-Real-IP are written by whoever sent the request, so
// they are only believed when the TCP peer is one of the trusted proxies. A
// client talking to the server directly could otherwise put a fresh address
// in the header on every attempt and never fill a window.
//
// Resolution, for a request whose peer is a trusted proxy:
//  1. X-Forwarded-For, walked right to left. Each trusted hop is skipped; the
//     first untrusted address is the client. Anything left of it was written
//     by the client and is ignored.
//  2. X-Real-IP, when X-Forwarded-For is absent or unparsable.
//  3. The peer itself.
//
// Any other peer is the client, whatever the headers say.
type ClientIP struct {
	trusted []netip.Prefix
}

// NewClientIP returns a resolver trusting the given proxy ranges. With no
// ranges every request is keyed by its TCP peer.
func NewClientIP(trusted []netip.Prefix) *ClientIP {
	return &ClientIP{trusted: trusted}
}

// Resolve returns the client address of r as a string.
func (c *ClientIP) Resolve(r *http.Request) string {
	peer, ok := parseHostPort(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if c == nil || !c.isTrusted(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			addr = addr.Unmap()
			if !c.isTrusted(addr) {
				return addr.String()
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}

	return peer.String()
}

func (c *ClientIP) isTrusted(addr netip.Addr) bool {
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseHostPort(remote string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
