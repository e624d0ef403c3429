package transport

import (
	"fmt"
	"net/url"
)

// NormalizeEndpoint turns a host:port, tcp:// or http(s):// address into a
// websocket URL.
func NormalizeEndpoint(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		// "localhost:8081" parses with scheme "localhost"; retry with a scheme.
		u, err = url.Parse("ws://" + addr)
		if err != nil {
			return "", fmt.Errorf("invalid websocket URL %q: %w", addr, err)
		}
	}
	switch u.Scheme {
	case "ws", "wss":
	case "", "tcp", "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, addr)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}
