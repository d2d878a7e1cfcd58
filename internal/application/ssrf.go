package application

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// blockedHostnames are names that always resolve to infrastructure the
// poller must never reach, regardless of DNS.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// ValidateEndpointURL rejects URLs that could be used for SSRF: non-HTTP
// schemes, credentials in the URL, loopback/private/link-local addresses,
// and well-known blocked hostnames. Validation is static; no DNS lookup or
// outbound request is performed.
func ValidateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme %q not allowed", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("URL must not carry credentials")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	if blockedHostnames[host] || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("host %q is blocked", host)
	}

	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if !publicAddr(addr) {
			return fmt.Errorf("IP address %s is blocked", addr)
		}
	}

	return nil
}

// publicAddr reports whether the address is routable outside the host's own
// network: not loopback, private, link-local, unspecified, or multicast.
func publicAddr(addr netip.Addr) bool {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsUnspecified(),
		addr.IsMulticast():
		return false
	}
	return true
}
