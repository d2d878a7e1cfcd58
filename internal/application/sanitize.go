package application

import (
	"net/netip"
	"regexp"
	"strings"
)

// maxErrorMessageLen bounds persisted error messages.
const maxErrorMessageLen = 200

// Well-known OS error codes and Go net error phrases mapped to human text.
// A match replaces the whole message, which also drops any embedded
// addresses the original carried.
var errnoPhrases = []struct {
	needle string
	phrase string
}{
	{"ECONNREFUSED", "Connection refused"},
	{"connection refused", "Connection refused"},
	{"ETIMEDOUT", "Connection timed out"},
	{"context deadline exceeded", "Connection timed out"},
	{"i/o timeout", "Connection timed out"},
	{"ENOTFOUND", "DNS lookup failed"},
	{"no such host", "DNS lookup failed"},
	{"ECONNRESET", "Connection reset by peer"},
	{"connection reset", "Connection reset by peer"},
	{"EHOSTUNREACH", "Host unreachable"},
	{"no route to host", "Host unreachable"},
	{"ENETUNREACH", "Network unreachable"},
	{"network is unreachable", "Network unreachable"},
	{"EPIPE", "Broken pipe"},
	{"broken pipe", "Broken pipe"},
}

var (
	httpStatusRe = regexp.MustCompile(`HTTP[/ ](\d{3})(?::?\s*[A-Za-z][A-Za-z '-]*)?`)
	urlRe        = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"'<>]+`)
	ipv4Re       = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d{1,5})?\b`)
	ipv6Re       = regexp.MustCompile(`\[?(?:[0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{0,4}\]?(?::\d{1,5})?`)
	pathRe       = regexp.MustCompile(`(?:/[\w.-]+){2,}/?`)
)

// SanitizeErrorMessage scrubs an error message before it is persisted or
// emitted. Embedded private/loopback/link-local IPs, URLs, and filesystem
// paths become redacted tokens; known OS error codes become human phrases;
// HTTP status noise collapses to "HTTP NNN"; the result is truncated to 200
// characters. Raw messages never cross this boundary.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	lower := strings.ToLower(msg)
	for _, e := range errnoPhrases {
		if strings.Contains(lower, strings.ToLower(e.needle)) {
			return e.phrase
		}
	}

	msg = httpStatusRe.ReplaceAllString(msg, "HTTP $1")
	msg = urlRe.ReplaceAllString(msg, "[redacted-url]")

	msg = ipv4Re.ReplaceAllStringFunc(msg, func(match string) string {
		host := match
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		if addr, err := netip.ParseAddr(host); err == nil && !publicAddr(addr) {
			return "[redacted-ip]"
		}
		return match
	})
	msg = ipv6Re.ReplaceAllStringFunc(msg, func(match string) string {
		host := strings.Trim(match, "[]")
		if i := strings.LastIndexByte(match, ']'); i >= 0 && i+1 < len(match) {
			host = strings.Trim(match[:i], "[]")
		}
		if addr, err := netip.ParseAddr(host); err == nil && !publicAddr(addr) {
			return "[redacted-ip]"
		}
		return match
	})

	msg = pathRe.ReplaceAllString(msg, "[redacted-path]")

	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen-3] + "..."
	}
	return msg
}
