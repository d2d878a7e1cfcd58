package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeErrorMessage_ErrnoPhrases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dial tcp 10.0.0.5:8080: connect: connection refused", "Connection refused"},
		{"connect ECONNREFUSED", "Connection refused"},
		{"Get \"https://a/health\": context deadline exceeded", "Connection timed out"},
		{"read tcp 192.168.1.4:443: i/o timeout", "Connection timed out"},
		{"ETIMEDOUT", "Connection timed out"},
		{"lookup svc.internal: no such host", "DNS lookup failed"},
		{"getaddrinfo ENOTFOUND svc", "DNS lookup failed"},
		{"read: connection reset by peer", "Connection reset by peer"},
		{"connect: no route to host", "Host unreachable"},
		{"connect: network is unreachable", "Network unreachable"},
		{"write: broken pipe", "Broken pipe"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeErrorMessage(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeErrorMessage_CollapsesHTTPStatus(t *testing.T) {
	assert.Equal(t, "HTTP 500", SanitizeErrorMessage("HTTP 500: Internal Server Error"))
	assert.Equal(t, "HTTP 404", SanitizeErrorMessage("HTTP 404"))
	assert.Equal(t, "upstream returned HTTP 503", SanitizeErrorMessage("upstream returned HTTP/503 Service Unavailable"))
}

func TestSanitizeErrorMessage_RedactsURLs(t *testing.T) {
	got := SanitizeErrorMessage(`request to https://internal.corp/admin?token=abc failed badly`)
	assert.NotContains(t, got, "internal.corp")
	assert.NotContains(t, got, "token=abc")
	assert.Contains(t, got, "[redacted-url]")
}

func TestSanitizeErrorMessage_RedactsPrivateIPs(t *testing.T) {
	got := SanitizeErrorMessage("cannot reach 192.168.1.44:9000, giving up")
	assert.NotContains(t, got, "192.168.1.44")
	assert.Contains(t, got, "[redacted-ip]")

	got = SanitizeErrorMessage("cannot reach 127.0.0.1, giving up")
	assert.Contains(t, got, "[redacted-ip]")

	// Public IPs are left alone.
	got = SanitizeErrorMessage("cannot reach 93.184.216.34, giving up")
	assert.Contains(t, got, "93.184.216.34")
}

func TestSanitizeErrorMessage_RedactsPaths(t *testing.T) {
	got := SanitizeErrorMessage("open /var/lib/depsera/data.db: permission denied")
	assert.NotContains(t, got, "/var/lib")
	assert.Contains(t, got, "[redacted-path]")
}

func TestSanitizeErrorMessage_Truncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := SanitizeErrorMessage(long)

	assert.Len(t, got, 200)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSanitizeErrorMessage_Empty(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
}
