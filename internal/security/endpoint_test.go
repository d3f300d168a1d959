package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBackendURL_AcceptsPublicEndpoints(t *testing.T) {
	for _, rawURL := range []string{
		"https://8.8.8.8/simulate",
		"http://1.1.1.1:8545",
	} {
		assert.NoError(t, ValidateBackendURL(rawURL), rawURL)
	}
}

func TestValidateBackendURL_RejectsInternalAddressSpace(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
	}{
		{"loopback", "http://127.0.0.1:8545"},
		{"private 10/8", "https://10.0.0.5/simulate"},
		{"private 192.168/16", "http://192.168.1.1"},
		{"link-local", "http://169.254.169.254/latest/meta-data"},
		{"unspecified", "http://0.0.0.0:8080"},
		{"ipv6 loopback", "http://[::1]:8545"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, ValidateBackendURL(tc.rawURL))
		})
	}
}

func TestValidateBackendURL_RejectsBlockedHostnames(t *testing.T) {
	for _, rawURL := range []string{
		"http://localhost:8545",
		"http://LOCALHOST:8545",
		"http://metadata.google.internal/computeMetadata/v1/",
	} {
		assert.Error(t, ValidateBackendURL(rawURL), rawURL)
	}
}

func TestValidateBackendURL_RejectsMalformedURLs(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
	}{
		{"bad scheme", "ftp://simulator.example.org"},
		{"no host", "https://"},
		{"not a url", "://nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, ValidateBackendURL(tc.rawURL))
		})
	}
}
