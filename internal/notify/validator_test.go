package notify

import (
	"net/netip"
	"testing"
)

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{
			name:    "valid https url",
			url:     "https://example.com/webhook",
			wantErr: nil,
		},
		{
			name:    "valid https with path",
			url:     "https://api.example.com/v1/webhooks",
			wantErr: nil,
		},
		{
			name:    "http not allowed",
			url:     "http://example.com/webhook",
			wantErr: ErrInvalidScheme,
		},
		{
			name:    "localhost blocked",
			url:     "https://localhost/webhook",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    "loopback literal blocked",
			url:     "https://127.0.0.1/webhook",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    ".local domain blocked",
			url:     "https://myserver.local/webhook",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    ".internal domain blocked",
			url:     "https://metadata.internal/webhook",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    "private IP literal blocked",
			url:     "https://10.0.0.12/webhook",
			wantErr: ErrPrivateIP,
		},
		{
			name:    "non-standard port blocked",
			url:     "https://example.com:8443/webhook",
			wantErr: ErrInvalidPort,
		},
		{
			// The port rule is static; it must hold even when the host
			// cannot be resolved.
			name:    "non-standard port blocked without resolution",
			url:     "https://unresolvable.invalid:8443/webhook",
			wantErr: ErrInvalidPort,
		},
		{
			name:    "port 443 allowed",
			url:     "https://example.com:443/webhook",
			wantErr: nil,
		},
		{
			name:    "empty host",
			url:     "https:///webhook",
			wantErr: ErrEmptyHost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetURL(tt.url)
			if err != tt.wantErr {
				t.Errorf("ValidateTargetURL(%q) error = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsRestrictedAddr(t *testing.T) {
	tests := []struct {
		name       string
		addr       string
		restricted bool
	}{
		{"private 10.x", "10.0.0.1", true},
		{"private 172.16.x", "172.16.0.1", true},
		{"private 192.168.x", "192.168.1.1", true},
		{"loopback", "127.0.0.1", true},
		{"link-local", "169.254.1.1", true},
		{"carrier NAT", "100.64.0.1", true},
		{"unspecified", "0.0.0.0", true},
		{"IPv6 loopback", "::1", true},
		{"IPv6 unique local", "fd00::1", true},
		{"mapped private", "::ffff:192.168.1.1", true},
		{"public IP", "8.8.8.8", false},
		{"public IP 2", "93.184.216.34", false},
		{"public IPv6", "2606:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRestrictedAddr(netip.MustParseAddr(tt.addr))
			if got != tt.restricted {
				t.Errorf("isRestrictedAddr(%q) = %v, want %v", tt.addr, got, tt.restricted)
			}
		})
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/webhook", "example.com"},
		{"https://api.example.com:443/v1", "api.example.com:443"},
		{"invalid-url", ""}, // url.Parse is lenient, returns empty host for relative paths
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := ExtractHost(tt.url)
			if got != tt.want {
				t.Errorf("ExtractHost(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
