package notify

import (
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Webhook target validation errors.
var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrInvalidScheme    = errors.New("only HTTPS allowed")
	ErrEmptyHost        = errors.New("URL must have a host")
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	ErrInvalidPort      = errors.New("only port 443 allowed")
	ErrPrivateIP        = errors.New("private IP addresses not allowed")
)

// carrierNAT is RFC 6598 shared address space, not covered by the
// netip predicates.
var carrierNAT = netip.MustParsePrefix("100.64.0.0/10")

// ValidateTargetURL enforces the rules for org webhook targets: HTTPS
// on the default port, a public hostname, and no address inside the
// deployment's own network. All static checks run before resolution,
// so a hostname that does not resolve yet is accepted here and left to
// fail at delivery time.
func ValidateTargetURL(targetURL string) error {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	if port := parsed.Port(); port != "" && port != "443" {
		return ErrInvalidPort
	}
	if isInternalHostname(host) {
		return ErrLocalhostBlocked
	}

	// IP literals need no resolution.
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Unmap().IsLoopback() {
			return ErrLocalhostBlocked
		}
		if isRestrictedAddr(addr) {
			return ErrPrivateIP
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok && isRestrictedAddr(addr) {
			return ErrPrivateIP
		}
	}
	return nil
}

// isInternalHostname matches names that can never be a public webhook
// target, regardless of what they resolve to.
func isInternalHostname(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" {
		return true
	}
	for _, suffix := range []string{".localhost", ".local", ".internal"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// isRestrictedAddr reports whether deliveries to addr could reach
// infrastructure instead of the open internet.
func isRestrictedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() ||
		carrierNAT.Contains(addr)
}

// ExtractHost extracts the host from a URL for logging. Full target
// URLs stay out of logs; paths and queries may embed secrets.
func ExtractHost(targetURL string) string {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
