package relay

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// ErrUnsafeURL is returned for relay URLs that are malformed or point at
// private address space.
var ErrUnsafeURL = errors.New("relay URL blocked: unsafe destination")

// NormalizeRelayURL validates a relay URL and returns it lowercased with
// any trailing slash removed. Loopback hosts are always allowed; other
// private or link-local literal IPs and internal host suffixes are
// rejected unless allowPrivate is set.
func NormalizeRelayURL(relayURL string, allowPrivate bool) (string, error) {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" || !strings.Contains(relayURL, "://") {
		return "", ErrUnsafeURL
	}

	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 {
		return "", ErrUnsafeURL
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return "", ErrUnsafeURL
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return "", ErrUnsafeURL
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" || strings.Contains(host, " ") {
		return "", ErrUnsafeURL
	}

	if !allowPrivate && !isLoopbackHost(host) {
		if isInternalHost(host) {
			return "", ErrUnsafeURL
		}
		if ip := net.ParseIP(host); ip != nil && !isRelayIPSafe(ip) {
			return "", ErrUnsafeURL
		}
	}

	result := scheme + "://" + host
	if parsed.Port() != "" {
		result = scheme + "://" + net.JoinHostPort(host, parsed.Port())
	} else if strings.Contains(host, ":") {
		result = scheme + "://[" + host + "]"
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += strings.TrimSuffix(parsed.Path, "/")
	}
	return result, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func isInternalHost(host string) bool {
	return strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") ||
		strings.HasSuffix(host, ".localhost")
}

// isRelayIPSafe blocks private, link-local, unspecified and multicast ranges
func isRelayIPSafe(ip net.IP) bool {
	if ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	return true
}
