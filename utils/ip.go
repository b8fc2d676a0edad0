package utils

import (
	"net"
	"net/netip"
	"strings"
)

// ClientIP picks the address a request came from. X-Real-IP is trusted first,
// then the first hop of X-Forwarded-For, then the connection address.
// IPv4-mapped IPv6 addresses are reduced to their IPv4 form.
func ClientIP(realIP, forwardedFor, remoteAddr string) string {
	if ip := strings.TrimSpace(realIP); ip != "" {
		return NormalizeIP(ip)
	}
	if forwardedFor != "" {
		first := forwardedFor
		if i := strings.IndexByte(first, ','); i >= 0 {
			first = first[:i]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return NormalizeIP(ip)
		}
	}
	return NormalizeIP(remoteAddr)
}

func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	addr, err := netip.ParseAddr(strings.Trim(ip, "[]"))
	if err != nil {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return addr.Unmap().WithZone("").String()
}
