package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLGuard keeps fetch tools away from private networks, localhost and
// link-local addresses.
type URLGuard struct {
	blockedNetworks []*net.IPNet
	resolver        *net.Resolver
}

var blockedCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"0.0.0.0/8",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
	"ff00::/8",
}

// NewURLGuard creates a guard with the default blocklist.
func NewURLGuard() *URLGuard {
	g := &URLGuard{resolver: net.DefaultResolver}
	for _, cidr := range blockedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			g.blockedNetworks = append(g.blockedNetworks, network)
		}
	}
	return g
}

// Check rejects non-http(s) URLs and hosts that resolve to a blocked
// address. Every resolved address is checked.
func (g *URLGuard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing hostname")
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("localhost is not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		if g.blocked(ip) {
			return fmt.Errorf("blocked address %s", ip)
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed: %w", err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%s resolved to no addresses", host)
	}
	for _, a := range addrs {
		if g.blocked(a.IP) {
			return fmt.Errorf("%s resolves to blocked address %s", host, a.IP)
		}
	}
	return nil
}

func (g *URLGuard) blocked(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, network := range g.blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
