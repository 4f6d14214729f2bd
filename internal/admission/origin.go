package admission

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// privateV4Blocks are the IPv4 ranges never accepted as a download origin:
// RFC 1918 private space, loopback, and link-local.
var privateV4Blocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
)

func mustParseCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, block := range blocks {
		_, ipNet, err := net.ParseCIDR(block)
		if err != nil {
			panic(fmt.Sprintf("parse cidr %q: %v", block, err))
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// CheckOrigin decides whether a URL may be fetched at all. Only plain http
// and https are allowed, and the host must not be localhost or an IPv4
// literal inside a private, loopback, or link-local range.
//
// Hostnames that are not IPv4 literals pass unchecked: a DNS name that
// resolves to an internal address at connect time slips through, as does
// an IPv6 literal. Closing that gap needs a resolved-address recheck on
// every connection, which this layer does not do. Redirects followed
// during retrieval are not re-validated either.
func CheckOrigin(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return reject(ReasonInvalidURLFormat, "parse url: %v", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return reject(ReasonDisallowedScheme, "scheme %q is not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return reject(ReasonInvalidURLFormat, "url has no host")
	}
	if strings.EqualFold(host, "localhost") {
		return reject(ReasonDisallowedOrigin, "host %q is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			for _, block := range privateV4Blocks {
				if block.Contains(v4) {
					return reject(ReasonDisallowedOrigin, "address %s is in a blocked range", host)
				}
			}
		}
	}
	return nil
}
