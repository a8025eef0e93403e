package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme is returned for anything other than http and https.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// ErrHostNotAllowed is returned when the host policy rejects a URL.
var ErrHostNotAllowed = errors.New("host not allowed")

// HostPolicy decides which hosts may be fetched. Deny entries take
// precedence over Allow; a non-empty Allow list admits only the listed
// domains and their subdomains.
type HostPolicy struct {
	Allow []string
	Deny  []string
	// AllowPrivateHosts permits loopback, private and link-local targets.
	AllowPrivateHosts bool
}

// Check parses rawURL and applies the policy.
func (p HostPolicy) Check(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("missing host in %q", rawURL)
	}
	if !p.AllowPrivateHosts && isLocalOrPrivateHost(host) {
		return nil, fmt.Errorf("%w: private host %s", ErrHostNotAllowed, host)
	}
	for _, d := range p.Deny {
		if matchesDomain(host, d) {
			return nil, fmt.Errorf("%w: %s is denied", ErrHostNotAllowed, host)
		}
	}
	if len(p.Allow) > 0 {
		for _, d := range p.Allow {
			if matchesDomain(host, d) {
				return u, nil
			}
		}
		return nil, fmt.Errorf("%w: %s is not allowlisted", ErrHostNotAllowed, host)
	}
	return u, nil
}

// CheckRedirect returns an http.Client redirect hook that applies the policy
// to every hop and stops after maxHops (5 when zero or negative).
func (p HostPolicy) CheckRedirect(maxHops int) func(*http.Request, []*http.Request) error {
	if maxHops <= 0 {
		maxHops = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return errors.New("too many redirects")
		}
		if _, err := p.Check(req.URL.String()); err != nil {
			return fmt.Errorf("redirect: %w", err)
		}
		return nil
	}
}

func matchesDomain(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.Trim(strings.ToLower(strings.TrimSpace(host)), "[]")
	if h == "localhost" || strings.HasSuffix(h, ".localhost") || h == "localhost.localdomain" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
	}
	return false
}
