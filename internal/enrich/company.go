// Package enrich identifies the company behind a visitor IP from its reverse
// DNS name. Residential, mobile and cloud hostnames are rejected.
package enrich

import (
	"context"
	"net"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/pkg/ttlcache"
)

// DefaultCacheTTL is how long a lookup result, including a miss, is reused.
const DefaultCacheTTL = 24 * time.Hour

// Company is an identified organisation.
type Company struct {
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	Source     string `json:"source"`
	Confidence string `json:"confidence"`
}

// Resolver performs reverse DNS. *net.Resolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

var ispPatterns = compileAll(
	// national and regional ISPs
	`comcast`, `xfinity`, `verizon`, `fios`, `att\.net`, `att\.com`, `charter`,
	`spectrum`, `cox\.net`, `cox\.com`, `centurylink`, `lumen`, `frontier`,
	`optimum`, `altice`, `suddenlink`, `mediacom`, `windstream`, `earthlink`,
	`hughesnet`, `starlink`, `rcn\.com`, `rcn\.net`, `astound`, `wow\.com`,
	`wowway`, `breezeline`, `atlantic\.net`, `consolidated`, `tds\.net`, `ziply`,
	`metronet`, `fidium`, `google\s*fiber`, `sonic\.net`, `ting`,
	// mobile carriers
	`t-mobile`, `tmobile`, `sprint`, `boost`, `cricket`, `metro\s*pcs`,
	`tracfone`, `visible`, `mint\s*mobile`, `us\s*cellular`,
	`netzero`, `aol\.com`, `juno`,
	// generic access-network words
	`dynamic`, `dhcp`, `pool`, `\bdsl\b`, `\bcable\b`, `residential`,
	`broadband`, `\bwireless\b`, `\bmobile\b`, `\bppp\b`, `\bdial`, `\bisp\b`,
	`\btelco\b`,
	// cloud and CDN
	`amazonaws\.com`, `googleusercontent\.com`, `\bazure`, `cloudflare`,
	`akamaitechnologies`, `fastly`, `digitalocean`, `linode`, `vultr`,
	`heroku`, `netlify`, `vercel`,
	`localhost`, `localdomain`, `\.local$`, `\.internal$`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var secondLevel = map[string]bool{"co": true, "com": true, "org": true, "net": true, "gov": true, "edu": true, "ac": true}

var genericLabels = map[string]bool{
	"www": true, "mail": true, "smtp": true, "ftp": true, "vpn": true, "remote": true,
	"proxy": true, "gw": true, "gateway": true, "ns": true, "dns": true,
}

// Lookup resolves IPs to companies with a TTL cache in front of DNS.
type Lookup struct {
	resolver Resolver
	cache    *ttlcache.Cache[string, *Company]
	timeout  time.Duration
}

// NewLookup creates a lookup. A nil resolver uses net.DefaultResolver and a
// nil clock uses time.Now.
func NewLookup(resolver Resolver, ttl time.Duration, clock func() time.Time) *Lookup {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Lookup{
		resolver: resolver,
		cache:    ttlcache.New[string, *Company](ttl, clock),
		timeout:  2 * time.Second,
	}
}

// Company returns the company for ip, or nil when it is private, unresolvable
// or looks like an access network.
func (l *Lookup) Company(ctx context.Context, ip string) *Company {
	if !IsPublicIP(ip) {
		return nil
	}
	if c, ok := l.cache.Get(ip); ok {
		return c
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var found *Company
	names, err := l.resolver.LookupAddr(ctx, ip)
	if err != nil {
		logger.Debug("reverse DNS failed", "error", err.Error())
	}
	for _, name := range names {
		if c := CompanyFromHostname(name); c != nil {
			found = c
			break
		}
	}

	l.cache.Set(ip, found)
	return found
}

// CacheSize returns the number of live cache entries.
func (l *Lookup) CacheSize() int {
	return l.cache.Len()
}

// IsPublicIP reports whether ip parses and is not private, loopback, or
// link-local.
func IsPublicIP(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified())
}

// IsISPHostname reports whether a PTR name belongs to an ISP, carrier, or
// cloud provider.
func IsISPHostname(host string) bool {
	for _, re := range ispPatterns {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}

// CompanyFromHostname derives a company from a PTR name such as
// "vpn.corp.acme-legal.co.uk.".
func CompanyFromHostname(host string) *Company {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if IsISPHostname(host) {
		return nil
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return nil
	}

	last := len(parts) - 1
	var label, domain string
	if len(parts) >= 3 && secondLevel[parts[last-1]] {
		label = parts[last-2]
		domain = strings.Join(parts[last-2:], ".")
	} else {
		label = parts[last-1]
		domain = strings.Join(parts[last-1:], ".")
	}
	if len(label) < 2 || genericLabels[label] {
		return nil
	}

	words := strings.Split(label, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return &Company{
		Name:       strings.Join(words, " "),
		Domain:     domain,
		Source:     "reverse_dns",
		Confidence: "low",
	}
}
