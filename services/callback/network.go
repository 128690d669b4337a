package callback

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"sort"
	"strings"

	"kinads-controlplane/pkg/config"
)

const IronSource = "IRONSOURCE"

// Network describes how one ad network signs its callbacks and where they
// may come from.
type Network struct {
	Name       string
	PrivateKey string
	Allowed    []netip.Prefix

	// parse extracts the callback fields from the query string.
	parse func(q url.Values) Callback
	// canonical returns the string the network signs with the private key.
	canonical func(cb Callback, privateKey string) string
}

// defaultIronSourceCIDRs are the published IronSource callback servers.
var defaultIronSourceCIDRs = []string{
	"79.125.5.179/32",
	"79.125.26.193/32",
	"79.125.117.130/32",
	"176.34.224.39/32",
	"176.34.224.40/32",
	"176.34.224.41/32",
	"176.34.224.42/32",
}

func ironSource() *Network {
	return &Network{
		Name:    IronSource,
		Allowed: mustPrefixes(defaultIronSourceCIDRs),
		parse: func(q url.Values) Callback {
			cb := Callback{
				Network:   IronSource,
				AppKey:    q.Get("appKey"),
				EventID:   q.Get("eventId"),
				Rewards:   q.Get("rewards"),
				Timestamp: q.Get("timestamp"),
				UserID:    q.Get("userId"),
				Signature: q.Get("signature"),
			}
			for key := range q {
				if strings.HasPrefix(key, "custom_") {
					cb.Passthrough = append(cb.Passthrough, Param{Key: key, Value: q.Get(key)})
				}
			}
			sort.Slice(cb.Passthrough, func(i, j int) bool { return cb.Passthrough[i].Key < cb.Passthrough[j].Key })
			return cb
		},
		canonical: func(cb Callback, privateKey string) string {
			return cb.Timestamp + cb.EventID + cb.UserID + cb.Rewards + privateKey
		},
	}
}

// NewNetworks returns the built-in networks with overrides from config.
// Configured CIDRs replace the built-in allow-list.
func NewNetworks(overrides map[string]config.Network) (map[string]*Network, error) {
	networks := map[string]*Network{
		IronSource: ironSource(),
	}

	for name, o := range overrides {
		network, ok := networks[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
		}
		if o.PrivateKey != "" {
			network.PrivateKey = o.PrivateKey
		}
		if len(o.CIDRs) > 0 {
			prefixes, err := parsePrefixes(o.CIDRs)
			if err != nil {
				return nil, fmt.Errorf("network %s: %w", name, err)
			}
			network.Allowed = prefixes
		}
	}

	return networks, nil
}

// Parse extracts the callback fields and the originating address.
func (n *Network) Parse(req Request) Callback {
	cb := n.parse(req.Query)
	cb.SourceIP = SourceIP(req.ForwardedFor, req.RemoteAddr)
	return cb
}

// Sign returns the lowercase hex MD5 digest the network would send.
func (n *Network) Sign(cb Callback, privateKey string) string {
	sum := md5.Sum([]byte(n.canonical(cb, privateKey)))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares the supplied signature case-insensitively.
func (n *Network) VerifySignature(cb Callback, privateKey string) bool {
	expected := n.Sign(cb, privateKey)
	got := strings.ToLower(strings.TrimSpace(cb.Signature))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// AllowsIP reports whether ip falls inside one of the network's ranges.
func (n *Network) AllowsIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range n.Allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// SourceIP returns the first X-Forwarded-For entry, falling back to the
// connection's remote address when the header is absent.
func SourceIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func parsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if !strings.Contains(cidr, "/") {
			addr, err := netip.ParseAddr(cidr)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

func mustPrefixes(cidrs []string) []netip.Prefix {
	prefixes, err := parsePrefixes(cidrs)
	if err != nil {
		panic(err)
	}
	return prefixes
}
