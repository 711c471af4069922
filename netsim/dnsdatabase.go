//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// The shared DNS database backing [Configuration.HostnameLookup] (spec
// §4.8).
//

package netsim

import (
	"net"
	"net/netip"

	"github.com/miekg/dns"
	"github.com/rbmk-project/common/runtimex"
)

// dnsDatabase models the global name database consulted by a
// [Resolver]. Lookups are synchronous and resolve CNAME chains inline;
// any latency a resolver wants to impose on top of this is the
// [Resolver]'s concern, not the database's, matching the clean split
// the original simulator draws between "how long to resolve" and
// "what the answer is".
type dnsDatabase struct {
	names map[string][]dns.RR
}

// newDNSDatabase creates an empty database.
func newDNSDatabase() *dnsDatabase {
	return &dnsDatabase{names: make(map[string][]dns.RR)}
}

// AddCNAME adds a CNAME alias from name to alias.
//
// This method IS NOT goroutine safe.
func (dd *dnsDatabase) AddCNAME(name, alias string) {
	header := dns.RR_Header{
		Name:   dns.CanonicalName(name),
		Rrtype: dns.TypeCNAME,
		Class:  dns.ClassINET,
		Ttl:    3600,
	}
	dd.names[dns.CanonicalName(name)] = append(dd.names[dns.CanonicalName(name)], &dns.CNAME{
		Hdr:    header,
		Target: dns.CanonicalName(alias),
	})
}

// AddAddresses adds A/AAAA records mapping each of domainNames to each
// of addresses.
//
// This method IS NOT goroutine safe.
func (dd *dnsDatabase) AddAddresses(domainNames []string, addresses []netip.Addr) {
	for _, name := range domainNames {
		canon := dns.CanonicalName(name)
		for _, addr := range addresses {
			ip := net.IP(addr.AsSlice())
			header := dns.RR_Header{
				Name:  canon,
				Class: dns.ClassINET,
				Ttl:   3600,
			}
			var rr dns.RR
			if addr.Is4() {
				header.Rrtype = dns.TypeA
				rr = &dns.A{Hdr: header, A: ip}
			} else {
				header.Rrtype = dns.TypeAAAA
				rr = &dns.AAAA{Hdr: header, AAAA: ip}
			}
			dd.names[canon] = append(dd.names[canon], rr)
		}
	}
}

// Lookup returns the addresses on file for name, following CNAME
// chains, or nil if name is not present in the database.
func (dd *dnsDatabase) Lookup(name string) []netip.Addr {
	const maxRedirects = 10
	canon := dns.CanonicalName(name)
	for i := 0; i < maxRedirects; i++ {
		rrs, found := dd.names[canon]
		if !found {
			return nil
		}

		var addrs []netip.Addr
		var cname string
		for _, rr := range rrs {
			switch rr := rr.(type) {
			case *dns.A:
				addr, ok := netip.AddrFromSlice(rr.A.To4())
				runtimex.Assert(ok, "bad A record address")
				addrs = append(addrs, addr)
			case *dns.AAAA:
				addr, ok := netip.AddrFromSlice(rr.AAAA.To16())
				runtimex.Assert(ok, "bad AAAA record address")
				addrs = append(addrs, addr)
			case *dns.CNAME:
				if cname == "" {
					cname = rr.Target
				}
			}
		}
		if len(addrs) > 0 {
			return addrs
		}
		if cname == "" {
			return nil
		}
		canon = cname
	}
	return nil
}
