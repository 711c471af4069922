//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Well-known host addresses used across examples and tests, so a
// scenario doesn't have to invent fresh IPs and hostnames every time.
//

package netsim

import "net/netip"

// MustNewGoogleDNSHost attaches dns.google's addresses to link on t,
// registers its hostnames in t's DNS database, and returns a
// [*HostContext] for it.
func (t *Topology) MustNewGoogleDNSHost(sim *Simulation, link string) *HostContext {
	addrs := mustParseAddrs("2001:4860:4860::8888", "8.8.8.8")
	t.attachAll(addrs, link)
	t.DNS().AddAddresses([]string{"dns.google", "dns.google.com"}, addrs)
	return sim.Host(addrs...)
}

// MustNewExampleComHost attaches example.com's addresses to link on t,
// registers its hostnames, and returns a [*HostContext] for it.
func (t *Topology) MustNewExampleComHost(sim *Simulation, link string) *HostContext {
	addrs := mustParseAddrs("2606:2800:21f:cb07:6820:80da:af6b:8b2c", "93.184.216.34")
	t.attachAll(addrs, link)
	t.DNS().AddAddresses([]string{
		"www.example.com", "example.com",
		"www.example.org", "example.org",
	}, addrs)
	return sim.Host(addrs...)
}

// MustNewClientHost attaches a client's addresses to link on t and
// returns a [*HostContext] for it. It uses GARR's (Italian Research &
// Education Network) public addresses — 193.206.158.22 and
// 2001:760:0:158::22 — chosen over documentation ranges like
// 192.0.2.0/24 so they don't trip bogon filters in scenarios that
// check for those.
func (t *Topology) MustNewClientHost(sim *Simulation, link string) *HostContext {
	addrs := mustParseAddrs("193.206.158.22", "2001:760:0:158::22")
	t.attachAll(addrs, link)
	return sim.Host(addrs...)
}

// MustNewBlockpageHost attaches a censorship-blockpage host's address
// to link on t and returns a [*HostContext] for it. It carries no DNS
// registration of its own — scenarios exercising DNS-based blocking
// typically point an existing name at this address instead.
func (t *Topology) MustNewBlockpageHost(sim *Simulation, link string) *HostContext {
	addrs := mustParseAddrs("10.10.34.35")
	t.attachAll(addrs, link)
	return sim.Host(addrs...)
}

func (t *Topology) attachAll(addrs []netip.Addr, link string) {
	for _, a := range addrs {
		t.MustAttach(a, link)
	}
}

func mustParseAddrs(literals ...string) []netip.Addr {
	addrs := make([]netip.Addr, len(literals))
	for i, s := range literals {
		addrs[i] = netip.MustParseAddr(s)
	}
	return addrs
}
