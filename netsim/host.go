//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Per-host context: the addresses a simulated machine owns and the
// sockets it creates (spec §4).
//

package netsim

import "net/netip"

// HostContext represents one simulated machine: a set of addresses and
// the [Simulation] it belongs to. Sockets are always created through a
// HostContext so that their local address is always one the host
// actually owns, the same constraint [Configuration.IncomingRoute] and
// [Configuration.OutgoingRoute] rely on.
type HostContext struct {
	sim   *Simulation
	addrs []netip.Addr
}

// Addresses returns the addresses bound to this host.
func (h *HostContext) Addresses() []netip.Addr {
	return append([]netip.Addr{}, h.addrs...)
}

// HasAddress reports whether addr is one of this host's addresses.
func (h *HostContext) HasAddress(addr netip.Addr) bool {
	for _, a := range h.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// NewTCPSocket creates an unconnected [*TCPSocket] owned by this host.
func (h *HostContext) NewTCPSocket() *TCPSocket {
	return newTCPSocket(h)
}

// NewTCPAcceptor creates an unbound [*TCPAcceptor] owned by this host.
func (h *HostContext) NewTCPAcceptor() *TCPAcceptor {
	return newTCPAcceptor(h)
}

// NewUDPSocket creates an unbound [*UDPSocket] owned by this host.
func (h *HostContext) NewUDPSocket() *UDPSocket {
	return newUDPSocket(h)
}

// NewResolver creates a [*Resolver] bound to this host's simulation.
func (h *HostContext) NewResolver() *Resolver {
	return newResolver(h.sim)
}
