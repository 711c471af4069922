//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// The external configuration contract a [Simulation] is built from
// (spec §3/§8).
//

package netsim

import (
	"net/netip"

	"github.com/ssiloti/libsimulator/packet"
	"github.com/ssiloti/libsimulator/vtime"
)

// Configuration supplies everything about the network topology that
// [Simulation] itself has no opinion about: which sinks a packet
// crosses to get from one address to another, the path MTU between two
// addresses, and how a hostname resolves. A [Simulation] is built with
// exactly one Configuration and consults it on every channel open and
// every resolver lookup.
type Configuration interface {
	// ChannelRoute returns the route a freshly opened channel's SYN
	// should traverse to get from src to dst, not including either
	// endpoint's own host-local ingress queue.
	ChannelRoute(src, dst netip.AddrPort) packet.Route

	// IncomingRoute returns the route packets destined for addr travel
	// once they reach addr's host, typically just addr's host-local
	// ingress queue.
	IncomingRoute(addr netip.AddrPort) packet.Route

	// OutgoingRoute returns the route packets leaving addr travel before
	// reaching [Configuration.ChannelRoute]'s network hops, typically
	// just addr's host-local egress queue.
	OutgoingRoute(addr netip.AddrPort) packet.Route

	// PathMTU returns the largest payload, in bytes, that one packet on
	// the path between a and b carries; [packet.Packet] overhead is
	// charged on top of it. TCP uses it as the segment size, and UDP
	// fragments larger datagrams into pieces of this size.
	PathMTU(a, b netip.Addr) int

	// HostnameLookup resolves name to zero or more addresses, or a
	// non-nil error (typically [ErrHostNotFound]) if it does not
	// resolve, along with the virtual-time latency the [Resolver] should
	// apply before delivering the result. It is called synchronously;
	// name is never an IP literal — the [Resolver] short-circuits those
	// itself with zero latency before consulting the configuration.
	HostnameLookup(name string) (addrs []netip.Addr, latency vtime.Duration, err error)
}

// DefaultConfig is a minimal [Configuration] backed by a single shared
// network [Queue] and a fixed per-host MTU. It is enough to exercise
// every socket and channel operation without modeling any particular
// topology; [Topology] and [TopologyConfig] build more elaborate
// configurations out of the same pieces.
type DefaultConfig struct {
	sched *vtime.Scheduler
	dns   *dnsDatabase

	mtu int

	network *Queue
	ingress map[netip.Addr]*Queue
	egress  map[netip.Addr]*Queue

	policy DropPolicy

	ingressBps, egressBps float64
	ingressCap, egressCap int
	hostLatency           vtime.Duration

	resolveLatency  vtime.Duration
	notFoundLatency vtime.Duration
}

// NewDefaultConfig builds a [DefaultConfig] sharing a single
// unconstrained network hop between all hosts, with per-host ingress
// and egress queues of capacity hostQueueBytes created lazily on first
// use and rate-limited to hostBps. resolveLatency is applied to
// successful [Configuration.HostnameLookup] calls, notFoundLatency to
// failed ones.
func NewDefaultConfig(sched *vtime.Scheduler, mtu int, hostBps float64, hostQueueBytes int, hostLatency, resolveLatency, notFoundLatency vtime.Duration) *DefaultConfig {
	return &DefaultConfig{
		sched:           sched,
		dns:             newDNSDatabase(),
		mtu:             mtu,
		network:         NewQueue("network", sched, 0, 0, 0, DropTail{}),
		ingress:         make(map[netip.Addr]*Queue),
		egress:          make(map[netip.Addr]*Queue),
		policy:          DropTail{},
		ingressBps:      hostBps,
		egressBps:       hostBps,
		ingressCap:      hostQueueBytes,
		egressCap:       hostQueueBytes,
		hostLatency:     hostLatency,
		resolveLatency:  resolveLatency,
		notFoundLatency: notFoundLatency,
	}
}

// DNS returns the mutable [*dnsDatabase] backing [Configuration.HostnameLookup],
// so examples and tests can populate records before running the
// simulation.
func (c *DefaultConfig) DNS() *dnsDatabase { return c.dns }

// SetDropPolicy replaces the [DropPolicy] applied to the shared
// network hop and every host ingress/egress queue, including ones
// already built. New per-host queues created after this call also use
// p, until the next call to SetDropPolicy.
func (c *DefaultConfig) SetDropPolicy(p DropPolicy) {
	if p == nil {
		p = DropTail{}
	}
	c.policy = p
	c.network.SetPolicy(p)
	for _, q := range c.ingress {
		q.SetPolicy(p)
	}
	for _, q := range c.egress {
		q.SetPolicy(p)
	}
}

func (c *DefaultConfig) hostIngress(addr netip.Addr) *Queue {
	if q, ok := c.ingress[addr]; ok {
		return q
	}
	q := NewQueue("ingress:"+addr.String(), c.sched, c.ingressBps, c.hostLatency, c.ingressCap, c.policy)
	c.ingress[addr] = q
	return q
}

func (c *DefaultConfig) hostEgress(addr netip.Addr) *Queue {
	if q, ok := c.egress[addr]; ok {
		return q
	}
	q := NewQueue("egress:"+addr.String(), c.sched, c.egressBps, c.hostLatency, c.egressCap, c.policy)
	c.egress[addr] = q
	return q
}

// ChannelRoute implements [Configuration]. It carries only the shared
// network hop between hosts, excluding both hosts' own ingress/egress
// chains — those are [Configuration.OutgoingRoute]'s and
// [Configuration.IncomingRoute]'s concern, and callers compose all
// three.
func (c *DefaultConfig) ChannelRoute(src, dst netip.AddrPort) packet.Route {
	return packet.NewRoute(c.network)
}

// IncomingRoute implements [Configuration].
func (c *DefaultConfig) IncomingRoute(addr netip.AddrPort) packet.Route {
	return packet.NewRoute(c.hostIngress(addr.Addr()))
}

// OutgoingRoute implements [Configuration].
func (c *DefaultConfig) OutgoingRoute(addr netip.AddrPort) packet.Route {
	return packet.NewRoute(c.hostEgress(addr.Addr()))
}

// PathMTU implements [Configuration].
func (c *DefaultConfig) PathMTU(a, b netip.Addr) int {
	return c.mtu
}

// HostnameLookup implements [Configuration].
func (c *DefaultConfig) HostnameLookup(name string) ([]netip.Addr, vtime.Duration, error) {
	addrs := c.dns.Lookup(name)
	if len(addrs) == 0 {
		return nil, c.notFoundLatency, ErrHostNotFound
	}
	return addrs, c.resolveLatency, nil
}
