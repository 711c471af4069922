//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Star-topology builder and YAML-loadable topology configuration
// (spec §3/§8).
//

package netsim

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/rbmk-project/common/runtimex"
	"github.com/ssiloti/libsimulator/packet"
	"github.com/ssiloti/libsimulator/vtime"
	"gopkg.in/yaml.v3"
)

// Topology builds a [Configuration] out of named links, where every
// host attaches to exactly one link. Traffic between two links joined
// with [Topology.MustConnect] or [Topology.MustConnectNAT] crosses that
// pair's hop: a [Queue] standing in for a router, or a [NAT]. Links
// that were never joined have no hop between them.
// It is a thin, code-first alternative to [TopologyConfig] for tests
// and examples that would rather call methods than write YAML.
type Topology struct {
	sched *vtime.Scheduler
	dns   *dnsDatabase
	mtu   int

	hostLink map[netip.Addr]string
	links    map[string]*linkSpec

	hops map[[2]string]packet.Sink
}

type linkSpec struct {
	ingressBps, egressBps float64
	capacityBytes         int
	latency               vtime.Duration
	policy                DropPolicy
	modem                 bool
	ingress, egress       map[netip.Addr]*Queue
}

// NewTopology creates an empty [Topology] with a fixed path MTU applied
// uniformly between every pair of hosts.
func NewTopology(sched *vtime.Scheduler, mtu int) *Topology {
	return &Topology{
		sched:    sched,
		dns:      newDNSDatabase(),
		mtu:      mtu,
		hostLink: make(map[netip.Addr]string),
		links:    make(map[string]*linkSpec),
		hops:     make(map[[2]string]packet.Sink),
	}
}

// DNS returns the mutable [*dnsDatabase] backing hostname resolution.
func (t *Topology) DNS() *dnsDatabase { return t.dns }

// MustAddLink adds a named link with the given per-direction bandwidth,
// per-host queue capacity, and access latency. New per-host queues use
// [DropTail] until changed with [*Topology.SetLinkPolicy]. It panics on
// a duplicate name.
func (t *Topology) MustAddLink(name string, bps float64, capacityBytes int, latency vtime.Duration) {
	runtimex.Assert(t.links[name] == nil, "netsim: duplicate link name "+name)
	t.links[name] = &linkSpec{
		ingressBps:    bps,
		egressBps:     bps,
		capacityBytes: capacityBytes,
		latency:       latency,
		policy:        DropTail{},
		ingress:       make(map[netip.Addr]*Queue),
		egress:        make(map[netip.Addr]*Queue),
	}
}

// MustAddLinkModem adds a named link whose per-host access queues are a
// [DSLModem] pair rather than symmetric queues, modeling a residential
// uplink where upload and download bandwidth differ.
func (t *Topology) MustAddLinkModem(name string, upBps, downBps float64, capacityBytes int, latency vtime.Duration) {
	runtimex.Assert(t.links[name] == nil, "netsim: duplicate link name "+name)
	t.links[name] = &linkSpec{
		ingressBps:    downBps,
		egressBps:     upBps,
		capacityBytes: capacityBytes,
		latency:       latency,
		policy:        DropTail{},
		modem:         true,
		ingress:       make(map[netip.Addr]*Queue),
		egress:        make(map[netip.Addr]*Queue),
	}
}

// SetLinkPolicy replaces the [DropPolicy] applied to link's per-host
// queues, including ones already built, and to queues built afterward.
// It panics if the link does not exist.
func (t *Topology) SetLinkPolicy(name string, p DropPolicy) {
	l := t.links[name]
	runtimex.Assert(l != nil, "netsim: unknown link "+name)
	if p == nil {
		p = DropTail{}
	}
	l.policy = p
	for _, q := range l.ingress {
		q.SetPolicy(p)
	}
	for _, q := range l.egress {
		q.SetPolicy(p)
	}
}

// MustAttach attaches addr to the named link. It panics if the link
// does not exist or addr is already attached to a link.
func (t *Topology) MustAttach(addr netip.Addr, link string) {
	runtimex.Assert(t.links[link] != nil, "netsim: unknown link "+link)
	_, dup := t.hostLink[addr]
	runtimex.Assert(!dup, "netsim: address already attached to a link: "+addr.String())
	t.hostLink[addr] = link
}

// MustConnect creates a bidirectional hop between two links, so hosts
// on different links can reach each other, applying policy (nil means
// [DropTail]) to the shared hop queue. Connecting a link to itself is a
// no-op — hosts sharing a link never need one.
func (t *Topology) MustConnect(a, b string, bps float64, capacityBytes int, latency vtime.Duration, policy DropPolicy) {
	runtimex.Assert(t.links[a] != nil, "netsim: unknown link "+a)
	runtimex.Assert(t.links[b] != nil, "netsim: unknown link "+b)
	if a == b {
		return
	}
	q := NewQueue(fmt.Sprintf("hop:%s<->%s", a, b), t.sched, bps, latency, capacityBytes, policy)
	t.hops[[2]string{a, b}] = q
	t.hops[[2]string{b, a}] = q
}

// MustConnectNAT is like [*Topology.MustConnect], but the hop
// masquerades traffic originating from privateLink (which must be a or
// b) behind the single public address public, the way a router sitting
// at the edge of a NATted network does.
func (t *Topology) MustConnectNAT(a, b string, bps float64, capacityBytes int, latency vtime.Duration, policy DropPolicy, public netip.Addr, privateLink string) {
	runtimex.Assert(t.links[a] != nil, "netsim: unknown link "+a)
	runtimex.Assert(t.links[b] != nil, "netsim: unknown link "+b)
	runtimex.Assert(privateLink == a || privateLink == b, "netsim: NAT private link must be one of the hop's two links")
	q := NewQueue(fmt.Sprintf("hop:%s<->%s", a, b), t.sched, bps, latency, capacityBytes, policy)
	nat := NewNAT(q, public, func(addr netip.Addr) bool {
		return t.hostLink[addr] == privateLink
	})
	t.hops[[2]string{a, b}] = nat
	t.hops[[2]string{b, a}] = nat
}

func (t *Topology) link(addr netip.Addr) *linkSpec {
	name := t.hostLink[addr]
	return t.links[name]
}

// hostQueues returns addr's egress and ingress queues, building them
// (and, on a modem link, the [DSLModem] pair backing them) on first
// use.
func (t *Topology) hostQueues(addr netip.Addr) (egress, ingress *Queue) {
	l := t.link(addr)
	eq, eok := l.egress[addr]
	iq, iok := l.ingress[addr]
	if eok && iok {
		return eq, iq
	}
	if l.modem {
		m := NewDSLModem(addr.String(), t.sched, l.egressBps, l.ingressBps, l.latency, l.capacityBytes)
		m.Upstream.SetPolicy(l.policy)
		m.Downstream.SetPolicy(l.policy)
		eq, iq = m.Upstream, m.Downstream
	} else {
		eq = NewQueue("egress:"+addr.String(), t.sched, l.egressBps, l.latency, l.capacityBytes, l.policy)
		iq = NewQueue("ingress:"+addr.String(), t.sched, l.ingressBps, l.latency, l.capacityBytes, l.policy)
	}
	l.egress[addr] = eq
	l.ingress[addr] = iq
	return eq, iq
}

func (t *Topology) ingressQueue(addr netip.Addr) *Queue {
	_, iq := t.hostQueues(addr)
	return iq
}

func (t *Topology) egressQueue(addr netip.Addr) *Queue {
	eq, _ := t.hostQueues(addr)
	return eq
}

// hop returns the sink joining the links carrying a and b, or nil if
// they share a link (no hop needed). It is a plain [*Queue] unless the
// hop was created with [*Topology.MustConnectNAT], in which case it is
// a [*NAT].
func (t *Topology) hop(a, b netip.Addr) packet.Sink {
	la, lb := t.hostLink[a], t.hostLink[b]
	if la == lb {
		return nil
	}
	return t.hops[[2]string{la, lb}]
}

// Config returns a [Configuration] backed by this topology.
func (t *Topology) Config() Configuration { return (*topologyConfig)(t) }

type topologyConfig Topology

// ChannelRoute implements [Configuration]. It carries only the
// inter-link hop, if src and dst sit on different links — excluding
// both hosts' own ingress/egress queues, which
// [Configuration.OutgoingRoute]/[Configuration.IncomingRoute] supply
// and callers compose around it.
func (c *topologyConfig) ChannelRoute(src, dst netip.AddrPort) packet.Route {
	t := (*Topology)(c)
	if h := t.hop(src.Addr(), dst.Addr()); h != nil {
		return packet.NewRoute(h)
	}
	return packet.NewRoute()
}

func (c *topologyConfig) IncomingRoute(addr netip.AddrPort) packet.Route {
	t := (*Topology)(c)
	return packet.NewRoute(t.ingressQueue(addr.Addr()))
}

func (c *topologyConfig) OutgoingRoute(addr netip.AddrPort) packet.Route {
	t := (*Topology)(c)
	return packet.NewRoute(t.egressQueue(addr.Addr()))
}

func (c *topologyConfig) PathMTU(a, b netip.Addr) int {
	return c.mtu
}

func (c *topologyConfig) HostnameLookup(name string) ([]netip.Addr, vtime.Duration, error) {
	addrs := c.dns.Lookup(name)
	if len(addrs) == 0 {
		return nil, 0, ErrHostNotFound
	}
	return addrs, 0, nil
}

// TopologyConfig is the declarative, YAML-loadable shape of a
// [Topology], modeled on the field naming and nesting ITI-mrnes' own
// `TopoCfg`/`ExpCfg` pair uses for its own link/host description
// format. Latencies are expressed in milliseconds. Bandwidths are
// passed unchanged to the underlying [Queue]s, so they are in bytes per
// second.
type TopologyConfig struct {
	Name  string           `yaml:"name"`
	MTU   int              `yaml:"mtu"`
	Links []LinkDesc       `yaml:"links"`
	Hops  []HopDesc        `yaml:"hops"`
	Hosts []HostAttachDesc `yaml:"hosts"`
}

// LinkDesc describes one named link's shared access-queue parameters.
type LinkDesc struct {
	Name          string      `yaml:"name"`
	BandwidthBps  float64     `yaml:"bandwidth_bps"`
	CapacityBytes int         `yaml:"capacity_bytes"`
	LatencyMs     float64     `yaml:"latency_ms"`
	Policy        *PolicyDesc `yaml:"policy,omitempty"`
	Modem         *ModemDesc  `yaml:"modem,omitempty"`
}

// ModemDesc gives a link asymmetric upload/download rates, built as a
// [DSLModem] pair instead of plain symmetric queues.
type ModemDesc struct {
	UpstreamBps   float64 `yaml:"upstream_bps"`
	DownstreamBps float64 `yaml:"downstream_bps"`
}

// PolicyDesc selects a [DropPolicy] for a link or hop. Kind is
// "droptail" (the default, when Policy is omitted entirely) or
// "random_early", in which case MinThresholdBytes and
// MaxDropProbability parameterize a [RandomEarly] policy.
type PolicyDesc struct {
	Kind               string  `yaml:"kind"`
	MinThresholdBytes  int     `yaml:"min_threshold_bytes"`
	MaxDropProbability float64 `yaml:"max_drop_probability"`
}

// HopDesc describes a bidirectional router hop joining two links.
type HopDesc struct {
	A             string      `yaml:"a"`
	B             string      `yaml:"b"`
	BandwidthBps  float64     `yaml:"bandwidth_bps"`
	CapacityBytes int         `yaml:"capacity_bytes"`
	LatencyMs     float64     `yaml:"latency_ms"`
	Policy        *PolicyDesc `yaml:"policy,omitempty"`
	NAT           *NATDesc    `yaml:"nat,omitempty"`
}

// NATDesc masquerades a hop's privateLink side behind PublicAddress.
type NATDesc struct {
	PublicAddress string `yaml:"public_address"`
	PrivateLink   string `yaml:"private_link"`
}

// buildPolicy interprets a [PolicyDesc], returning [DropTail] for a nil
// desc or an unrecognized/empty Kind.
func buildPolicy(desc *PolicyDesc, label string) DropPolicy {
	if desc == nil {
		return DropTail{}
	}
	switch desc.Kind {
	case "random_early":
		return NewRandomEarly(label, desc.MinThresholdBytes, desc.MaxDropProbability)
	default:
		return DropTail{}
	}
}

// HostAttachDesc attaches a literal address to a named link.
type HostAttachDesc struct {
	Address string `yaml:"address"`
	Link    string `yaml:"link"`
}

// LoadTopologyConfig reads and parses a [TopologyConfig] from a YAML
// file at path.
func LoadTopologyConfig(path string) (*TopologyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg TopologyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Build materializes a [*Topology] out of the declarative
// [TopologyConfig], running against sched's virtual clock.
func (cfg *TopologyConfig) Build(sched *vtime.Scheduler) (*Topology, error) {
	t := NewTopology(sched, cfg.MTU)
	for _, l := range cfg.Links {
		latency := vtime.Duration(l.LatencyMs * float64(vtime.Millisecond))
		if l.Modem != nil {
			t.MustAddLinkModem(l.Name, l.Modem.UpstreamBps, l.Modem.DownstreamBps, l.CapacityBytes, latency)
		} else {
			t.MustAddLink(l.Name, l.BandwidthBps, l.CapacityBytes, latency)
		}
		if l.Policy != nil {
			t.SetLinkPolicy(l.Name, buildPolicy(l.Policy, "link:"+l.Name))
		}
	}
	for _, h := range cfg.Hops {
		latency := vtime.Duration(h.LatencyMs * float64(vtime.Millisecond))
		policy := buildPolicy(h.Policy, fmt.Sprintf("hop:%s<->%s", h.A, h.B))
		if h.NAT != nil {
			public, err := netip.ParseAddr(h.NAT.PublicAddress)
			if err != nil {
				return nil, fmt.Errorf("netsim: invalid NAT public address %q: %w", h.NAT.PublicAddress, err)
			}
			t.MustConnectNAT(h.A, h.B, h.BandwidthBps, h.CapacityBytes, latency, policy, public, h.NAT.PrivateLink)
		} else {
			t.MustConnect(h.A, h.B, h.BandwidthBps, h.CapacityBytes, latency, policy)
		}
	}
	for _, h := range cfg.Hosts {
		addr, err := netip.ParseAddr(h.Address)
		if err != nil {
			return nil, fmt.Errorf("netsim: invalid host address %q: %w", h.Address, err)
		}
		t.MustAttach(addr, h.Link)
	}
	return t, nil
}
