// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/ssiloti/libsimulator/packet"
	"github.com/ssiloti/libsimulator/vtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologyHostsOnSameLinkNeedNoHop(t *testing.T) {
	sched := vtime.NewScheduler()
	topo := NewTopology(sched, 1500)
	topo.MustAddLink("lan", 0, 1<<20, 0)

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	topo.MustAttach(a, "lan")
	topo.MustAttach(b, "lan")

	route := topo.Config().ChannelRoute(netip.AddrPortFrom(a, 1000), netip.AddrPortFrom(b, 2000))
	assert.Empty(t, route.Hops()) // shared link, no inter-link hop needed
}

func TestTopologyHostsOnDifferentLinksCrossAHop(t *testing.T) {
	sched := vtime.NewScheduler()
	topo := NewTopology(sched, 1500)
	topo.MustAddLink("east", 0, 1<<20, 0)
	topo.MustAddLink("west", 0, 1<<20, 0)
	topo.MustConnect("east", "west", 1e6, 1<<20, 10*vtime.Millisecond, DropTail{})

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.1.1")
	topo.MustAttach(a, "east")
	topo.MustAttach(b, "west")

	route := topo.Config().ChannelRoute(netip.AddrPortFrom(a, 1000), netip.AddrPortFrom(b, 2000))
	require.Len(t, route.Hops(), 1) // just the inter-link hop
	assert.Same(t, topo.hop(a, b), route.Hops()[0])
}

func TestTopologyConnectSameLinkIsNoOp(t *testing.T) {
	sched := vtime.NewScheduler()
	topo := NewTopology(sched, 1500)
	topo.MustAddLink("lan", 0, 1<<20, 0)
	topo.MustConnect("lan", "lan", 1e6, 1<<20, 10*vtime.Millisecond, DropTail{})

	a := netip.MustParseAddr("10.0.0.1")
	assert.Nil(t, topo.hop(a, a))
}

func TestTopologyMustConnectNATTranslatesSourceAddress(t *testing.T) {
	sched := vtime.NewScheduler()
	topo := NewTopology(sched, 1500)
	topo.MustAddLink("home", 0, 1<<20, 0)
	topo.MustAddLink("internet", 0, 1<<20, 0)
	public := netip.MustParseAddr("203.0.113.1")
	topo.MustConnectNAT("home", "internet", 1e6, 1<<20, 10*vtime.Millisecond, DropTail{}, public, "home")

	a := netip.MustParseAddr("192.168.0.5")
	b := netip.MustParseAddr("8.8.8.8")
	topo.MustAttach(a, "home")
	topo.MustAttach(b, "internet")

	h := topo.hop(a, b)
	require.NotNil(t, h)
	nat, ok := h.(*NAT)
	require.True(t, ok)

	dst := &countingTarget{}
	p := &packet.Packet{
		Kind: packet.Payload,
		From: netip.AddrPortFrom(a, 5000),
		Hops: packet.NewRoute(dst),
	}
	nat.IncomingPacket(p)
	sched.Run()

	require.Len(t, dst.received, 1)
	assert.Equal(t, public, dst.received[0].From.Addr())
}

func TestTopologySetLinkPolicySwitchesToRandomEarly(t *testing.T) {
	sched := vtime.NewScheduler()
	topo := NewTopology(sched, 1500)
	topo.MustAddLink("lan", 0, 1000, 0)
	topo.SetLinkPolicy("lan", NewRandomEarly("lan-red", 0, 1000))

	a := netip.MustParseAddr("10.0.0.1")
	topo.MustAttach(a, "lan")

	dst := &countingTarget{}
	first := &packet.Packet{Kind: packet.Payload, Payload: make([]byte, 500), Hops: packet.NewRoute(dst)}
	topo.egressQueue(a).IncomingPacket(first)

	dropped := false
	second := &packet.Packet{
		Kind: packet.Payload, Payload: make([]byte, 1),
		Hops: packet.NewRoute(dst), OnDrop: func(*packet.Packet) { dropped = true },
	}
	topo.egressQueue(a).IncomingPacket(second)
	sched.Run()

	assert.True(t, dropped)
	assert.Len(t, dst.received, 1)
}

func TestTopologyMustAddLinkModemBuildsDSLModemQueues(t *testing.T) {
	sched := vtime.NewScheduler()
	topo := NewTopology(sched, 1500)
	topo.MustAddLinkModem("dsl", 100, 1000, 0, 0)

	a := netip.MustParseAddr("10.0.0.1")
	topo.MustAttach(a, "dsl")

	up := &countingTarget{}
	down := &countingTarget{}
	topo.egressQueue(a).IncomingPacket(&packet.Packet{Kind: packet.Payload, Payload: make([]byte, 100), Hops: packet.NewRoute(up)})
	topo.ingressQueue(a).IncomingPacket(&packet.Packet{Kind: packet.Payload, Payload: make([]byte, 100), Hops: packet.NewRoute(down)})
	sched.Run()

	assert.Len(t, up.received, 1)
	assert.Len(t, down.received, 1)
}

func TestTopologyPathMTUIsUniform(t *testing.T) {
	sched := vtime.NewScheduler()
	topo := NewTopology(sched, 1400)
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	assert.Equal(t, 1400, topo.Config().PathMTU(a, b))
}

func TestTopologyConfigYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	yamlDoc := `
name: two-link-test
mtu: 1500
links:
  - name: east
    bandwidth_bps: 1000000
    capacity_bytes: 1048576
    latency_ms: 1
  - name: west
    bandwidth_bps: 1000000
    capacity_bytes: 1048576
    latency_ms: 1
hops:
  - a: east
    b: west
    bandwidth_bps: 500000
    capacity_bytes: 262144
    latency_ms: 20
hosts:
  - address: 10.0.0.1
    link: east
  - address: 10.0.1.1
    link: west
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadTopologyConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "two-link-test", cfg.Name)
	assert.Equal(t, 1500, cfg.MTU)
	require.Len(t, cfg.Links, 2)
	require.Len(t, cfg.Hops, 1)
	require.Len(t, cfg.Hosts, 2)

	sched := vtime.NewScheduler()
	topo, err := cfg.Build(sched)
	require.NoError(t, err)

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.1.1")
	src := netip.AddrPortFrom(a, 1000)
	dst := netip.AddrPortFrom(b, 2000)

	route := topo.Config().ChannelRoute(src, dst)
	assert.Len(t, route.Hops(), 1)

	composed := packet.Concat(topo.Config().OutgoingRoute(src), route, topo.Config().IncomingRoute(dst))
	assert.Len(t, composed.Hops(), 3)
}

func TestTopologyConfigYAMLWiresPolicyModemAndNAT(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	yamlDoc := `
name: nat-modem-test
mtu: 1500
links:
  - name: home
    bandwidth_bps: 1000000
    capacity_bytes: 200
    latency_ms: 1
    policy:
      kind: random_early
      min_threshold_bytes: 0
      max_drop_probability: 100.0
    modem:
      upstream_bps: 100
      downstream_bps: 1000
  - name: internet
    bandwidth_bps: 1000000
    capacity_bytes: 1048576
    latency_ms: 1
hops:
  - a: home
    b: internet
    bandwidth_bps: 500000
    capacity_bytes: 262144
    latency_ms: 20
    nat:
      public_address: 203.0.113.1
      private_link: home
hosts:
  - address: 192.168.0.5
    link: home
  - address: 8.8.8.8
    link: internet
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadTopologyConfig(path)
	require.NoError(t, err)

	sched := vtime.NewScheduler()
	topo, err := cfg.Build(sched)
	require.NoError(t, err)

	a := netip.MustParseAddr("192.168.0.5")
	b := netip.MustParseAddr("8.8.8.8")

	h := topo.hop(a, b)
	require.NotNil(t, h)
	_, ok := h.(*NAT)
	assert.True(t, ok, "hop should be a *NAT when the YAML hop declares nat:")

	// The home link's modem: field should have produced independent
	// upstream/downstream queues rather than a single symmetric one.
	eq := topo.egressQueue(a)
	iq := topo.ingressQueue(a)
	assert.NotSame(t, eq, iq)

	// The home link's random_early policy, with maxP scaled well past 1,
	// guarantees an early drop once occupancy is non-trivial relative to
	// capacity — a plain DropTail policy would admit both packets since
	// neither individually overflows the 200-byte capacity.
	dst := &countingTarget{}
	first := &packet.Packet{Kind: packet.Payload, Payload: make([]byte, 100), Hops: packet.NewRoute(dst)}
	eq.IncomingPacket(first)

	dropped := false
	second := &packet.Packet{
		Kind: packet.Payload, Payload: make([]byte, 1),
		Hops: packet.NewRoute(dst), OnDrop: func(*packet.Packet) { dropped = true },
	}
	eq.IncomingPacket(second)
	sched.Run()
	assert.True(t, dropped)
}
