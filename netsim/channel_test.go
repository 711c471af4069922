// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"net/netip"
	"testing"

	"github.com/ssiloti/libsimulator/vtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelRemoteIdxSelectsTheOtherEndpoint(t *testing.T) {
	sched := vtime.NewScheduler()
	cfg := NewDefaultConfig(sched, 1500, 0, 1<<20, 0, 0, 0)
	a := netip.MustParseAddrPort("10.0.0.1:1000")
	b := netip.MustParseAddrPort("10.0.0.2:2000")

	target := &countingTarget{}
	ch := newChannel(a, b, cfg, target, target)

	assert.Equal(t, 1, ch.remoteIdx(a))
	assert.Equal(t, 0, ch.remoteIdx(b))
}

func TestChannelRoutesTerminateAtTheirOwnEndpoint(t *testing.T) {
	sched := vtime.NewScheduler()
	cfg := NewDefaultConfig(sched, 1500, 0, 1<<20, 0, 0, 0)
	a := netip.MustParseAddrPort("10.0.0.1:1000")
	b := netip.MustParseAddrPort("10.0.0.2:2000")

	target := &countingTarget{}
	ch := newChannel(a, b, cfg, target, target)

	route0 := ch.route(0)
	route1 := ch.route(1)
	require.NotEmpty(t, route0.Hops())
	require.NotEmpty(t, route1.Hops())

	// The final hop is the endpoint's forwarder; the hop before it is the
	// endpoint's own host ingress queue.
	assert.Same(t, cfg.hostIngress(a.Addr()), route0.Hops()[len(route0.Hops())-2])
	assert.Same(t, cfg.hostIngress(b.Addr()), route1.Hops()[len(route1.Hops())-2])
}

func TestChannelInitialStateIsHandshake1(t *testing.T) {
	sched := vtime.NewScheduler()
	cfg := NewDefaultConfig(sched, 1500, 0, 1<<20, 0, 0, 0)
	a := netip.MustParseAddrPort("10.0.0.1:1000")
	b := netip.MustParseAddrPort("10.0.0.2:2000")
	target := &countingTarget{}
	ch := newChannel(a, b, cfg, target, target)

	assert.Equal(t, handshake1, ch.state)
	assert.Equal(t, "handshake1", ch.state.String())
}

func TestChannelReplaceForwarderSwapsFinalHop(t *testing.T) {
	sched := vtime.NewScheduler()
	cfg := NewDefaultConfig(sched, 1500, 0, 1<<20, 0, 0, 0)
	a := netip.MustParseAddrPort("10.0.0.1:1000")
	b := netip.MustParseAddrPort("10.0.0.2:2000")
	original := &countingTarget{}
	ch := newChannel(a, b, cfg, original, original)

	replacement := &countingTarget{}
	ch.replaceForwarder(1, replacement)

	route1 := ch.route(1)
	assert.Same(t, replacement, route1.Hops()[len(route1.Hops())-1])
}

func TestChannelRouteSnapshotIsUnaffectedByALaterReplaceForwarder(t *testing.T) {
	sched := vtime.NewScheduler()
	cfg := NewDefaultConfig(sched, 1500, 0, 1<<20, 0, 0, 0)
	a := netip.MustParseAddrPort("10.0.0.1:1000")
	b := netip.MustParseAddrPort("10.0.0.2:2000")
	original := &countingTarget{}
	ch := newChannel(a, b, cfg, original, original)

	snapshot := ch.route(1)
	before := snapshot.Hops()[len(snapshot.Hops())-1]
	assert.Same(t, original, before)

	replacement := &countingTarget{}
	ch.replaceForwarder(1, replacement)

	after := snapshot.Hops()[len(snapshot.Hops())-1]
	assert.Same(t, original, after, "a route snapshot taken before replaceForwarder must not see the swap")

	fresh := ch.route(1)
	assert.Same(t, replacement, fresh.Hops()[len(fresh.Hops())-1])
}

func TestChannelEndpointReturnsOriginalEndpoints(t *testing.T) {
	sched := vtime.NewScheduler()
	cfg := NewDefaultConfig(sched, 1500, 0, 1<<20, 0, 0, 0)
	a := netip.MustParseAddrPort("10.0.0.1:1000")
	b := netip.MustParseAddrPort("10.0.0.2:2000")
	target := &countingTarget{}
	ch := newChannel(a, b, cfg, target, target)

	assert.Equal(t, a, ch.Endpoint(0))
	assert.Equal(t, b, ch.Endpoint(1))
}
