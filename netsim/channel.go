//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Channel is the shared state of one TCP connection between two
// endpoints (spec §3, §4.6).
//
// Route orientation follows the underlying simulator this package is
// modeled on: routes[i] is the path that terminates at eps[i] — i.e.
// the path a sender uses to reach eps[i]. A socket bound to eps[0]
// therefore sends on routes[1] (the path to the other side) and
// receives what arrives along routes[0]'s final hop, its own
// forwarder.
//

package netsim

import (
	"net/netip"

	"github.com/ssiloti/libsimulator/packet"
)

type handshakeState int

const (
	handshake1 handshakeState = iota // SYN sent
	handshake2                       // SYN+ACK sent
	handshake3                       // connecting side received SYN+ACK
	connected
)

func (s handshakeState) String() string {
	switch s {
	case handshake1:
		return "handshake1"
	case handshake2:
		return "handshake2"
	case handshake3:
		return "handshake3"
	case connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Channel is the bidirectional TCP connection state shared by two
// sockets. eps[0] is the side that sent the initial SYN.
type Channel struct {
	eps    [2]netip.AddrPort
	routes [2]packet.Route
	state  handshakeState
}

// newChannel builds a channel from selfEp (the connecting side, eps[0])
// to targetEp (the listener being connected to, eps[1]). selfForwarder
// is the connecting socket's own forwarder; targetForwarder is
// whatever sink should currently receive traffic addressed to the
// target side — the acceptor itself until a socket is accepted, at
// which point [Channel.replaceForwarder] swaps it out.
func newChannel(selfEp, targetEp netip.AddrPort, cfg Configuration, selfForwarder, targetForwarder packet.Sink) *Channel {
	c := &Channel{eps: [2]netip.AddrPort{selfEp, targetEp}, state: handshake1}

	c.routes[0] = packet.Concat(
		cfg.OutgoingRoute(targetEp),
		cfg.ChannelRoute(targetEp, selfEp),
		cfg.IncomingRoute(selfEp),
	)
	c.routes[0].Append(selfForwarder)

	c.routes[1] = packet.Concat(
		cfg.OutgoingRoute(selfEp),
		cfg.ChannelRoute(selfEp, targetEp),
		cfg.IncomingRoute(targetEp),
	)
	c.routes[1].Append(targetForwarder)

	return c
}

// remoteIdx returns the route index a socket bound to self should send
// on: the index of the *other* endpoint.
func (c *Channel) remoteIdx(self netip.AddrPort) int {
	if c.eps[0] == self {
		return 1
	}
	return 0
}

// route returns an isolated snapshot of the route stored at idx, over
// its own copy of the hop slice. A packet already in flight with a
// snapshot in hand must never see a later [Channel.replaceForwarder]
// swap the sink out from under it.
func (c *Channel) route(idx int) packet.Route {
	return packet.NewRoute(c.routes[idx].Hops()...)
}

// replaceForwarder swaps the final hop of routes[idx], used when an
// accepted socket takes over from the acceptor (spec §4.6).
func (c *Channel) replaceForwarder(idx int, s packet.Sink) {
	c.routes[idx].ReplaceLast(s)
}

// Endpoint returns eps[idx].
func (c *Channel) Endpoint(idx int) netip.AddrPort {
	return c.eps[idx]
}
