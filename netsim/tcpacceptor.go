//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// TCP acceptor: listen queue and handshake completion (spec §4.6).
//

package netsim

import (
	"log/slog"
	"net/netip"

	"github.com/ssiloti/libsimulator/errclass"
	"github.com/ssiloti/libsimulator/packet"
)

// AcceptHandler completes an [*TCPAcceptor.AsyncAccept] operation.
type AcceptHandler func(peer *TCPSocket, remote netip.AddrPort, err error)

type acceptOp struct {
	peer    *TCPSocket
	handler AcceptHandler
}

// TCPAcceptor listens for incoming connections on behalf of a
// [HostContext]. Its backlog starts at -1, meaning "bound but not
// listening yet" — any SYN that arrives before [TCPAcceptor.Listen] is
// called is refused.
type TCPAcceptor struct {
	host      *HostContext
	sim       *Simulation
	forwarder *sinkForwarder

	open      bool
	bound     bool
	localAddr netip.AddrPort

	backlog int
	pending []*Channel

	pendingAccept *acceptOp
}

func newTCPAcceptor(h *HostContext) *TCPAcceptor {
	return &TCPAcceptor{host: h, sim: h.sim, forwarder: newSinkForwarder("tcp-acceptor"), backlog: -1}
}

// Open opens the acceptor.
func (a *TCPAcceptor) Open() error {
	a.open = true
	a.forwarder.bind(a)
	return nil
}

// Bind binds the acceptor to ep, registering it in the simulation's
// listener table so [*TCPSocket.AsyncConnect] can find it even before
// [TCPAcceptor.Listen] is called.
func (a *TCPAcceptor) Bind(ep netip.AddrPort) error {
	if !a.open {
		return EBADF
	}
	if !a.host.HasAddress(ep.Addr()) {
		return EADDRNOTAVAIL
	}
	if ep.Port() == 0 {
		ep = netip.AddrPortFrom(ep.Addr(), a.sim.reservePort(ep.Addr()))
	}
	if !a.sim.registerListener(ep, a) {
		return EADDRINUSE
	}
	a.localAddr = ep
	a.bound = true
	return nil
}

// Listen marks the acceptor ready to accept connections, with a listen
// queue capped at queueSize pending channels.
func (a *TCPAcceptor) Listen(queueSize int) error {
	if !a.bound {
		return ENOTCONN
	}
	a.backlog = queueSize
	return nil
}

// Close closes the acceptor, aborting any pending accept and
// deregistering it from the listener table.
func (a *TCPAcceptor) Close() error {
	if !a.open {
		return nil
	}
	a.open = false
	if a.bound {
		a.sim.unregisterListener(a.localAddr)
		a.bound = false
	}
	a.forwarder.clear()
	a.Cancel()
	return nil
}

// Cancel aborts a pending accept with [OperationAborted].
func (a *TCPAcceptor) Cancel() {
	if a.pendingAccept == nil {
		return
	}
	op := a.pendingAccept
	a.pendingAccept = nil
	a.sim.sched.Post(func() { op.handler(nil, netip.AddrPort{}, OperationAborted) })
}

// AsyncAccept pops the next ready channel onto peer, or registers cb as
// pending if none are ready yet.
func (a *TCPAcceptor) AsyncAccept(peer *TCPSocket, cb AcceptHandler) {
	if !a.open {
		a.sim.sched.Post(func() { cb(nil, netip.AddrPort{}, EBADF) })
		return
	}
	if len(a.pending) == 0 {
		a.pendingAccept = &acceptOp{peer: peer, handler: cb}
		return
	}
	ch := a.pending[0]
	a.pending = a.pending[1:]
	a.finishAccept(ch, peer, cb)
}

// finishAccept completes the handshake's implicit third step on the
// accepting side: it opens peer, replaces the channel's route 1
// forwarder with peer's own, and posts cb.
func (a *TCPAcceptor) finishAccept(ch *Channel, peer *TCPSocket, cb AcceptHandler) {
	peer.open = true
	peer.localAddr = a.localAddr
	peer.bound = true
	peer.channel = ch
	peer.mss = a.sim.config.PathMTU(ch.Endpoint(0).Addr(), ch.Endpoint(1).Addr())
	peer.cwnd = peer.mss * initialCwndSegments
	ch.replaceForwarder(1, peer.forwarder)
	peer.forwarder.bind(peer)
	ch.state = connected
	remote := ch.Endpoint(0)
	a.sim.sched.Post(func() { cb(peer, remote, nil) })
}

// IncomingPacket implements [packet.Sink]. A SYN is either refused
// immediately (not listening, or listen queue full) or queued and
// answered with SYN+ACK.
func (a *TCPAcceptor) IncomingPacket(p *packet.Packet) {
	if p.Kind != packet.SYN {
		p.Drop()
		return
	}
	ch, _ := p.Channel.(*Channel)
	if ch == nil {
		p.Drop()
		return
	}

	if a.backlog < 0 || len(a.pending) >= a.backlog {
		a.sim.logger.Debug("tcp.accept.refused",
			slog.String("localAddr", a.localAddr.String()),
			slog.String("remoteAddr", ch.Endpoint(0).String()),
			slog.String("errClass", errclass.New(ECONNREFUSED)),
		)
		refusal := &packet.Packet{
			Kind:     packet.Error,
			Err:      ECONNREFUSED,
			Overhead: packet.HandshakeOverhead,
			Hops:     ch.route(0),
		}
		packet.Forward(refusal)
		return
	}

	ch.state = handshake2
	synAck := &packet.Packet{
		Kind:     packet.SYNACK,
		Channel:  ch,
		Overhead: packet.HandshakeOverhead,
		Hops:     ch.route(0),
	}
	packet.Forward(synAck)

	a.pending = append(a.pending, ch)
	if a.pendingAccept != nil {
		op := a.pendingAccept
		a.pendingAccept = nil
		next := a.pending[0]
		a.pending = a.pending[1:]
		a.finishAccept(next, op.peer, op.handler)
	}
}

// Label implements [packet.Sink].
func (a *TCPAcceptor) Label() string { return "tcp-acceptor:" + a.localAddr.String() }
