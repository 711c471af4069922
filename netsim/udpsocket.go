//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UDP socket: datagram send/receive through the topology (spec §4.5).
//

package netsim

import (
	"net/netip"

	"github.com/ssiloti/libsimulator/packet"
	"github.com/ssiloti/libsimulator/vtime"
)

// AddressFamily selects the address family a socket is opened with.
type AddressFamily int

const (
	IPv4 AddressFamily = iota
	IPv6
)

// UDPReadHandler completes an [*UDPSocket.AsyncReceiveFrom] or
// [*UDPSocket.AsyncReceiveFromNullBuffers] operation.
type UDPReadHandler func(n int, from netip.AddrPort, err error)

// UDPWriteHandler completes an [*UDPSocket.AsyncSendTo] operation.
type UDPWriteHandler func(n int, err error)

type udpDatagram struct {
	data []byte
	from netip.AddrPort
}

type udpReadOp struct {
	buf         []byte
	handler     UDPReadHandler
	nullBuffers bool
}

// UDPSocket is a datagram socket bound to a [HostContext].
type UDPSocket struct {
	host      *HostContext
	sim       *Simulation
	forwarder *sinkForwarder

	open        bool
	family      AddressFamily
	bound       bool
	localAddr   netip.AddrPort
	nonBlocking bool
	reuseAddr   bool

	incoming      []udpDatagram
	incomingBytes int
	maxQueueBytes int

	pendingRead *udpReadOp

	nextAllowedSend vtime.Time
}

func newUDPSocket(h *HostContext) *UDPSocket {
	return &UDPSocket{
		host:          h,
		sim:           h.sim,
		forwarder:     newSinkForwarder("udp"),
		maxQueueBytes: 64 * 1024,
	}
}

// Open opens the socket for the given address family. Any other
// operation on a socket that has not been opened fails with
// [EBADF].
func (s *UDPSocket) Open(family AddressFamily) error {
	s.open = true
	s.family = family
	s.forwarder.bind(s)
	return nil
}

// Bind binds the socket to ep, which must be one of the owning host's
// addresses. A zero port requests an ephemeral port.
func (s *UDPSocket) Bind(ep netip.AddrPort) error {
	if !s.open {
		return EBADF
	}
	if !s.host.HasAddress(ep.Addr()) {
		return EADDRNOTAVAIL
	}
	if ep.Port() == 0 {
		ep = netip.AddrPortFrom(ep.Addr(), s.sim.reservePort(ep.Addr()))
	}
	if !s.sim.registerUDPBind(ep, s, s.reuseAddr) {
		return EADDRINUSE
	}
	s.localAddr = ep
	s.bound = true
	return nil
}

// autobind picks an ephemeral port on a host address matching dst's
// family, for a send issued before an explicit [*UDPSocket.Bind].
func (s *UDPSocket) autobind(dst netip.Addr) error {
	for _, a := range s.host.Addresses() {
		if a.Is4() == dst.Is4() {
			return s.Bind(netip.AddrPortFrom(a, 0))
		}
	}
	return EAFNOSUPPORT
}

// Close closes the socket, aborting any pending read with
// [OperationAborted] and deregistering it from the UDP bind table.
func (s *UDPSocket) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	if s.bound {
		s.sim.unregisterUDPBind(s.localAddr)
		s.bound = false
	}
	s.forwarder.clear()
	s.cancelPending()
	return nil
}

// Cancel aborts any pending read with [OperationAborted].
func (s *UDPSocket) Cancel() {
	s.cancelPending()
}

func (s *UDPSocket) cancelPending() {
	if s.pendingRead == nil {
		return
	}
	op := s.pendingRead
	s.pendingRead = nil
	s.sim.sched.Post(func() { op.handler(0, netip.AddrPort{}, OperationAborted) })
}

// LocalEndpoint returns the socket's bound endpoint.
func (s *UDPSocket) LocalEndpoint() netip.AddrPort { return s.localAddr }

// SetReceiveBufferSize sets the maximum number of bytes the incoming
// queue holds before further datagrams are dropped.
func (s *UDPSocket) SetReceiveBufferSize(n int) { s.maxQueueBytes = n }

// SetNonBlocking records the non-blocking setting reported by
// [*UDPSocket.NonBlocking]. No call's behavior depends on it: the
// synchronous calls never block either way.
func (s *UDPSocket) SetNonBlocking(v bool) { s.nonBlocking = v }

// NonBlocking reports the current non-blocking setting.
func (s *UDPSocket) NonBlocking() bool { return s.nonBlocking }

// SetReuseAddress toggles SO_REUSEADDR-style behavior: a later
// [*UDPSocket.Bind] to an address already held by another socket steals
// it instead of failing with [EADDRINUSE]. Must be set before Bind to
// have any effect.
func (s *UDPSocket) SetReuseAddress(v bool) { s.reuseAddr = v }

// ReuseAddress reports the current reuse-address setting.
func (s *UDPSocket) ReuseAddress() bool { return s.reuseAddr }

// AsyncSendTo sends buf to dst, fragmenting into MTU-sized pieces with
// full packet overhead if buf exceeds the path MTU. cb is invoked via
// [*vtime.Scheduler.Post] once all fragments have been handed to their
// first hop.
func (s *UDPSocket) AsyncSendTo(buf []byte, dst netip.AddrPort, cb UDPWriteHandler) {
	if !s.open {
		s.sim.sched.Post(func() { cb(0, EBADF) })
		return
	}
	if !s.bound {
		if err := s.autobind(dst.Addr()); err != nil {
			s.sim.sched.Post(func() { cb(0, err) })
			return
		}
	}

	mtu := s.sim.config.PathMTU(s.localAddr.Addr(), dst.Addr())
	chunk := mtu
	if chunk <= 0 {
		chunk = len(buf)
		if chunk == 0 {
			chunk = 1
		}
	}

	sent := 0
	for sent < len(buf) || (len(buf) == 0 && sent == 0) {
		n := len(buf) - sent
		if n > chunk {
			n = chunk
		}
		piece := append([]byte{}, buf[sent:sent+n]...)

		hops := packet.Concat(
			s.sim.config.OutgoingRoute(s.localAddr),
			s.sim.config.ChannelRoute(s.localAddr, dst),
			s.sim.config.IncomingRoute(dst),
		)
		hops.Append(s.destForwarder(dst))

		p := &packet.Packet{
			Kind:     packet.Payload,
			Payload:  piece,
			From:     s.localAddr,
			Overhead: packet.DefaultOverhead,
			Hops:     hops,
		}
		packet.Forward(p)

		sent += n
		if len(buf) == 0 {
			break
		}
	}

	s.nextAllowedSend = s.sim.Now()
	s.sim.sched.Post(func() { cb(len(buf), nil) })
}

// destForwarder resolves the sink that should receive datagrams bound
// for dst: the socket bound there, if any, else a sink that silently
// drops — matching real UDP's unreachable-destination behavior, which
// this simulator does not surface as an ICMP error.
func (s *UDPSocket) destForwarder(dst netip.AddrPort) packet.Sink {
	if u, ok := s.sim.udpBinds[dst]; ok {
		return u.forwarder
	}
	return discardSink{}
}

// discardSink silently accepts and drops any packet delivered to it.
type discardSink struct{}

func (discardSink) IncomingPacket(p *packet.Packet) { p.Drop() }
func (discardSink) Label() string                   { return "discard" }

// AsyncReceiveFrom completes with the next available datagram, or
// registers cb as pending if the queue is empty.
func (s *UDPSocket) AsyncReceiveFrom(buf []byte, cb UDPReadHandler) {
	if !s.open {
		s.sim.sched.Post(func() { cb(0, netip.AddrPort{}, EBADF) })
		return
	}
	s.cancelPending()
	if len(s.incoming) == 0 {
		s.pendingRead = &udpReadOp{buf: buf, handler: cb}
		return
	}
	s.deliverHead(buf, cb)
}

// AsyncReceiveFromNullBuffers completes cb as soon as a datagram is
// available, without consuming it.
func (s *UDPSocket) AsyncReceiveFromNullBuffers(cb UDPReadHandler) {
	if !s.open {
		s.sim.sched.Post(func() { cb(0, netip.AddrPort{}, EBADF) })
		return
	}
	s.cancelPending()
	if len(s.incoming) > 0 {
		d := s.incoming[0]
		s.sim.sched.Post(func() { cb(len(d.data), d.from, nil) })
		return
	}
	s.pendingRead = &udpReadOp{handler: cb, nullBuffers: true}
}

// ReceiveFrom is the synchronous counterpart to
// [*UDPSocket.AsyncReceiveFrom]: it returns [EAGAIN] immediately if no
// datagram is queued. This simulator has no thread to block on, so
// [*UDPSocket.NonBlocking] changes nothing about this call's behavior,
// only whether a caller built against a real socket API would have
// chosen to call it at all.
func (s *UDPSocket) ReceiveFrom(buf []byte) (int, netip.AddrPort, error) {
	if !s.open {
		return 0, netip.AddrPort{}, EBADF
	}
	if len(s.incoming) == 0 {
		return 0, netip.AddrPort{}, EAGAIN
	}
	d := s.incoming[0]
	s.incoming = s.incoming[1:]
	s.incomingBytes -= len(d.data)
	n := copy(buf, d.data)
	return n, d.from, nil
}

func (s *UDPSocket) deliverHead(buf []byte, cb UDPReadHandler) {
	d := s.incoming[0]
	s.incoming = s.incoming[1:]
	s.incomingBytes -= len(d.data)
	n := copy(buf, d.data)
	from := d.from
	s.sim.sched.Post(func() { cb(n, from, nil) })
}

// IncomingPacket implements [packet.Sink]. A datagram that would push
// the queue past its byte budget is dropped; UDP is lossy by design.
func (s *UDPSocket) IncomingPacket(p *packet.Packet) {
	if s.incomingBytes+len(p.Payload) > s.maxQueueBytes {
		p.Drop()
		return
	}
	d := udpDatagram{data: p.Payload, from: p.From}
	if s.pendingRead != nil && !s.pendingRead.nullBuffers {
		op := s.pendingRead
		s.pendingRead = nil
		n := copy(op.buf, d.data)
		from := d.from
		s.sim.sched.Post(func() { op.handler(n, from, nil) })
		return
	}
	if s.pendingRead != nil && s.pendingRead.nullBuffers {
		op := s.pendingRead
		s.pendingRead = nil
		s.incoming = append(s.incoming, d)
		s.incomingBytes += len(d.data)
		n := len(d.data)
		from := d.from
		s.sim.sched.Post(func() { op.handler(n, from, nil) })
		return
	}
	s.incoming = append(s.incoming, d)
	s.incomingBytes += len(d.data)
}

// Label implements [packet.Sink].
func (s *UDPSocket) Label() string { return "udp:" + s.localAddr.String() }
