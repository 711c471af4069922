//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// TCP stream socket: handshake, segmentation, ACKs, congestion window,
// reorder buffer, backpressure (spec §4.7).
//

package netsim

import (
	"log/slog"
	"net/netip"

	"github.com/ssiloti/libsimulator/errclass"
	"github.com/ssiloti/libsimulator/packet"
	"github.com/ssiloti/libsimulator/vtime"
)

// tcpOverhead is the per-packet overhead charged to every segment a
// TCP socket sends, handshake or data alike.
const tcpOverhead = packet.HandshakeOverhead

// initialCwndSegments sets the starting congestion window, in MSS
// units. The source this package is modeled on starts a connection at
// a small multiple of MSS rather than slow-starting from one segment;
// picked here to let scenario S6's steady-state cwnd growth begin from
// a plausible bandwidth-delay product instead of one packet.
const initialCwndSegments = 4

// connectRefusalDelay is the fixed latency applied when a connect
// targets an address with no acceptor registered there at all — as
// opposed to an acceptor that exists but rejects the SYN over the
// actual route once it arrives.
const connectRefusalDelay = 50 * vtime.Millisecond

// ConnectHandler completes an [*TCPSocket.AsyncConnect] operation.
type ConnectHandler func(err error)

// ReadHandler completes an [*TCPSocket.AsyncReadSome] operation.
type ReadHandler func(n int, err error)

// WriteHandler completes an [*TCPSocket.AsyncWriteSome] operation.
type WriteHandler func(n int, err error)

type tcpReadOp struct {
	bufs        Buffers
	handler     ReadHandler
	nullBuffers bool
}

type tcpWriteOp struct {
	bufs    Buffers
	handler WriteHandler
}

// TCPSocket is a TCP stream socket bound to a [HostContext]. The zero
// value is not ready to use; construct with [HostContext.NewTCPSocket].
type TCPSocket struct {
	host      *HostContext
	sim       *Simulation
	forwarder *sinkForwarder

	open        bool
	bound       bool
	localAddr   netip.AddrPort
	nonBlocking bool

	channel *Channel
	mss     int

	cwnd          int
	bytesInFlight int

	nextOutgoingSeq uint64
	nextIncomingSeq uint64

	lastDropSeq  uint64
	haveLastDrop bool

	reorder          map[uint64]*packet.Packet
	outstandingSizes map[uint64]int
	retransmit       []*packet.Packet
	incoming         []*packet.Packet

	pendingRead    *tcpReadOp
	pendingWrite   *tcpWriteOp
	pendingConnect ConnectHandler

	// generation guards drop callbacks against firing against a
	// connection that has since been closed and possibly reused for a
	// fresh one — sequence numbers reset to 0 on close, so a stale
	// callback could otherwise mutate state belonging to a new stream.
	generation uint64
}

func newTCPSocket(h *HostContext) *TCPSocket {
	return &TCPSocket{
		host:             h,
		sim:              h.sim,
		forwarder:        newSinkForwarder("tcp"),
		reorder:          make(map[uint64]*packet.Packet),
		outstandingSizes: make(map[uint64]int),
	}
}

// Open opens the socket.
func (s *TCPSocket) Open() error {
	s.open = true
	s.forwarder.bind(s)
	return nil
}

// Bind binds the socket to ep, which must be one of the owning host's
// addresses. A zero port requests an ephemeral one.
func (s *TCPSocket) Bind(ep netip.AddrPort) error {
	if !s.open {
		return EBADF
	}
	if !s.host.HasAddress(ep.Addr()) {
		return EADDRNOTAVAIL
	}
	if ep.Port() == 0 {
		ep = netip.AddrPortFrom(ep.Addr(), s.sim.reservePort(ep.Addr()))
	}
	s.localAddr = ep
	s.bound = true
	return nil
}

func (s *TCPSocket) autobind(peer netip.Addr) error {
	for _, a := range s.host.Addresses() {
		if a.Is4() == peer.Is4() {
			return s.Bind(netip.AddrPortFrom(a, 0))
		}
	}
	return EAFNOSUPPORT
}

// LocalEndpoint returns the socket's bound endpoint.
func (s *TCPSocket) LocalEndpoint() netip.AddrPort { return s.localAddr }

// RemoteEndpoint returns the endpoint this socket is connected to.
func (s *TCPSocket) RemoteEndpoint() (netip.AddrPort, error) {
	if s.channel == nil {
		return netip.AddrPort{}, ENOTCONN
	}
	return s.channel.Endpoint(s.channel.remoteIdx(s.localAddr)), nil
}

// SetNonBlocking records the non-blocking setting reported by
// [*TCPSocket.NonBlocking]. No call's behavior depends on it: the
// synchronous calls never block either way.
func (s *TCPSocket) SetNonBlocking(v bool) { s.nonBlocking = v }

// NonBlocking reports the current non-blocking setting.
func (s *TCPSocket) NonBlocking() bool { return s.nonBlocking }

// AsyncConnect performs the three-way handshake against target.
func (s *TCPSocket) AsyncConnect(target netip.AddrPort, cb ConnectHandler) {
	if !s.open {
		s.sim.sched.Post(func() { cb(EBADF) })
		return
	}
	if !s.bound {
		if err := s.autobind(target.Addr()); err != nil {
			s.sim.sched.Post(func() { cb(err) })
			return
		}
	}
	if s.localAddr.Addr().Is4() != target.Addr().Is4() {
		s.scheduleRefusal(cb)
		return
	}
	acc, ok := s.sim.lookupListener(target)
	if !ok {
		s.scheduleRefusal(cb)
		return
	}

	s.cancelPendingConnect()
	ch := newChannel(s.localAddr, target, s.sim.config, s.forwarder, acc.forwarder)
	s.channel = ch
	s.pendingConnect = cb
	s.mss = s.sim.config.PathMTU(s.localAddr.Addr(), target.Addr())
	s.cwnd = s.mss * initialCwndSegments

	remote := ch.remoteIdx(s.localAddr)
	syn := &packet.Packet{Kind: packet.SYN, Channel: ch, Overhead: tcpOverhead, Hops: ch.route(remote)}
	packet.Forward(syn)
}

// scheduleRefusal completes cb with connection_refused after the fixed
// no-listener delay, or operation_aborted if cancelled first.
func (s *TCPSocket) scheduleRefusal(cb ConnectHandler) {
	s.cancelPendingConnect()
	s.pendingConnect = cb
	at := s.sim.Now().Add(connectRefusalDelay)
	s.sim.sched.AddTimer(at, func(aborted bool) {
		if s.pendingConnect == nil {
			return
		}
		handler := s.pendingConnect
		s.pendingConnect = nil
		if aborted {
			handler(OperationAborted)
			return
		}
		handler(ECONNREFUSED)
	})
}

// WriteSome sends as many bytes of bufs as the congestion window allows
// right now and returns the count without waiting, the synchronous
// counterpart to [*TCPSocket.AsyncWriteSome]. If the window is fully
// occupied it returns 0, [EAGAIN] — this simulator has no thread to
// block on, so [*TCPSocket.NonBlocking] changes nothing about this
// call's behavior, only whether a caller built against a real socket
// API would have chosen to call it at all.
func (s *TCPSocket) WriteSome(bufs Buffers) (int, error) {
	if !s.open {
		return 0, EBADF
	}
	if s.channel == nil {
		return 0, ENOTCONN
	}
	remote := s.channel.remoteIdx(s.localAddr)
	if s.bytesInFlight+s.mss > s.cwnd {
		return 0, EAGAIN
	}
	data := bufs.Flatten()
	sent := 0
	gen := s.generation
	for len(data) > 0 {
		if s.bytesInFlight+s.mss > s.cwnd {
			break
		}
		n := min(s.mss, len(data))
		piece := append([]byte{}, data[:n]...)

		seq := s.nextOutgoingSeq
		s.nextOutgoingSeq++

		p := &packet.Packet{
			Kind:     packet.Payload,
			Payload:  piece,
			From:     s.localAddr,
			Overhead: tcpOverhead,
			Hops:     s.channel.route(remote),
			Seq:      seq,
		}
		p.OnDrop = func(dropped *packet.Packet) { s.packetDropped(gen, dropped) }

		s.outstandingSizes[seq] = len(piece)
		s.bytesInFlight += len(piece)
		packet.Forward(p)

		data = data[n:]
		sent += n
	}
	return sent, nil
}

// ReadSome gathers whatever bytes are immediately available into bufs
// without waiting, the synchronous counterpart to
// [*TCPSocket.AsyncReadSome]. It returns 0, [EAGAIN] if nothing has
// arrived yet.
func (s *TCPSocket) ReadSome(bufs Buffers) (int, error) {
	if !s.open {
		return 0, EBADF
	}
	if len(s.incoming) == 0 {
		return 0, EAGAIN
	}
	cursor := newBufferCursor(bufs)
	gathered := 0
	for len(s.incoming) > 0 {
		head := s.incoming[0]
		if head.Kind == packet.Error {
			if gathered == 0 {
				s.incoming = s.incoming[1:]
				err := head.Err
				s.channel = nil
				return 0, err
			}
			break
		}
		n := cursor.write(head.Payload)
		gathered += n
		if n == len(head.Payload) {
			s.incoming = s.incoming[1:]
		} else {
			head.Payload = head.Payload[n:]
		}
		if cursor.full() {
			break
		}
	}
	if gathered == 0 {
		return 0, EAGAIN
	}
	return gathered, nil
}

// AsyncWriteSome sends as many bytes of bufs as the congestion window
// allows and completes with the count. If nothing at all can be sent
// right now, the write is registered pending and retried once the
// window opens up.
func (s *TCPSocket) AsyncWriteSome(bufs Buffers, cb WriteHandler) {
	if !s.open {
		s.sim.sched.Post(func() { cb(0, EBADF) })
		return
	}
	if s.channel == nil {
		s.sim.sched.Post(func() { cb(0, ENOTCONN) })
		return
	}
	s.cancelPendingWrite()
	s.attemptWrite(bufs, cb)
}

func (s *TCPSocket) attemptWrite(bufs Buffers, cb WriteHandler) {
	data := bufs.Flatten()
	sent := 0
	remote := s.channel.remoteIdx(s.localAddr)
	gen := s.generation

	for len(data) > 0 {
		if s.bytesInFlight+s.mss > s.cwnd {
			break
		}
		n := min(s.mss, len(data))
		piece := append([]byte{}, data[:n]...)

		seq := s.nextOutgoingSeq
		s.nextOutgoingSeq++

		p := &packet.Packet{
			Kind:     packet.Payload,
			Payload:  piece,
			From:     s.localAddr,
			Overhead: tcpOverhead,
			Hops:     s.channel.route(remote),
			Seq:      seq,
		}
		p.OnDrop = func(dropped *packet.Packet) { s.packetDropped(gen, dropped) }

		s.outstandingSizes[seq] = len(piece)
		s.bytesInFlight += len(piece)
		packet.Forward(p)

		data = data[n:]
		sent += n
	}

	if sent == 0 && len(data) > 0 {
		s.pendingWrite = &tcpWriteOp{bufs: bufs, handler: cb}
		return
	}
	s.sim.sched.Post(func() { cb(sent, nil) })
}

func (s *TCPSocket) cancelPendingWrite() {
	if s.pendingWrite == nil {
		return
	}
	op := s.pendingWrite
	s.pendingWrite = nil
	s.sim.sched.Post(func() { op.handler(0, OperationAborted) })
}

func (s *TCPSocket) cancelPendingRead() {
	if s.pendingRead == nil {
		return
	}
	op := s.pendingRead
	s.pendingRead = nil
	s.sim.sched.Post(func() { op.handler(0, OperationAborted) })
}

func (s *TCPSocket) cancelPendingConnect() {
	if s.pendingConnect == nil {
		return
	}
	cb := s.pendingConnect
	s.pendingConnect = nil
	s.sim.sched.Post(func() { cb(OperationAborted) })
}

// packetDropped is called at most once per packet, by its own drop
// callback, when a queue somewhere on the route discards it.
func (s *TCPSocket) packetDropped(generation uint64, p *packet.Packet) {
	if generation != s.generation || s.channel == nil {
		return
	}
	if size, ok := s.outstandingSizes[p.Seq]; ok {
		delete(s.outstandingSizes, p.Seq)
		s.bytesInFlight -= size
	}

	if !s.withinOneRTTOfLastDrop(p.Seq) {
		s.cwnd /= 2
		if s.cwnd < s.mss {
			s.cwnd = s.mss
		}
		s.lastDropSeq = p.Seq
		s.haveLastDrop = true
	}

	remote := s.channel.remoteIdx(s.localAddr)
	p.Hops = s.channel.route(remote)
	p.OnDrop = func(dropped *packet.Packet) { s.packetDropped(generation, dropped) }
	s.retransmit = append(s.retransmit, p)
	s.drainRetransmitQueue()
}

// withinOneRTTOfLastDrop reports whether seq is a drop notification
// that arrived for a segment sent within roughly one RTT (one cwnd's
// worth of packets) of the last segment that already triggered a
// halving, and so should not trigger another one. The comparison is
// deliberately asymmetric: any seq at or below lastDropSeq is treated
// as an old or reordered notification for a segment sent before (or
// as) the one that already halved cwnd, and is suppressed regardless
// of how far below it falls, matching the original's
// `seq_nr < last_drop_seq + packets_in_cwnd`.
func (s *TCPSocket) withinOneRTTOfLastDrop(seq uint64) bool {
	if !s.haveLastDrop {
		return false
	}
	packets := uint64(1)
	if s.mss > 0 {
		packets = uint64(s.cwnd) / uint64(s.mss)
	}
	if packets == 0 {
		packets = 1
	}
	return seq < s.lastDropSeq+packets
}

func (s *TCPSocket) drainRetransmitQueue() {
	for len(s.retransmit) > 0 {
		head := s.retransmit[0]
		if s.bytesInFlight+len(head.Payload) > s.cwnd {
			break
		}
		s.retransmit = s.retransmit[1:]
		s.outstandingSizes[head.Seq] = len(head.Payload)
		s.bytesInFlight += len(head.Payload)
		packet.Forward(head)
	}
}

// AsyncReadSome gathers bytes from successive incoming payload packets
// into bufs until they're full or the incoming queue empties.
func (s *TCPSocket) AsyncReadSome(bufs Buffers, cb ReadHandler) {
	if !s.open {
		s.sim.sched.Post(func() { cb(0, EBADF) })
		return
	}
	s.cancelPendingRead()
	if s.tryRead(bufs, cb) {
		return
	}
	s.pendingRead = &tcpReadOp{bufs: bufs, handler: cb}
}

// AsyncWaitReadable completes as soon as [*TCPSocket.Available] is
// greater than zero, or an error leads the queue, without consuming
// anything — the readiness-only read variant.
func (s *TCPSocket) AsyncWaitReadable(cb ReadHandler) {
	if !s.open {
		s.sim.sched.Post(func() { cb(0, EBADF) })
		return
	}
	if n, err := s.Available(); n > 0 || err != nil {
		s.sim.sched.Post(func() { cb(n, err) })
		return
	}
	s.cancelPendingRead()
	s.pendingRead = &tcpReadOp{handler: cb, nullBuffers: true}
}

// tryRead attempts to satisfy a read immediately, posting the
// completion and returning true if it could gather any bytes or
// deliver a leading error.
func (s *TCPSocket) tryRead(bufs Buffers, cb ReadHandler) bool {
	if len(s.incoming) == 0 {
		return false
	}
	cursor := newBufferCursor(bufs)
	gathered := 0

	for len(s.incoming) > 0 {
		head := s.incoming[0]
		if head.Kind == packet.Error {
			if gathered == 0 {
				s.incoming = s.incoming[1:]
				err := head.Err
				s.channel = nil
				s.sim.sched.Post(func() { cb(0, err) })
				return true
			}
			break
		}

		n := cursor.write(head.Payload)
		gathered += n
		if n == len(head.Payload) {
			s.incoming = s.incoming[1:]
		} else {
			head.Payload = head.Payload[n:]
		}
		if cursor.full() {
			break
		}
	}

	if gathered == 0 {
		return false
	}
	n := gathered
	s.sim.sched.Post(func() { cb(n, nil) })
	return true
}

// Available sums payload bytes at the head of the incoming queue up to
// the first error packet. If an error leads the queue, it is surfaced
// directly instead of a byte count.
func (s *TCPSocket) Available() (int, error) {
	if len(s.incoming) > 0 && s.incoming[0].Kind == packet.Error {
		return 0, s.incoming[0].Err
	}
	total := 0
	for _, p := range s.incoming {
		if p.Kind == packet.Error {
			break
		}
		total += len(p.Payload)
	}
	return total, nil
}

// Close shuts the socket down, sending an EOF error packet to the peer
// if connected, then resets connection-scoped state so the socket can
// be reused for a fresh connect.
func (s *TCPSocket) Close() error {
	if !s.open {
		return nil
	}
	s.open = false

	if s.channel != nil && s.channel.state == connected {
		remote := s.channel.remoteIdx(s.localAddr)
		seq := s.nextOutgoingSeq
		s.nextOutgoingSeq++
		eof := &packet.Packet{
			Kind:     packet.Error,
			Err:      EOF,
			Overhead: tcpOverhead,
			Seq:      seq,
			Hops:     s.channel.route(remote),
		}
		packet.Forward(eof)
	}

	s.sim.logger.Debug("tcp.close",
		slog.String("localAddr", s.localAddr.String()),
		slog.String("errClass", errclass.New(EOF)),
	)

	s.Cancel()

	s.channel = nil
	s.bound = false
	s.forwarder.clear()
	s.generation++
	s.nextOutgoingSeq = 0
	s.nextIncomingSeq = 0
	s.lastDropSeq = 0
	s.haveLastDrop = false
	s.reorder = make(map[uint64]*packet.Packet)
	s.outstandingSizes = make(map[uint64]int)
	s.retransmit = nil
	s.incoming = nil
	s.bytesInFlight = 0
	s.cwnd = 0
	return nil
}

// Cancel aborts any pending read, write, or connect with
// [OperationAborted].
func (s *TCPSocket) Cancel() {
	s.cancelPendingRead()
	s.cancelPendingWrite()
	s.cancelPendingConnect()
}

// IncomingPacket implements [packet.Sink].
func (s *TCPSocket) IncomingPacket(p *packet.Packet) {
	switch p.Kind {
	case packet.SYNACK:
		s.handleSynAck(p)
	case packet.ACK:
		s.handleAck(p)
	case packet.Payload:
		s.handlePayload(p)
	case packet.Error:
		if s.pendingConnect != nil && s.channel != nil && s.channel.state != connected {
			handler := s.pendingConnect
			s.pendingConnect = nil
			s.channel = nil
			err := p.Err
			s.sim.sched.Post(func() { handler(err) })
			return
		}
		s.incoming = append(s.incoming, p)
		s.wakeReader()
	default:
		p.Drop()
	}
}

func (s *TCPSocket) handleSynAck(p *packet.Packet) {
	if s.channel != nil {
		s.channel.state = connected
	}
	if s.pendingConnect == nil {
		return
	}
	cb := s.pendingConnect
	s.pendingConnect = nil
	s.sim.sched.Post(func() { cb(nil) })
}

func (s *TCPSocket) handlePayload(p *packet.Packet) {
	remote := s.channel.remoteIdx(s.localAddr)
	ack := &packet.Packet{Kind: packet.ACK, Seq: p.Seq, Overhead: tcpOverhead, Hops: s.channel.route(remote)}
	packet.Forward(ack)

	switch {
	case p.Seq == s.nextIncomingSeq:
		s.incoming = append(s.incoming, p)
		s.nextIncomingSeq++
		for {
			next, ok := s.reorder[s.nextIncomingSeq]
			if !ok {
				break
			}
			delete(s.reorder, s.nextIncomingSeq)
			s.incoming = append(s.incoming, next)
			s.nextIncomingSeq++
		}
		s.wakeReader()
	case p.Seq < s.nextIncomingSeq:
		// duplicate delivery of an already-consumed segment; the ACK
		// above is enough to reassure the sender.
	default:
		s.reorder[p.Seq] = p
	}
}

func (s *TCPSocket) handleAck(p *packet.Packet) {
	wasBlocked := s.bytesInFlight+s.mss > s.cwnd

	size, ok := s.outstandingSizes[p.Seq]
	if ok {
		delete(s.outstandingSizes, p.Seq)
		s.bytesInFlight -= size
		s.drainRetransmitQueue()
		if s.cwnd > 0 {
			s.cwnd += s.mss * size / s.cwnd
		}
	}

	if wasBlocked && s.bytesInFlight+s.mss <= s.cwnd && s.pendingWrite != nil {
		op := s.pendingWrite
		s.pendingWrite = nil
		s.attemptWrite(op.bufs, op.handler)
	}
}

func (s *TCPSocket) wakeReader() {
	if s.pendingRead == nil {
		return
	}
	if s.pendingRead.nullBuffers {
		n, err := s.Available()
		if n == 0 && err == nil {
			return
		}
		op := s.pendingRead
		s.pendingRead = nil
		s.sim.sched.Post(func() { op.handler(n, err) })
		return
	}
	op := s.pendingRead
	if s.tryRead(op.bufs, op.handler) {
		s.pendingRead = nil
	}
}

// Label implements [packet.Sink].
func (s *TCPSocket) Label() string { return "tcp:" + s.localAddr.String() }
