// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet contains the [Packet] and [Route] records that flow
// through the simulated network, plus the [Sink] capability every hop
// along a route must implement.
package packet

import (
	"fmt"
	"net/netip"
)

// Kind identifies what a [Packet] carries.
type Kind int

const (
	// Uninitialized is the zero value: a packet nobody has filled in yet.
	Uninitialized Kind = iota

	// SYN opens a TCP handshake.
	SYN

	// SYNACK acknowledges a SYN and opens the return half of a handshake.
	SYNACK

	// ACK acknowledges a payload segment by sequence number.
	ACK

	// Error carries an out-of-band condition (e.g. EOF, connection refused).
	Error

	// Payload carries application bytes.
	Payload
)

// String renders the kind for logs and DOT output.
func (k Kind) String() string {
	switch k {
	case SYN:
		return "syn"
	case SYNACK:
		return "syn_ack"
	case ACK:
		return "ack"
	case Error:
		return "error"
	case Payload:
		return "payload"
	default:
		return "uninitialized"
	}
}

// DefaultOverhead is the header overhead charged to ordinary packets.
const DefaultOverhead = 20

// HandshakeOverhead is the header overhead charged to connection setup
// and teardown packets (SYN, SYN+ACK, error/EOF).
const HandshakeOverhead = 40

// DropFunc is invoked, at most once, if a queue along a packet's route
// discards it instead of forwarding it.
type DropFunc func(p *Packet)

// Packet is a single hop-by-hop network event. It is a move-only value
// in spirit: callers should treat a [*Packet] as consumed once handed
// to [Sink.IncomingPacket] or [Route.Forward], and not retain it
// afterwards.
type Packet struct {
	// Kind identifies the packet's role.
	Kind Kind

	// Err is populated iff Kind == Error.
	Err error

	// Payload is populated iff Kind == Payload.
	Payload []byte

	// From is the originating (host, port), used by datagram sockets to
	// report a sender address to the reader.
	From netip.AddrPort

	// Overhead is the header bytes charged against a queue's bandwidth
	// budget in addition to len(Payload).
	Overhead int

	// Hops is the remaining route this packet still has to traverse.
	Hops Route

	// Channel is set on SYN packets to hand the fresh TCP channel to the
	// listening acceptor.
	Channel any

	// Seq is the packet's sequence number, unique per originating TCP
	// stream socket. Zero for packets that don't carry a sequence
	// (e.g. UDP datagrams).
	Seq uint64

	// OnDrop is invoked exactly once, before the packet is discarded, if
	// a queue along Hops drops it. Non-droppable kinds (SYNACK, ACK,
	// Error) never trigger this.
	OnDrop DropFunc
}

// Droppable reports whether a queue is allowed to discard this packet
// under backpressure. SYN+ACK, ACK, and Error packets are never dropped
// (spec invariant: "non-droppable kinds").
func (p *Packet) Droppable() bool {
	switch p.Kind {
	case SYNACK, ACK, Error:
		return false
	default:
		return true
	}
}

// Size is the number of bytes this packet consumes on the wire:
// payload plus header overhead.
func (p *Packet) Size() int {
	return len(p.Payload) + p.Overhead
}

// Drop discards the packet, invoking its drop callback if any.
func (p *Packet) Drop() {
	if p.OnDrop != nil {
		cb := p.OnDrop
		p.OnDrop = nil
		cb(p)
	}
}

// String renders the packet for logs and DOT edge labels.
func (p *Packet) String() string {
	switch p.Kind {
	case Error:
		return fmt.Sprintf("error seq=%d err=%v", p.Seq, p.Err)
	case Payload:
		return fmt.Sprintf("payload seq=%d len=%d", p.Seq, len(p.Payload))
	default:
		return fmt.Sprintf("%s seq=%d", p.Kind, p.Seq)
	}
}

// Sink is anything that can accept an incoming packet: queues, NATs,
// modems, host-ingress forwarders, sockets, acceptors, and the internal
// forwarder stub that stands in for a socket the simulation still holds
// a route to. This is the "closed variant expressed as an interface
// capability" option spec.md's design notes call out as acceptable.
type Sink interface {
	// IncomingPacket accepts a packet arriving at this hop. Implementations
	// must not block: forwarding onward, if any, happens by arming a timer
	// on the owning [*vtime.Scheduler] and returning immediately (spec §5).
	IncomingPacket(p *Packet)

	// Label is a short human-readable identifier, used by DOT dumps.
	Label() string
}

// Attributes is implemented by sinks that want a specific DOT node
// shape; sinks that don't implement it get "shape=box".
type Attributes interface {
	Attributes() string
}
