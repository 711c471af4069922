//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Forwarder indirection between channels and the sockets that own them.
//

package netsim

import "github.com/ssiloti/libsimulator/packet"

// sinkForwarder is a shared, long-lived [packet.Sink] that a [Channel]
// keeps as the last hop of its route. The socket it delivers to is
// swapped in and out as sockets are accepted, moved, or closed, without
// the channel ever holding a direct pointer to a socket that may
// outlive it or be torn down while a packet is already in flight.
//
// There is exactly one goroutine driving the simulation at a time, so
// this needs no locking: bind/clear/IncomingPacket all happen on the
// scheduler's single logical thread.
type sinkForwarder struct {
	label  string
	target packet.Sink
}

// newSinkForwarder creates a forwarder with no bound target. Packets
// delivered before [sinkForwarder.bind] is called are dropped.
func newSinkForwarder(label string) *sinkForwarder {
	return &sinkForwarder{label: label}
}

// bind attaches the socket that should receive packets arriving at
// this forwarder.
func (f *sinkForwarder) bind(target packet.Sink) {
	f.target = target
}

// clear detaches the current target. Packets already in flight whose
// route still ends at this forwarder are silently dropped on arrival,
// matching a socket [Close] dropping everything still addressed to it.
func (f *sinkForwarder) clear() {
	f.target = nil
}

// bound reports whether a target is currently attached.
func (f *sinkForwarder) bound() bool {
	return f.target != nil
}

// IncomingPacket implements [packet.Sink].
func (f *sinkForwarder) IncomingPacket(p *packet.Packet) {
	if f.target == nil {
		p.Drop()
		return
	}
	f.target.IncomingPacket(p)
}

// Label implements [packet.Sink].
func (f *sinkForwarder) Label() string {
	return f.label
}
