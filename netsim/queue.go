//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Bandwidth- and latency-constrained queue sinks (spec §4.3).
//

package netsim

import (
	"log/slog"
	"net/netip"

	"github.com/iti/rngstream"
	"github.com/ssiloti/libsimulator/packet"
	"github.com/ssiloti/libsimulator/vtime"
)

// DropPolicy decides whether a packet arriving at a [Queue] that has a
// byte budget should be dropped.
type DropPolicy interface {
	// ShouldDrop is consulted once for every droppable packet arriving
	// at a queue with a byte budget, before it is admitted. occupied is the
	// queue depth before the packet would be added, limit is the
	// configured capacity, size is the candidate packet's size.
	ShouldDrop(occupied, limit, size int) bool
}

// DropTail drops every packet that would push the queue over capacity.
// This is the default, matching a plain FIFO network buffer.
type DropTail struct{}

// ShouldDrop implements [DropPolicy].
func (DropTail) ShouldDrop(occupied, limit, size int) bool {
	return occupied+size > limit
}

// RandomEarly drops probabilistically as the queue fills, approximating
// RED (Random Early Detection). Below minThreshold bytes nothing is
// ever dropped early; at or above limit everything is dropped, same as
// [DropTail]; in between the drop probability rises linearly from 0 to
// maxP.
type RandomEarly struct {
	MinThreshold int
	MaxP         float64
	rng          *rngstream.RngStream
}

// NewRandomEarly builds a [RandomEarly] policy with its own RNG stream,
// named label for stream independence across queues.
func NewRandomEarly(label string, minThreshold int, maxP float64) *RandomEarly {
	return &RandomEarly{
		MinThreshold: minThreshold,
		MaxP:         maxP,
		rng:          rngstream.New(label),
	}
}

// ShouldDrop implements [DropPolicy].
func (p *RandomEarly) ShouldDrop(occupied, limit, size int) bool {
	if occupied+size > limit {
		return true
	}
	if occupied < p.MinThreshold || limit <= p.MinThreshold {
		return false
	}
	frac := float64(occupied-p.MinThreshold) / float64(limit-p.MinThreshold)
	return p.rng.RandU01() < frac*p.MaxP
}

// Queue is a bandwidth- and latency-constrained [packet.Sink]. It holds
// at most CapacityBytes worth of packets in flight, serializes them at
// RateBytesPerSec, and adds a fixed propagation Latency to each one
// before handing it to the next hop in the packet's route.
//
// A Queue has no internal buffer of its own: packets that are admitted
// are scheduled for delivery and forgotten; "occupancy" is tracked only
// as the byte total of packets still between admission and delivery,
// recovered by subtracting as each scheduled delivery fires.
type Queue struct {
	label         string
	sched         *vtime.Scheduler
	rateBps       float64
	latency       vtime.Duration
	capacityBytes int
	policy        DropPolicy

	occupied      int
	nextAvailable vtime.Time

	logger *slog.Logger
}

// NewQueue creates a Queue. rateBytesPerSec of 0 means unconstrained
// bandwidth (only latency and capacity apply).
func NewQueue(label string, sched *vtime.Scheduler, rateBytesPerSec float64, latency vtime.Duration, capacityBytes int, policy DropPolicy) *Queue {
	if policy == nil {
		policy = DropTail{}
	}
	return &Queue{
		label:         label,
		sched:         sched,
		rateBps:       rateBytesPerSec,
		latency:       latency,
		capacityBytes: capacityBytes,
		policy:        policy,
		nextAvailable: sched.Now(),
		logger:        slog.Default(),
	}
}

// SetLogger overrides the [*slog.Logger] q reports drop events to,
// defaulting to [slog.Default()].
func (q *Queue) SetLogger(l *slog.Logger) { q.logger = l }

// SetPolicy replaces q's [DropPolicy], taking effect on the next
// admitted packet. A nil p resets q to [DropTail].
func (q *Queue) SetPolicy(p DropPolicy) {
	if p == nil {
		p = DropTail{}
	}
	q.policy = p
}

// Label implements [packet.Sink].
func (q *Queue) Label() string { return q.label }

// IncomingPacket implements [packet.Sink]. Non-droppable packet kinds
// (SYNACK, ACK, Error) bypass the drop policy and capacity check
// entirely, but still pay transmission delay, matching spec §4.3's
// handshake/ack-never-drops rule.
func (q *Queue) IncomingPacket(p *packet.Packet) {
	size := p.Size()

	if p.Droppable() && q.capacityBytes > 0 && q.policy.ShouldDrop(q.occupied, q.capacityBytes, size) {
		q.logger.Debug("queue.drop",
			slog.String("queue", q.label),
			slog.String("kind", p.Kind.String()),
			slog.Int("size", size),
			slog.Int("occupied", q.occupied),
			slog.Int("capacityBytes", q.capacityBytes),
		)
		p.Drop()
		return
	}

	now := q.sched.Now()
	if q.nextAvailable.Before(now) {
		q.nextAvailable = now
	}

	xmitTime := vtime.Duration(0)
	if q.rateBps > 0 {
		xmitTime = vtime.Duration(float64(size) / q.rateBps * float64(vtime.Second))
	}

	sendStart := q.nextAvailable
	q.nextAvailable = sendStart.Add(xmitTime)
	arrival := sendStart.Add(xmitTime).Add(q.latency)

	q.occupied += size
	q.sched.AddTimer(arrival, func(aborted bool) {
		q.occupied -= size
		if aborted {
			p.Drop()
			return
		}
		packet.Forward(p)
	})
}

// NAT is a [packet.Sink] that rewrites a packet's apparent source
// address as it crosses from a private host into the public side of a
// link, giving every private sender behind it a single shared public
// endpoint the way a home router's masquerading NAT does. It wraps an
// inner [Queue] to provide the same bandwidth/latency/drop behavior as
// a plain link.
//
// The only address a [packet.Packet] carries is From, used by UDP
// sockets to report a datagram's sender; everything else about a
// packet's path is already baked into its Hops route by the time it
// reaches a Sink. So NAT's translation is exactly that: rewriting
// From on the way through, and remembering the mapping so a caller
// that needs to talk back to the original private endpoint can look
// it up via [*NAT.Resolve].
type NAT struct {
	inner   *Queue
	public  netip.Addr
	private func(netip.Addr) bool

	translate map[netip.AddrPort]netip.AddrPort // public ephemeral -> private
	reverse   map[netip.AddrPort]netip.AddrPort // private -> already-assigned public ephemeral
	nextPort  uint16
}

// natFirstEphemeralPort is the first port NAT hands out for a newly
// seen private endpoint, chosen the same way an OS ephemeral range
// starts well above the well-known/registered port space.
const natFirstEphemeralPort = 40000

// NewNAT wraps queue with address translation. private reports whether
// an address belongs to the link's private side; packets whose From
// address satisfies private are rewritten to a public-side ephemeral
// endpoint on public as they pass through.
func NewNAT(queue *Queue, public netip.Addr, private func(netip.Addr) bool) *NAT {
	return &NAT{
		inner:     queue,
		public:    public,
		private:   private,
		translate: make(map[netip.AddrPort]netip.AddrPort),
		reverse:   make(map[netip.AddrPort]netip.AddrPort),
		nextPort:  natFirstEphemeralPort,
	}
}

// Label implements [packet.Sink].
func (n *NAT) Label() string { return n.inner.Label() }

// Resolve maps a public-facing endpoint NAT has previously handed out
// back to the private endpoint it stands in for. It reports false if
// public is not a translation NAT has made.
func (n *NAT) Resolve(public netip.AddrPort) (netip.AddrPort, bool) {
	orig, ok := n.translate[public]
	return orig, ok
}

// IncomingPacket implements [packet.Sink]. Packets originating from a
// private-side address are assigned (or recalled) a public ephemeral
// endpoint on n.public, and p.From is rewritten before the packet is
// handed to the rate/latency-constrained inner queue.
func (n *NAT) IncomingPacket(p *packet.Packet) {
	if p.From.IsValid() && n.private(p.From.Addr()) {
		p.From = n.translated(p.From)
	}
	n.inner.IncomingPacket(p)
}

func (n *NAT) translated(priv netip.AddrPort) netip.AddrPort {
	if pub, ok := n.reverse[priv]; ok {
		return pub
	}
	pub := netip.AddrPortFrom(n.public, n.nextPort)
	n.nextPort++
	n.reverse[priv] = pub
	n.translate[pub] = priv
	return pub
}

// DSLModem is a [Queue] variant with asymmetric upstream/downstream
// rates, modeling a residential DSL or cable modem link (spec's
// supplemented-features list of representative queue shapes).
type DSLModem struct {
	Upstream   *Queue
	Downstream *Queue
}

// NewDSLModem builds the paired upstream/downstream queues for a modem
// link between a subscriber host and its provider's edge router.
func NewDSLModem(label string, sched *vtime.Scheduler, upBps, downBps float64, latency vtime.Duration, capacityBytes int) *DSLModem {
	return &DSLModem{
		Upstream:   NewQueue(label+".up", sched, upBps, latency, capacityBytes, DropTail{}),
		Downstream: NewQueue(label+".down", sched, downBps, latency, capacityBytes, DropTail{}),
	}
}
