// SPDX-License-Identifier: GPL-3.0-or-later

package packet

// Route is an ordered sequence of [Sink] hops a packet still has to
// traverse. The empty route is valid and never forwards anywhere.
type Route struct {
	hops []Sink
}

// NewRoute builds a [Route] from an explicit hop list.
func NewRoute(hops ...Sink) Route {
	r := Route{}
	r.hops = append(r.hops, hops...)
	return r
}

// Len returns the number of remaining hops.
func (r Route) Len() int {
	return len(r.hops)
}

// Empty reports whether the route has no more hops.
func (r Route) Empty() bool {
	return len(r.hops) == 0
}

// NextHop returns the next sink without removing it, or nil if empty.
func (r Route) NextHop() Sink {
	if len(r.hops) == 0 {
		return nil
	}
	return r.hops[0]
}

// PopFront removes and returns the first hop. Calling PopFront on an
// empty route returns nil and leaves the route empty.
func (r *Route) PopFront() Sink {
	if len(r.hops) == 0 {
		return nil
	}
	s := r.hops[0]
	r.hops = r.hops[1:]
	return s
}

// Prepend inserts hops before the current front of the route.
func (r *Route) Prepend(hops ...Sink) {
	r.hops = append(append([]Sink{}, hops...), r.hops...)
}

// PrependRoute inserts another route's hops before this route's hops.
func (r *Route) PrependRoute(other Route) {
	r.Prepend(other.hops...)
}

// Append adds hops after the current end of the route.
func (r *Route) Append(hops ...Sink) {
	r.hops = append(r.hops, hops...)
}

// Concat returns a new route consisting of r's hops followed by
// other's hops. Neither input route is mutated.
func Concat(routes ...Route) Route {
	var out Route
	for _, r := range routes {
		out.hops = append(out.hops, r.hops...)
	}
	return out
}

// ReplaceLast swaps out the final hop of the route, used when an
// acceptor hands a channel's route off to the freshly accepted socket
// (spec §4.6).
func (r *Route) ReplaceLast(s Sink) {
	if len(r.hops) == 0 {
		r.hops = []Sink{s}
		return
	}
	r.hops[len(r.hops)-1] = s
}

// Hops returns a copy of the remaining hop list, for diagnostics
// (e.g. DOT dumping) that must not mutate the route.
func (r Route) Hops() []Sink {
	return append([]Sink{}, r.hops...)
}

// Forward pops the first hop off p.Hops and delivers p to it. Forwarding
// a packet whose route is already empty is a programmer error and is a
// silent no-op — there is nowhere left to deliver it.
func Forward(p *Packet) {
	hop := p.Hops.PopFront()
	if hop == nil {
		return
	}
	hop.IncomingPacket(p)
}
