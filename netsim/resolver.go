//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Serial hostname resolver (spec §4.8).
//

package netsim

import (
	"net/netip"

	"github.com/ssiloti/libsimulator/vtime"
)

// ResolveResult is one resolved endpoint, paired with the hostname and
// service that produced it — the "iterator over (endpoint, host,
// service)" the resolver's async_resolve hands back.
type ResolveResult struct {
	Endpoint netip.AddrPort
	Host     string
	Service  string
}

// ResolveHandler completes an [*Resolver.AsyncResolve] operation.
type ResolveHandler func(results []ResolveResult, err error)

type resolveEntry struct {
	host    string
	service string
	port    uint16
	cb      ResolveHandler
}

// Resolver serializes DNS-style lookups against a [Simulation]'s
// [Configuration]: only one lookup is ever in flight, and later
// queries queue up behind earlier ones. IP-literal queries bypass the
// queue entirely and complete with zero latency, their handler posted
// straight to the scheduler.
type Resolver struct {
	sim   *Simulation
	queue []resolveEntry
	timer *vtime.Timer
}

func newResolver(sim *Simulation) *Resolver {
	return &Resolver{sim: sim}
}

// AsyncResolve resolves host:port (service is carried through to the
// result purely as a label; port is what actually populates the
// returned endpoints). An address literal for host resolves
// immediately with zero virtual-time advance; otherwise the query is
// appended to the serial queue and processed in order.
func (r *Resolver) AsyncResolve(host string, service string, port uint16, cb ResolveHandler) {
	if addr, err := netip.ParseAddr(host); err == nil {
		result := []ResolveResult{{Endpoint: netip.AddrPortFrom(addr, port), Host: host, Service: service}}
		r.sim.sched.Post(func() { cb(result, nil) })
		return
	}

	entry := resolveEntry{host: host, service: service, port: port, cb: cb}
	r.queue = append(r.queue, entry)
	if len(r.queue) == 1 {
		r.armHead()
	}
}

// armHead schedules the completion of the queue's head entry, whose
// latency comes from the configuration's [Configuration.HostnameLookup].
func (r *Resolver) armHead() {
	if len(r.queue) == 0 {
		return
	}
	entry := r.queue[0]
	addrs, latency, err := r.sim.config.HostnameLookup(entry.host)

	r.timer = r.sim.sched.AddTimer(r.sim.Now().Add(latency), func(aborted bool) {
		r.timer = nil
		if len(r.queue) == 0 {
			return
		}
		done := r.queue[0]
		r.queue = r.queue[1:]

		if aborted {
			done.cb(nil, OperationAborted)
		} else if err != nil {
			done.cb(nil, err)
		} else {
			results := make([]ResolveResult, len(addrs))
			for i, a := range addrs {
				results[i] = ResolveResult{Endpoint: netip.AddrPortFrom(a, done.port), Host: done.host, Service: done.service}
			}
			done.cb(results, nil)
		}

		r.armHead()
	})
}

// Cancel empties the queue, posting [OperationAborted] to every
// pending callback including the one currently timed.
func (r *Resolver) Cancel() {
	if r.timer != nil {
		r.sim.sched.RemoveTimer(r.timer)
		r.timer = nil
	}
	pending := r.queue
	r.queue = nil
	for _, entry := range pending {
		cb := entry.cb
		r.sim.sched.Post(func() { cb(nil, OperationAborted) })
	}
}
