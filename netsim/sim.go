//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulation is the top-level object owning the virtual clock, the
// topology configuration, and the listener/bind tables sockets
// register themselves in (spec §3, §5).
//

package netsim

import (
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/common/runtimex"
	"github.com/ssiloti/libsimulator/closepool"
	"github.com/ssiloti/libsimulator/vtime"
)

// Simulation owns the single [*vtime.Scheduler] that drives every
// socket, queue, and resolver created against it. There is never more
// than one logical thread of execution inside a Simulation: handlers
// run strictly one at a time, off the scheduler's ready queue or its
// timer heap, never reentrantly from inside another handler's own call
// stack.
type Simulation struct {
	sched  *vtime.Scheduler
	config Configuration
	pool   closepool.Pool

	hosts map[netip.Addr]*HostContext

	listeners map[netip.AddrPort]*TCPAcceptor
	udpBinds  map[netip.AddrPort]*UDPSocket

	nextEphemeral uint32

	logger *slog.Logger
}

// NewSimulation creates a Simulation driven by sched against the given
// [Configuration]. sched must be the same [*vtime.Scheduler] config's
// queues were built against — [DefaultConfig] and [Topology] both take
// a scheduler at construction time for exactly this reason, so every
// queue's virtual clock and the simulation's own agree.
func NewSimulation(sched *vtime.Scheduler, config Configuration) *Simulation {
	return &Simulation{
		sched:         sched,
		config:        config,
		hosts:         make(map[netip.Addr]*HostContext),
		listeners:     make(map[netip.AddrPort]*TCPAcceptor),
		udpBinds:      make(map[netip.AddrPort]*UDPSocket),
		nextEphemeral: 49152,
		logger:        slog.Default(),
	}
}

// SetLogger overrides the [*slog.Logger] the simulation and everything
// it creates report structured events to, defaulting to
// [slog.Default()]. Tests typically call this with a logger writing to
// a [testing.T] to isolate log output per test.
func (s *Simulation) SetLogger(l *slog.Logger) { s.logger = l }

// Scheduler returns the simulation's [*vtime.Scheduler].
func (s *Simulation) Scheduler() *vtime.Scheduler { return s.sched }

// Config returns the simulation's [Configuration].
func (s *Simulation) Config() Configuration { return s.config }

// Now returns the current virtual time.
func (s *Simulation) Now() vtime.Time { return s.sched.Now() }

// Host returns the [*HostContext] for addrs, creating it on first use.
// All addrs are owned by the same host; passing the same address to
// two different Host calls is a programmer error since a
// [Configuration]'s routing decisions assume each address belongs to
// exactly one host.
func (s *Simulation) Host(addrs ...netip.Addr) *HostContext {
	runtimex.Assert(len(addrs) > 0, "a host needs at least one address")
	if h, ok := s.hosts[addrs[0]]; ok {
		return h
	}
	h := &HostContext{sim: s, addrs: append([]netip.Addr{}, addrs...)}
	for _, a := range addrs {
		s.hosts[a] = h
		s.pool.Add(closeFunc(func() error {
			delete(s.hosts, a)
			return nil
		}))
	}
	return h
}

// closeFunc adapts a plain func() error to [io.Closer] for registering
// host teardown with the simulation's [closepool.Pool].
type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// Run drains the scheduler's ready queue and fires timers until the
// simulation is stopped or goes idle (spec §5's run()).
func (s *Simulation) Run() { s.sched.Run() }

// RunOne runs at most one ready callback or timer fire, returning
// whether it did any work (spec §5's run_one()).
func (s *Simulation) RunOne() bool { return s.sched.RunOne() }

// Stop halts [Simulation.Run] after its current unit of work.
func (s *Simulation) Stop() { s.sched.Stop() }

// Stopped reports whether [Simulation.Stop] has been called since the
// last [Simulation.Reset].
func (s *Simulation) Stopped() bool { return s.sched.Stopped() }

// Close releases every host registered with the simulation. It does
// not stop or reset the scheduler; call [Simulation.Stop] first if a
// [Simulation.Run] is still in progress.
func (s *Simulation) Close() error { return s.pool.Close() }

// Reset aborts every pending timer (handlers observe aborted=true) and
// clears the stopped flag, without rewinding virtual time. This mirrors
// the original simulator's reset(), used to reuse one Simulation across
// independent test scenarios without reconstructing every socket.
func (s *Simulation) Reset() { s.sched.Reset() }

// reservePort returns an unused ephemeral port for addr, starting from
// the IANA ephemeral range and incrementing until a free one is found.
func (s *Simulation) reservePort(addr netip.Addr) uint16 {
	for {
		port := uint16(s.nextEphemeral)
		s.nextEphemeral++
		if s.nextEphemeral > 65535 {
			s.nextEphemeral = 49152
		}
		ap := netip.AddrPortFrom(addr, port)
		if _, taken := s.listeners[ap]; taken {
			continue
		}
		if _, taken := s.udpBinds[ap]; taken {
			continue
		}
		return port
	}
}

func (s *Simulation) registerListener(addr netip.AddrPort, a *TCPAcceptor) bool {
	if _, taken := s.listeners[addr]; taken {
		return false
	}
	s.listeners[addr] = a
	return true
}

func (s *Simulation) unregisterListener(addr netip.AddrPort) {
	delete(s.listeners, addr)
}

func (s *Simulation) lookupListener(addr netip.AddrPort) (*TCPAcceptor, bool) {
	a, ok := s.listeners[addr]
	return a, ok
}

// registerUDPBind claims addr for u. If reuse is set, it steals the
// address away from whatever socket already holds it instead of
// failing, modeling SO_REUSEADDR's effect on a bind that would
// otherwise collide.
func (s *Simulation) registerUDPBind(addr netip.AddrPort, u *UDPSocket, reuse bool) bool {
	if _, taken := s.udpBinds[addr]; taken && !reuse {
		return false
	}
	s.udpBinds[addr] = u
	return true
}

func (s *Simulation) unregisterUDPBind(addr netip.AddrPort) {
	delete(s.udpBinds, addr)
}
