// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netsim provides a deterministic, virtual-time network
simulator that lets asynchronous socket code run against an emulated
network of hosts, queues, and routers instead of the operating system's
own sockets.

# Usage and Features

A [*Simulation] is built against a [Configuration] — either a
[*DefaultConfig], covering the single-shared-queue case, or a
[*Topology] built up from named links and hops, optionally loaded from
YAML via [LoadTopologyConfig]. [*Simulation.Host] creates a
[*HostContext] bound to one or more addresses; a HostContext is the
factory for [*TCPSocket], [*TCPAcceptor], [*UDPSocket], and [*Resolver]
values addressed as that host.

No wall-clock time is ever consulted: every socket operation advances
virtual time through the [*Simulation]'s scheduler, driven by
[*Simulation.Run] or [*Simulation.RunOne]. Handlers passed to the
Async* methods never run reentrantly from inside another handler's own
call stack — they are always posted onto the scheduler first.

Packets cross [Queue] sinks with configurable bandwidth, latency,
capacity, and drop policy; [NAT] and [DSLModem] compose queues into the
address-translating and asymmetric-uplink shapes those names imply.
[DumpNetworkGraph] renders a running simulation's topology as a DOT
graph for diagnostics.

The errors these types return are the same [syscall.Errno]-shaped
values the standard library and the kernel would generate in similar
cases (the x/sys repository supplies the system-dependent values),
plus [OperationAborted], which aliases the platform's cancellation code
(ECANCELED, or ERROR_OPERATION_ABORTED on Windows), and
[ErrHostNotFound], a plain error value with no syscall analogue.

# Design Documents

See DESIGN.md at the repository root for the rationale behind this
package's structure.
*/
package netsim
