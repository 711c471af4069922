//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// DOT-format network graph dump, for diagnostics only (spec §6).
//

package netsim

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"

	"github.com/ssiloti/libsimulator/packet"
)

// DumpNetworkGraph writes a DOT-format directed graph of sim's hosts
// and the routes connecting them to filename: one cluster subgraph per
// host holding its ingress/egress queues, and edges tracing the full
// route ([Configuration.OutgoingRoute], then
// [Configuration.ChannelRoute], then [Configuration.IncomingRoute])
// between every pair of hosts' addresses. It is
// a diagnostic tool only — nothing in [Simulation] reads it back.
func DumpNetworkGraph(sim *Simulation, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return dumpNetworkGraph(sim, f)
}

func dumpNetworkGraph(sim *Simulation, w io.Writer) error {
	type edge struct{ from, to string }
	nodeLabel := make(map[string]string)
	clusterNodes := make(map[string][]string)
	var edges []edge
	seenEdge := make(map[edge]bool)

	addEdge := func(from, to packet.Sink) {
		fromID, toID := sinkID(from), sinkID(to)
		nodeLabel[fromID] = from.Label()
		nodeLabel[toID] = to.Label()
		e := edge{fromID, toID}
		if !seenEdge[e] {
			seenEdge[e] = true
			edges = append(edges, e)
		}
	}

	var addrs []netip.Addr
	for a := range sim.hosts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	for _, a := range addrs {
		in := sim.config.IncomingRoute(netip.AddrPortFrom(a, 0))
		out := sim.config.OutgoingRoute(netip.AddrPortFrom(a, 0))

		var cluster []string
		for _, s := range in.Hops() {
			cluster = append(cluster, sinkID(s))
		}
		for _, s := range out.Hops() {
			cluster = append(cluster, sinkID(s))
		}
		clusterNodes[a.String()] = cluster

		chainEdges(in.Hops(), addEdge)
		chainEdges(out.Hops(), addEdge)

		for _, b := range addrs {
			src, dst := netip.AddrPortFrom(a, 0), netip.AddrPortFrom(b, 0)
			full := packet.Concat(sim.config.OutgoingRoute(src), sim.config.ChannelRoute(src, dst), sim.config.IncomingRoute(dst))
			chainEdges(full.Hops(), addEdge)
		}
	}

	fmt.Fprintf(w, "digraph network {\nconcentrate=true;\noverlap=scale;\nsplines=true;\n\n// nodes\n\n")

	ids := make([]string, 0, len(nodeLabel))
	for id := range nodeLabel {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	inCluster := make(map[string]bool)
	for _, ns := range clusterNodes {
		for _, id := range ns {
			inCluster[id] = true
		}
	}
	for _, id := range ids {
		if inCluster[id] {
			continue
		}
		fmt.Fprintf(w, " %q [label=%q,style=\"filled\",color=\"red\"];\n", id, nodeLabel[id])
	}

	fmt.Fprintf(w, "\n// hosts\n\n")
	idx := 0
	for _, a := range addrs {
		fmt.Fprintf(w, "subgraph cluster_%d {\nlabel=%q;\n", idx, a.String())
		idx++
		for _, id := range clusterNodes[a.String()] {
			fmt.Fprintf(w, " %q [label=%q,style=\"filled\",color=\"green\"];\n", id, nodeLabel[id])
		}
		fmt.Fprintf(w, "}\n")
	}

	fmt.Fprintf(w, "\n// edges\n\n")
	for _, e := range edges {
		fmt.Fprintf(w, " %q -> %q;\n", e.from, e.to)
	}

	fmt.Fprintf(w, "}\n")
	return nil
}

func chainEdges(hops []packet.Sink, addEdge func(from, to packet.Sink)) {
	for i := 0; i+1 < len(hops); i++ {
		addEdge(hops[i], hops[i+1])
	}
}

func sinkID(s packet.Sink) string {
	return fmt.Sprintf("%p:%s", s, s.Label())
}
