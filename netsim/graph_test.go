// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpNetworkGraphProducesWellFormedDOT(t *testing.T) {
	sim := newTestSimulation()
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	sim.Host(a)
	sim.Host(b)

	var buf bytes.Buffer
	require.NoError(t, dumpNetworkGraph(sim, &buf))

	out := buf.String()
	assert.Contains(t, out, "digraph network {")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("}\n")))
	assert.Contains(t, out, a.String())
	assert.Contains(t, out, b.String())
}

func TestDumpNetworkGraphWritesToFile(t *testing.T) {
	sim := newTestSimulation()
	sim.Host(netip.MustParseAddr("10.0.0.1"))

	path := t.TempDir() + "/graph.dot"
	require.NoError(t, DumpNetworkGraph(sim, path))
}
