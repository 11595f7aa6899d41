package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vindex/internal/cluster"
)

func TestNewNodeBootstrapsSingleNodeClusterAndBecomesLeader(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	n, err := NewNode(Config{
		NodeID:    "node-1",
		BindAddr:  addr,
		DataDir:   t.TempDir(),
		Bootstrap: true,
	}, cluster.New(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Shutdown() })

	require.Eventually(t, func() bool {
		return n.Raft().State() == raft.Leader
	}, 5*time.Second, 20*time.Millisecond, "bootstrapped single node must become leader")
}

func TestNodeFSMReturnsBackingFSM(t *testing.T) {
	n := newUnbootstrappedNode(t)
	assert.NotNil(t, n.FSM())
}

func TestNodeShutdownIsIdempotentSafe(t *testing.T) {
	n := newUnbootstrappedNode(t)
	require.NoError(t, n.Shutdown())
}
