package fusion

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *NodeRegistry {
	t.Helper()
	r, err := NewNodeRegistry(60 * time.Second)
	require.NoError(t, err)
	return r
}

func TestNewNodeRegistryInvalidRetention(t *testing.T) {
	_, err := NewNodeRegistry(0)
	assert.Error(t, err)
}

func TestRegisterNodeUpsert(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterNode("n1", 52.5, 13.4, 15))

	node, ok := r.Lookup("n1")
	require.True(t, ok)
	assert.Equal(t, 52.5, node.Lat)
	assert.Equal(t, 15.0, node.AccuracyM)

	// Re-registration moves the node.
	require.NoError(t, r.RegisterNode("n1", 52.6, 13.5, 20))
	node, ok = r.Lookup("n1")
	require.True(t, ok)
	assert.Equal(t, 52.6, node.Lat)

	assert.Error(t, r.RegisterNode("", 0, 0, 0))
}

func TestRegisterNodeDefaultAccuracy(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterNode("n1", 0, 0, 0))
	node, ok := r.Lookup("n1")
	require.True(t, ok)
	assert.Equal(t, 50.0, node.AccuracyM)
}

func TestNearbyNodesSortedAndFiltered(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterNode("ref", 0, 0, 10))
	require.NoError(t, r.RegisterNode("near", 0, 0.00020, 10))  // ~22 m east
	require.NoError(t, r.RegisterNode("mid", 0, 0.00060, 10))   // ~67 m east
	require.NoError(t, r.RegisterNode("far", 0, 0.00200, 10))   // ~222 m east

	nearby := r.NearbyNodes("ref", 100)
	require.Len(t, nearby, 2)

	// Closest first; the reference node and out-of-radius nodes excluded.
	assert.Equal(t, "near", nearby[0].NodeID)
	assert.Equal(t, "mid", nearby[1].NodeID)
	assert.Less(t, nearby[0].DistanceM, nearby[1].DistanceM)
	assert.InDelta(t, 90.0, nearby[0].BearingToNode, 0.01)
}

func TestNearbyNodesUnknownReference(t *testing.T) {
	r := newTestRegistry(t)
	assert.Empty(t, r.NearbyNodes("ghost", 100))
}

func TestConcurrentDetections(t *testing.T) {
	r := newTestRegistry(t)

	base := int64(1_000_000_000_000)
	require.NoError(t, r.AddDetection("n1", "e1", base, 0.9, 0, 0))
	require.NoError(t, r.AddDetection("n2", "e2", base+2_000_000_000, 0.8, 0, 0))
	require.NoError(t, r.AddDetection("n3", "e3", base+20_000_000_000, 0.9, 0, 0)) // Outside window
	require.NoError(t, r.AddDetection("n4", "e4", base+1_000_000_000, 0.2, 0, 0))  // Below confidence

	got := r.ConcurrentDetections(base, 5*time.Second, 0.5)
	require.Len(t, got, 2)

	ids := map[string]bool{}
	for _, d := range got {
		ids[d.EventID] = true
	}
	assert.True(t, ids["e1"])
	assert.True(t, ids["e2"])
}

func TestAddDetectionValidation(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.AddDetection("", "e1", 1, 0.5, 0, 0))
	assert.Error(t, r.AddDetection("n1", "", 1, 0.5, 0, 0))
}

func TestDetectionRetentionSweep(t *testing.T) {
	r, err := NewNodeRegistry(50 * time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, r.AddDetection("n1", "e1", 1, 0.9, 0, 0))
	time.Sleep(80 * time.Millisecond)

	// The next insertion sweeps the expired entry.
	require.NoError(t, r.AddDetection("n2", "e2", 2, 0.9, 0, 0))

	status := r.Status()
	assert.Equal(t, 1, status.TotalDetections)
}

func TestStatus(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.RegisterNode("b", 0, 0, 10))
	require.NoError(t, r.RegisterNode("a", 0, 0, 10))
	require.NoError(t, r.AddDetection("a", "e1", 1, 0.9, 0, 0))
	require.NoError(t, r.AddDetection("a", "e2", 2, 0.9, 0, 0))

	status := r.Status()
	assert.Equal(t, 2, status.TotalNodes)
	assert.Equal(t, 2, status.TotalDetections)
	assert.Equal(t, []string{"a", "b"}, status.Nodes)
	assert.Equal(t, 60.0, status.RetentionSeconds)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := range 50 {
				_ = r.RegisterNode(id, float64(n), float64(j), 10)
				_ = r.AddDetection(id, id+"-evt", int64(j), 0.9, 0, 0)
				r.NearbyNodes(id, 1000)
				r.ConcurrentDetections(int64(j), time.Second, 0.5)
				r.Status()
			}
		}(i)
	}
	wg.Wait()
}
