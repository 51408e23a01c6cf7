package ring

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ip(s string) net.IP { return net.ParseIP(s) }

func TestAddAndOwnerOf(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(ip("192.168.0.1")))
	require.NoError(t, p.Add(ip("192.168.0.2")))
	require.NoError(t, p.Add(ip("192.168.0.3")))

	owner, err := p.OwnerOf([]byte("test_string"))
	require.NoError(t, err)
	assert.Contains(t, p.Nodes(), owner)
}

func TestAddDuplicateIsIdempotent(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(ip("192.168.0.1")))
	// Re-adding the exact same node is idempotent.
	require.NoError(t, p.Add(ip("192.168.0.1")))
}

func TestRemoveExisting(t *testing.T) {
	p := New()
	addr := ip("192.168.0.1")
	require.NoError(t, p.Add(addr))
	removed, err := p.Remove(addr)
	require.NoError(t, err)
	assert.True(t, removed.Equal(addr))
	assert.Equal(t, 0, p.Len())
}

func TestRemoveNonexistent(t *testing.T) {
	p := New()
	_, err := p.Remove(ip("192.168.0.1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOwnerOfEmptyRing(t *testing.T) {
	p := New()
	_, err := p.OwnerOf([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestOwnerOfWraps(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(ip("192.168.0.1")))
	require.NoError(t, p.Add(ip("192.168.0.2")))

	// A key whose hash is greater than every node's token must wrap to the
	// lowest token.
	nodes := p.Nodes() // token order
	highest := Token(nodes[len(nodes)-1])
	var key []byte
	found := false
	for i := 0; i < 1<<20 && !found; i++ {
		key = []byte{byte(i), byte(i >> 8), byte(i >> 16)}
		found = Token(key) > highest
	}
	require.True(t, found, "no probe key hashes above the highest node token")

	owner, err := p.OwnerOf(key)
	require.NoError(t, err)
	assert.True(t, owner.Equal(nodes[0]))
}

func TestSuccessorsSingleNodeCollapses(t *testing.T) {
	p := New()
	self := ip("10.0.0.1")
	require.NoError(t, p.Add(self))

	succ, err := p.Successors(self, 2)
	require.NoError(t, err)
	require.Len(t, succ, 2)
	for _, s := range succ {
		assert.True(t, s.Equal(self))
	}
}

func TestSuccessorsSkipsSelfAndWraps(t *testing.T) {
	p := New()
	nodes := []net.IP{ip("127.0.0.1"), ip("127.0.0.2"), ip("127.0.0.3")}
	for _, n := range nodes {
		require.NoError(t, p.Add(n))
	}

	for _, n := range nodes {
		succ, err := p.Successors(n, 2)
		require.NoError(t, err)
		require.Len(t, succ, 2)
		assert.NotContains(t, succ, n)
	}
}

func TestContainsAndNodes(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(ip("192.168.0.1")))
	require.NoError(t, p.Add(ip("192.168.0.2")))

	assert.True(t, p.Contains(ip("192.168.0.1")))
	assert.False(t, p.Contains(ip("192.168.0.9")))
	assert.Len(t, p.Nodes(), 2)
}

// TestOwnerOfConsistency exercises the invariant that the owner of any
// fixed key always belongs to the current node set.
func TestOwnerOfConsistency(t *testing.T) {
	p := New()
	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}
	for _, s := range ips {
		require.NoError(t, p.Add(ip(s)))
	}

	for i := 0; i < 50; i++ {
		key := []byte{byte(i), byte(i * 7), byte(i * 13)}
		owner, err := p.OwnerOf(key)
		require.NoError(t, err)
		assert.Contains(t, p.Nodes(), owner)
	}
}
