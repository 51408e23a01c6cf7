package gossip

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestRoundTrip(t *testing.T) {
	d := NewDigest(net.ParseIP("255.0.0.1"), HeartbeatState{Generation: 0x0123456789abcdef, Version: 0xfedcba98})
	buf := d.encode(nil)
	assert.Len(t, buf, digestWireLen)

	got, rest, err := decodeDigest(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, d, got)
}

func TestDigestLessOrdersByAddressThenHeartbeat(t *testing.T) {
	a := NewDigest(net.ParseIP("255.0.0.1"), HeartbeatState{Generation: 1, Version: 1})
	b := NewDigest(net.ParseIP("255.0.0.2"), HeartbeatState{Generation: 1, Version: 1})
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	c := NewDigest(net.ParseIP("255.0.0.1"), HeartbeatState{Generation: 1, Version: 2})
	assert.True(t, a.Less(c))
}
