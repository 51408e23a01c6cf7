package gossip

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(ip string, gen uint64, ver uint32) Digest {
	return NewDigest(net.ParseIP(ip), HeartbeatState{Generation: gen, Version: ver})
}

func TestSynRoundTrip(t *testing.T) {
	syn := NewSyn([]Digest{node("255.0.0.1", 1, 2), node("255.0.0.2", 1, 3)})
	msg, err := NewMessage(net.ParseIP("10.0.0.1"), syn)
	require.NoError(t, err)

	body, err := msg.Encode()
	require.NoError(t, err)

	got, err := DecodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, PayloadSyn, got.Type)
	assert.Equal(t, syn.Digests, got.Syn.Digests)
	assert.True(t, net.ParseIP("10.0.0.1").Equal(got.From))
}

func TestAckRoundTripWithInfo(t *testing.T) {
	stale := []Digest{node("255.0.0.1", 1, 2)}
	updated := map[Digest]ApplicationState{
		node("255.0.0.2", 1, 3): {
			Status:  Normal,
			Version: 5,
			Schemas: []Schema{{Keyspace: "ks", Tables: []string{"t1", "t2"}}},
		},
	}
	ack := NewAck(stale, updated)
	msg, err := NewMessage(net.ParseIP("10.0.0.1"), ack)
	require.NoError(t, err)

	body, err := msg.Encode()
	require.NoError(t, err)

	got, err := DecodeMessage(body)
	require.NoError(t, err)
	require.Equal(t, PayloadAck, got.Type)
	assert.Equal(t, ack.StaleDigests, got.Ack.StaleDigests)
	assert.Equal(t, ack.UpdatedInfo, got.Ack.UpdatedInfo)
}

func TestAck2RoundTrip(t *testing.T) {
	updated := map[Digest]ApplicationState{
		node("255.0.0.3", 2, 1): {Status: Bootstrap, Version: 0},
	}
	ack2 := NewAck2(updated)
	msg, err := NewMessage(net.ParseIP("10.0.0.1"), ack2)
	require.NoError(t, err)

	body, err := msg.Encode()
	require.NoError(t, err)

	got, err := DecodeMessage(body)
	require.NoError(t, err)
	require.Equal(t, PayloadAck2, got.Type)
	assert.Equal(t, ack2.UpdatedInfo, got.Ack2.UpdatedInfo)
}

func TestDecodeMessageRejectsUnknownType(t *testing.T) {
	body := append(net.ParseIP("10.0.0.1").To4(), 0x09)
	_, err := DecodeMessage(body)
	assert.Error(t, err)
}
