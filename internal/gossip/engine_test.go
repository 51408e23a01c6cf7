package gossip

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPeerNotFound = errors.New("gossip: no such peer in test transport")

// directSender wires two Engines together in-process: SendGossip hands the
// message straight to the peer's HandleIncoming, with no actual networking,
// so reconciliation can be exercised deterministically.
type directSender struct {
	peers map[string]*Engine
}

func (d *directSender) SendGossip(ctx context.Context, peer net.IP, msg *Message) (*Message, error) {
	e, ok := d.peers[peer.String()]
	if !ok {
		return nil, errPeerNotFound
	}
	return e.HandleIncoming(msg)
}

func newTestEngine(t *testing.T, ip string, bootEpoch uint64, sender Sender) *Engine {
	t.Helper()
	e := New(net.ParseIP(ip), bootEpoch, sender, nil, nil, zerolog.Nop())
	return e
}

// A single origination only informs the *receiver* about the sender (the
// sender's SYN carries just the digests it already knows, so the first
// exchange can't teach it about a peer it has never heard of). Full
// convergence needs a round-trip each way; this matches the reference
// protocol's handle_syn, which only ever reacts to digests present in the
// incoming Syn.
func TestTwoEnginesConvergeAfterRoundTripBothWays(t *testing.T) {
	a := newTestEngine(t, "10.0.0.1", 100, nil)
	b := newTestEngine(t, "10.0.0.2", 200, nil)

	transport := &directSender{peers: map[string]*Engine{"10.0.0.1": a, "10.0.0.2": b}}
	a.transport = transport
	b.transport = transport

	require.NoError(t, a.originate(context.Background(), net.ParseIP("10.0.0.2")))
	_, ok := a.State(net.ParseIP("10.0.0.2"))
	assert.False(t, ok, "a has not yet learned about b after a single a->b round")
	_, ok = b.State(net.ParseIP("10.0.0.1"))
	assert.True(t, ok, "b learns about a from a's originated Syn")

	require.NoError(t, b.originate(context.Background(), net.ParseIP("10.0.0.1")))

	aState2, ok := a.State(net.ParseIP("10.0.0.2"))
	require.True(t, ok)
	bState2, ok := b.State(net.ParseIP("10.0.0.2"))
	require.True(t, ok)
	assert.Equal(t, bState2.Heartbeat, aState2.Heartbeat)

	aState1, ok := a.State(net.ParseIP("10.0.0.1"))
	require.True(t, ok)
	bState1, ok := b.State(net.ParseIP("10.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, aState1.Heartbeat, bState1.Heartbeat)
}

func TestConvergesAfterLocalStatusChangeAndRoundTrip(t *testing.T) {
	a := newTestEngine(t, "10.0.0.1", 100, nil)
	b := newTestEngine(t, "10.0.0.2", 200, nil)
	transport := &directSender{peers: map[string]*Engine{"10.0.0.1": a, "10.0.0.2": b}}
	a.transport = transport
	b.transport = transport

	require.NoError(t, a.originate(context.Background(), net.ParseIP("10.0.0.2")))
	require.NoError(t, b.originate(context.Background(), net.ParseIP("10.0.0.1")))

	require.NoError(t, a.SetLocalStatus(context.Background(), Normal, nil))

	require.NoError(t, b.originate(context.Background(), net.ParseIP("10.0.0.1")))

	aState, _ := a.State(net.ParseIP("10.0.0.1"))
	bState, _ := b.State(net.ParseIP("10.0.0.1"))
	assert.Equal(t, aState.App, bState.App)
	assert.Equal(t, Normal, bState.App.Status)
}

func TestSweepDeadMarksStalePeerDead(t *testing.T) {
	e := newTestEngine(t, "10.0.0.1", 1, nil)
	e.table[addrOf("10.0.0.2")] = stateAt(Normal, 1, 1, 1)
	past := time.Now().Add(-2 * TFail)
	e.lastAdvance[addrOf("10.0.0.2")] = past
	e.now = func() time.Time { return time.Now() }

	e.sweepDead()

	st, ok := e.State(net.ParseIP("10.0.0.2"))
	require.True(t, ok)
	assert.Equal(t, Dead, st.App.Status)
}

func TestSweepDeadLeavesFreshPeerAlone(t *testing.T) {
	e := newTestEngine(t, "10.0.0.1", 1, nil)
	e.table[addrOf("10.0.0.2")] = stateAt(Normal, 1, 1, 1)
	e.lastAdvance[addrOf("10.0.0.2")] = time.Now()

	e.sweepDead()

	st, ok := e.State(net.ParseIP("10.0.0.2"))
	require.True(t, ok)
	assert.Equal(t, Normal, st.App.Status)
}

// fakeRing records Add/Remove calls without needing the real partitioner.
type fakeRing struct {
	added, removed []string
}

func (f *fakeRing) Add(ip net.IP) error {
	f.added = append(f.added, ip.String())
	return nil
}

func (f *fakeRing) Remove(ip net.IP) (net.IP, error) {
	f.removed = append(f.removed, ip.String())
	return ip, nil
}

type fakeRedistributor struct {
	calls []string
}

func (f *fakeRedistributor) Redistribute(ctx context.Context, departed net.IP) error {
	f.calls = append(f.calls, departed.String())
	return nil
}

func TestSetLocalStatusCouplesRingOnBootstrapToNormal(t *testing.T) {
	ring := &fakeRing{}
	e := New(net.ParseIP("10.0.0.1"), 1, nil, ring, nil, zerolog.Nop())

	require.NoError(t, e.SetLocalStatus(context.Background(), Normal, nil))

	assert.Equal(t, []string{"10.0.0.1"}, ring.added)
	assert.Empty(t, ring.removed)
}

func TestSetLocalStatusSchedulesRedistributeOnLeaving(t *testing.T) {
	ring := &fakeRing{}
	redist := &fakeRedistributor{}
	e := New(net.ParseIP("10.0.0.1"), 1, nil, ring, redist, zerolog.Nop())
	require.NoError(t, e.SetLocalStatus(context.Background(), Normal, nil))

	require.NoError(t, e.SetLocalStatus(context.Background(), Leaving, nil))

	assert.Equal(t, []string{"10.0.0.1"}, ring.removed)
	assert.Equal(t, []string{"10.0.0.1"}, redist.calls)
}
