package gossip

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TFail is the default failure-detection window: a peer whose version
// hasn't advanced in this long is judged Dead.
const TFail = 10 * time.Second

// tickInterval is how often the engine originates a new SYN round: every
// second, it selects a random peer and runs a round against it.
const tickInterval = time.Second

// Sender delivers a gossip Message to a peer and returns its reply. The
// coordinator's internode connection pool implements this by wrapping a
// Gossip-opcode (0x03) request/response exchange; Engine itself is
// transport-agnostic.
type Sender interface {
	SendGossip(ctx context.Context, peer net.IP, msg *Message) (*Message, error)
}

// RingCoupler is the subset of ring.Partitioner the engine needs to react to
// Bootstrap->Normal and Leaving/Removing transitions ("ring coupling").
type RingCoupler interface {
	Add(ip net.IP) error
	Remove(ip net.IP) (net.IP, error)
}

// Redistributor schedules the storage engine's cross-node rebalance when a
// peer leaves or is removed. It is satisfied by coordinator.Executor's
// Redistribute, which moves rows through the storage engine.
type Redistributor interface {
	Redistribute(ctx context.Context, departed net.IP) error
}

// Engine owns the local endpoint_states table and drives the one-tick-per-
// second SYN origination loop. All public methods are safe for concurrent
// use; the table itself is guarded by a single mutex, and every mutation
// under it is kept short.
type Engine struct {
	mu    sync.Mutex
	table Table
	self  [4]byte

	transport Sender
	ring      RingCoupler
	redist    Redistributor
	log       zerolog.Logger

	lastAdvance map[[4]byte]time.Time
	now         func() time.Time
	rng         *rand.Rand
}

// New constructs an Engine for the local node self, with its own heartbeat
// seeded at (generation=bootEpoch, version=0) and status Bootstrap.
func New(self net.IP, bootEpoch uint64, transport Sender, ring RingCoupler, redist Redistributor, log zerolog.Logger) *Engine {
	var addr [4]byte
	copy(addr[:], self.To4())

	e := &Engine{
		table:       make(Table),
		self:        addr,
		transport:   transport,
		ring:        ring,
		redist:      redist,
		log:         log,
		lastAdvance: make(map[[4]byte]time.Time),
		now:         time.Now,
		rng:         rand.New(rand.NewSource(int64(bootEpoch))),
	}
	e.table[addr] = EndpointState{
		Heartbeat: HeartbeatState{Generation: bootEpoch, Version: 0},
		App:       ApplicationState{Status: Bootstrap, Version: 0},
	}
	e.lastAdvance[addr] = e.now()
	return e
}

// SetLocalStatus transitions the local node's own application state and
// applies ring coupling. Only the local node's own state is originated;
// every other node's state is learned via gossip.
func (e *Engine) SetLocalStatus(ctx context.Context, status NodeStatus, schemas []Schema) error {
	e.mu.Lock()
	local := e.table[e.self]
	prev := local.App.Status
	local.App.Status = status
	local.App.Version++
	local.App.Schemas = schemas
	local.Heartbeat.Version++
	e.table[e.self] = local
	e.lastAdvance[e.self] = e.now()
	e.mu.Unlock()

	return e.coupleRing(ctx, prev, status, net.IP(append([]byte(nil), e.self[:]...)).To4())
}

// coupleRing applies the partitioner/redistribution side effects of a
// status transition.
func (e *Engine) coupleRing(ctx context.Context, prev, next NodeStatus, ip net.IP) error {
	if prev != Normal && next == Normal {
		if e.ring != nil {
			if err := e.ring.Add(ip); err != nil {
				return err
			}
		}
		return nil
	}
	if next == Leaving || next == Removing {
		if e.ring != nil {
			if _, err := e.ring.Remove(ip); err != nil {
				return err
			}
		}
		if e.redist != nil {
			return e.redist.Redistribute(ctx, ip)
		}
	}
	return nil
}

// Digests returns a Digest for every endpoint currently known, the payload
// of an originated Syn.
func (e *Engine) Digests() []Digest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Digest, 0, len(e.table))
	for addr, state := range e.table {
		out = append(out, NewDigest(net.IP(addr[:]).To4(), state.Heartbeat))
	}
	return out
}

// Peers returns every known endpoint other than the local node, including
// those currently judged Dead (section 4.7: "Dead peers are still sent
// SYNs").
func (e *Engine) Peers() []net.IP {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]net.IP, 0, len(e.table))
	for addr := range e.table {
		if addr == e.self {
			continue
		}
		out = append(out, net.IP(addr[:]).To4())
	}
	return out
}

// State returns a copy of what the engine knows about ip.
func (e *Engine) State(ip net.IP) (EndpointState, bool) {
	var addr [4]byte
	copy(addr[:], ip.To4())
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.table[addr]
	return s, ok
}

// Run drives the one-tick-per-second origination loop until ctx is
// canceled. Each tick: sweep Dead peers, bump the local heartbeat, and (if
// there's at least one peer) send a Syn to a random one.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepDead()
			e.bumpSelf()
			if peer, ok := e.randomPeer(); ok {
				if err := e.originate(ctx, peer); err != nil {
					e.log.Debug().Err(err).Str("peer", peer.String()).Msg("gossip round failed")
				}
			}
		}
	}
}

func (e *Engine) bumpSelf() {
	e.mu.Lock()
	defer e.mu.Unlock()
	local := e.table[e.self]
	local.Heartbeat.Version++
	e.table[e.self] = local
	e.lastAdvance[e.self] = e.now()
}

func (e *Engine) randomPeer() (net.IP, bool) {
	peers := e.Peers()
	if len(peers) == 0 {
		return nil, false
	}
	return peers[e.rng.Intn(len(peers))], true
}

// Bootstrap runs the one-off first-contact SYN a non-seed node sends to a
// seed on startup, before Run's periodic ticks take over. It is just the
// same SYN/ACK/ACK2 round Run drives against a random
// known peer, aimed instead at a peer this node does not know about yet.
func (e *Engine) Bootstrap(ctx context.Context, seed net.IP) error {
	return e.originate(ctx, seed)
}

// originate runs one full SYN/ACK/ACK2 round against peer.
func (e *Engine) originate(ctx context.Context, peer net.IP) error {
	syn := NewSyn(e.Digests())
	msg, err := NewMessage(net.IP(e.self[:]).To4(), syn)
	if err != nil {
		return err
	}

	reply, err := e.transport.SendGossip(ctx, peer, msg)
	if err != nil {
		return err
	}
	if reply == nil || reply.Type != PayloadAck || reply.Ack == nil {
		return nil
	}

	e.mu.Lock()
	ack2 := HandleAck(reply.Ack, e.table)
	e.touchAdvanced(reply.Ack.UpdatedInfo)
	e.mu.Unlock()

	if len(ack2.UpdatedInfo) == 0 {
		return nil
	}
	ack2Msg, err := NewMessage(net.IP(e.self[:]).To4(), ack2)
	if err != nil {
		return err
	}
	_, err = e.transport.SendGossip(ctx, peer, ack2Msg)
	return err
}

// HandleIncoming dispatches a received Message to the matching handler and
// returns the reply to send back, or nil for an Ack2 (which ends the
// round).
func (e *Engine) HandleIncoming(msg *Message) (*Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch msg.Type {
	case PayloadSyn:
		ack := HandleSyn(msg.Syn, e.table)
		return NewMessage(net.IP(e.self[:]).To4(), ack)
	case PayloadAck:
		ack2 := HandleAck(msg.Ack, e.table)
		e.touchAdvanced(msg.Ack.UpdatedInfo)
		return NewMessage(net.IP(e.self[:]).To4(), ack2)
	case PayloadAck2:
		HandleAck2(msg.Ack2, e.table)
		e.touchAdvanced(msg.Ack2.UpdatedInfo)
		return nil, nil
	default:
		return nil, nil
	}
}

// touchAdvanced records "now" against every address whose state HandleAck/
// HandleAck2 just accepted, for T_fail bookkeeping. Must be called with mu
// held.
func (e *Engine) touchAdvanced(entries []infoEntry) {
	for _, ent := range entries {
		if st, ok := e.table[ent.Digest.Address]; ok && st.Heartbeat.Equal(ent.Digest.HeartbeatState) {
			e.lastAdvance[ent.Digest.Address] = e.now()
		}
	}
}

// sweepDead marks any peer not already Dead (whatever its status) whose
// version hasn't advanced in TFail as Dead.
func (e *Engine) sweepDead() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	for addr, state := range e.table {
		if addr == e.self || state.App.Status == Dead {
			continue
		}
		if now.Sub(e.lastAdvance[addr]) > TFail {
			state.App.Status = Dead
			e.table[addr] = state
			e.log.Warn().Str("peer", net.IP(addr[:]).To4().String()).Msg("peer marked dead: no heartbeat advance within T_fail")
		}
	}
}
