// Package gossip implements a three-phase SYN/ACK/ACK2 membership protocol:
// a per-node table of EndpointState, reconciled against a random peer once
// a second, coupled to the consistent hash ring on
// Bootstrap/Normal/Leaving/Removing transitions.
//
// Grounded on original_source/gossip/src/messages.rs (wire layout of Digest,
// GossipMessage, Syn, Ack, Ack2) and original_source/gossip/src/
// message_handlers.rs (the handle_syn/handle_ack/handle_ack2 reconciliation
// rules), with the failure-detection and ring-coupling behavior from
// original_source/rustic-airlines/gossip-protocol/src/main.rs generalized
// from that prototype's single-process simulation to a real per-node engine.
package gossip

import "fmt"

// NodeStatus is a node's application-level lifecycle state, gossiped
// alongside its heartbeat. Dead is never originated on the wire; it is a
// purely local judgment a node makes about a peer (see Engine.sweepDead).
type NodeStatus uint16

const (
	Bootstrap NodeStatus = iota
	Normal
	Leaving
	Removing
	Dead
)

func (s NodeStatus) String() string {
	switch s {
	case Bootstrap:
		return "Bootstrap"
	case Normal:
		return "Normal"
	case Leaving:
		return "Leaving"
	case Removing:
		return "Removing"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// HeartbeatState is a node's boot epoch and its monotonically increasing
// liveness counter. (generation, version) forms the strict lexicographic
// order used throughout reconciliation.
type HeartbeatState struct {
	Generation uint64
	Version    uint32
}

// Less reports whether h sorts strictly before o: lower generation first,
// then lower version within equal generation.
func (h HeartbeatState) Less(o HeartbeatState) bool {
	if h.Generation != o.Generation {
		return h.Generation < o.Generation
	}
	return h.Version < o.Version
}

// Equal reports whether h and o represent the same point in the order.
func (h HeartbeatState) Equal(o HeartbeatState) bool {
	return h.Generation == o.Generation && h.Version == o.Version
}

// Schema is a single keyspace's table names, carried in ApplicationState so
// DDL propagates through gossip alongside membership.
type Schema struct {
	Keyspace string
	Tables   []string
}

// ApplicationState is the non-heartbeat part of a node's gossiped state.
type ApplicationState struct {
	Status  NodeStatus
	Version uint32
	Schemas []Schema
}

// EndpointState is everything the engine knows locally about one peer
// (or itself).
type EndpointState struct {
	Heartbeat HeartbeatState
	App       ApplicationState
}

func (e EndpointState) String() string {
	return fmt.Sprintf("EndpointState{heartbeat:%+v, status:%s, version:%d}", e.Heartbeat, e.App.Status, e.App.Version)
}
