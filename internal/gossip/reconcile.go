package gossip

// Table is the node's local view of cluster membership, keyed by IPv4
// address. Handlers take it directly (rather than through Engine) so the
// reconciliation rules can be tested without any networking or timers, as
// in the reference implementation's unit tests.
type Table map[[4]byte]EndpointState

// HandleSyn applies the SYN comparison rule to every digest in syn, against
// the local table, and returns the Ack to send back.
//
// For each incoming digest:
//   - unknown node: ask for its state via a (ip, 0, 0) stale digest.
//   - my generation < incoming (or equal generations, my version <
//     incoming): my copy is stale, push my digest.
//   - my generation > incoming (or equal generations, my version >
//     incoming): the peer's copy is stale, push my full state.
//   - equal in all fields: nothing to do.
func HandleSyn(syn *Syn, table Table) *Ack {
	stale := make([]Digest, 0)
	updated := make(map[Digest]ApplicationState)

	for _, incoming := range syn.Digests {
		local, ok := table[incoming.Address]
		if !ok {
			stale = append(stale, NewDigest(incoming.IP(), HeartbeatState{Generation: 0, Version: 0}))
			continue
		}
		mine := NewDigest(incoming.IP(), local.Heartbeat)
		if incoming.Equal(mine.HeartbeatState) {
			continue
		}
		switch {
		case incoming.Generation != mine.Generation:
			if incoming.Generation > mine.Generation {
				stale = append(stale, mine)
			} else {
				updated[mine] = local.App
			}
		default:
			if incoming.Version > mine.Version {
				stale = append(stale, mine)
			} else if incoming.Version < mine.Version {
				updated[mine] = local.App
			}
		}
	}

	return NewAck(stale, updated)
}

// HandleAck applies the ACK comparison rule: for every digest the
// peer marked stale, reply with full local state in the returned Ack2; for
// every full state the peer supplied, adopt it locally if it is strictly
// newer than what's on hand.
func HandleAck(ack *Ack, table Table) *Ack2 {
	updated := make(map[Digest]ApplicationState)

	for _, requested := range ack.StaleDigests {
		local, ok := table[requested.Address]
		if !ok {
			continue
		}
		mine := NewDigest(requested.IP(), local.Heartbeat)
		if requested.Equal(mine.HeartbeatState) {
			continue
		}
		if requested.HeartbeatState.Less(mine.HeartbeatState) {
			updated[mine] = local.App
		}
	}

	for _, e := range ack.UpdatedInfo {
		applyIfNewer(table, e.Digest, e.State)
	}

	return NewAck2(updated)
}

// HandleAck2 applies the ACK2 comparison rule: adopt every supplied
// state that is strictly newer than (or entirely absent from) the local
// table.
func HandleAck2(ack2 *Ack2, table Table) {
	for _, e := range ack2.UpdatedInfo {
		applyIfNewer(table, e.Digest, e.State)
	}
}

// applyIfNewer installs (digest, state) into table when the node is
// unknown locally or the digest strictly postdates the local heartbeat.
func applyIfNewer(table Table, d Digest, state ApplicationState) {
	local, ok := table[d.Address]
	if !ok || local.Heartbeat.Less(d.HeartbeatState) {
		table[d.Address] = EndpointState{Heartbeat: d.HeartbeatState, App: state}
	}
}
