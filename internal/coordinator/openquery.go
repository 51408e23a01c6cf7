// Package coordinator wires the query executor, open-query tracking,
// gossip engine, and client/internode servers into one running node.
package coordinator

import (
	"net"
	"sync"
	"time"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/schema"
	"github.com/rusticdb/rusticdb/internal/storage"
)

// ReplicaResponse is one replica's answer to a dispatched query, already
// decoded from its wire form: either a timestamped row set (nil for a
// mutation), an Applied flag for conditional statements, or an error.
type ReplicaResponse struct {
	From    net.IP
	Rows    []storage.TimedRow
	Applied bool
	Err     error
}

// openQuery tracks one in-flight fan-out: how many responses it needs in
// total, what has arrived so far, and the deadline past which it is
// failed with a Timeout.
type openQuery struct {
	needed    int
	errors    int
	responses []ReplicaResponse
	deadline  time.Time
	query     *cql.Query
	table     *schema.Table
	done      chan struct{} // closed exactly once, when the query closes
}

// Outcome is what a closed query resolved to: either the accumulated
// responses or the error that closed it early (enough replica errors to
// preclude success, or a missed deadline).
type Outcome struct {
	Responses []ReplicaResponse
	Err       error
}

// OpenQueryHandler maintains the id -> openQuery mapping for every
// in-flight fan-out. It is single-threaded internally: every method
// takes the same mutex, so add_response/fail/expire never race each other,
// matching the invariant "a closed query is returned exactly once; id is
// never reused."
//
// Grounded on node/src/open_query_handler.rs's OpenQueryHandler: the same
// monotonic next_id counter and map<id, OpenQuery>, adapted from a
// TcpStream-owning struct (the Rust version holds the client connection
// directly) to a done-channel-owning struct, since Go's client connection
// handling lives in a separate goroutine that is more naturally woken by a
// channel close than by being handed a cloned socket.
type OpenQueryHandler struct {
	mu       sync.Mutex
	queries  map[int32]*openQuery
	outcomes map[int32]Outcome // populated exactly once per id, at close time
	nextID   int32
}

func NewOpenQueryHandler() *OpenQueryHandler {
	return &OpenQueryHandler{
		queries:  make(map[int32]*openQuery),
		outcomes: make(map[int32]Outcome),
	}
}

// Open registers a new query awaiting `required` responses, with deadline
// as its expiry time. It returns the id and a channel that is closed once
// the query reaches `required` responses, accumulates enough errors that
// `required` can no longer be reached, or expires; the caller then calls
// Outcome to retrieve the result.
func (h *OpenQueryHandler) Open(required int, query *cql.Query, table *schema.Table, deadline time.Time) (int32, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	oq := &openQuery{needed: required, deadline: deadline, query: query, table: table, done: make(chan struct{})}
	h.queries[id] = oq
	return id, oq.done
}

func (h *OpenQueryHandler) closeLocked(id int32, oq *openQuery, outcome Outcome) {
	delete(h.queries, id)
	h.outcomes[id] = outcome
	close(oq.done)
}

// AddResponse records a successful replica response. If this closes the
// query (enough responses collected), it returns the accumulated
// responses; otherwise ok is false.
func (h *OpenQueryHandler) AddResponse(id int32, resp ReplicaResponse) (responses []ReplicaResponse, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	oq, found := h.queries[id]
	if !found {
		return nil, false
	}
	oq.responses = append(oq.responses, resp)
	if len(oq.responses) < oq.needed {
		return nil, false
	}
	h.closeLocked(id, oq, Outcome{Responses: oq.responses})
	return oq.responses, true
}

// Fail records a replica error. Once enough errors have accumulated that
// `needed` responses can no longer arrive, the query closes with reason as
// its failure.
func (h *OpenQueryHandler) Fail(id int32, reason error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	oq, found := h.queries[id]
	if !found {
		return
	}
	oq.errors++
	remaining := oq.needed - len(oq.responses)
	if oq.errors < remaining {
		return
	}
	h.closeLocked(id, oq, Outcome{Err: reason})
}

// Outcome returns the final state of a closed query and removes it from
// the handler. ok is false if the query is not (yet) closed.
func (h *OpenQueryHandler) Outcome(id int32) (out Outcome, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out, ok = h.outcomes[id]
	if ok {
		delete(h.outcomes, id)
	}
	return out, ok
}

// Expire closes every query whose deadline is before now with a Timeout
// error, returning their ids.
func (h *OpenQueryHandler) Expire(now time.Time) []int32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var expired []int32
	for id, oq := range h.queries {
		if oq.deadline.After(now) {
			continue
		}
		h.closeLocked(id, oq, Outcome{Err: rerrors.New(rerrors.Timeout, "open query deadline exceeded")})
		expired = append(expired, id)
	}
	return expired
}

// Pending reports how many queries are currently open, for tests and
// diagnostics.
func (h *OpenQueryHandler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queries)
}
