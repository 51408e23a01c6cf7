// Package ring implements a consistent-hash partitioner: a sorted mapping
// from a node's Murmur3 token to its IPv4 address, supporting ownership
// and successor lookups.
//
// Grounded on rustic-airlines/partitioner/src/lib.rs (a BTreeMap<u64,
// Ipv4Addr> keyed by the node's 32-bit Murmur3 hash, widened to u64 storage,
// with get_ip doing a range(hash..).next() successor lookup that wraps to
// the first node). The Go translation keeps the same shape: a sorted slice
// of (token, addr) pairs plays the role of the Rust BTreeMap, since Go has
// no ordered-map primitive in the standard library.
package ring

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

// ErrAlreadyExists is returned by Add when the node (or a token collision
// with a different node) is already present in the ring.
var ErrAlreadyExists = fmt.Errorf("node already exists in ring")

// ErrNotFound is returned by Remove when the node is not present.
var ErrNotFound = fmt.Errorf("node not found in ring")

// ErrEmpty is returned by OwnerOf and Successors when the ring has no nodes.
var ErrEmpty = fmt.Errorf("ring is empty")

type entry struct {
	token uint32
	addr  string // dotted-quad form, used as the stable identity
}

// Partitioner is the ring structure mapping Murmur3 tokens of partition keys
// to owning nodes. It is safe for concurrent use: it guards its entries with
// its own reader-writer lock, separate from the keyspace catalog's.
type Partitioner struct {
	mu      sync.RWMutex
	entries []entry // kept sorted by token
}

// New returns an empty Partitioner.
func New() *Partitioner {
	return &Partitioner{}
}

// Token computes the 32-bit Murmur3 (seed 0) hash of b, the function used
// both for ring tokens (hashing a node's IPv4 octets) and for partition-key
// ownership lookups (hashing the concatenated string form of the partition
// key's components, in declared column order, with no separator).
func Token(b []byte) uint32 {
	return murmur3.Sum32(b)
}

// Add inserts ip into the ring, computing its token from its 4 IPv4 octets.
// Insertion is idempotent on the exact (token, addr) pair — re-adding the
// same node is a no-op that still returns nil, matching the Rust
// implementation's per-node dedupe via Vec2<Ipv4Addr>::contains at the call
// site (here folded into Add itself for a single idempotent entry point).
// A distinct address hashing to an already-occupied token is a fatal
// collision that must be fixed by operator action, never silently merged.
func (p *Partitioner) Add(ip net.IP) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("ring: %v is not an IPv4 address", ip)
	}
	token := Token(ip4)
	addr := ip4.String()

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].token >= token })
	if idx < len(p.entries) && p.entries[idx].token == token {
		if p.entries[idx].addr == addr {
			return nil
		}
		return ErrAlreadyExists
	}
	p.entries = append(p.entries, entry{})
	copy(p.entries[idx+1:], p.entries[idx:])
	p.entries[idx] = entry{token: token, addr: addr}
	return nil
}

// Remove drops ip from the ring and returns its address on success.
func (p *Partitioner) Remove(ip net.IP) (net.IP, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("ring: %v is not an IPv4 address", ip)
	}
	token := Token(ip4)

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].token >= token })
	if idx >= len(p.entries) || p.entries[idx].token != token {
		return nil, ErrNotFound
	}
	removed := net.ParseIP(p.entries[idx].addr).To4()
	p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
	return removed, nil
}

// OwnerOf returns the node owning the hash of b: the first node whose token
// is >= Token(b), wrapping to the lowest token when none is.
func (p *Partitioner) OwnerOf(b []byte) (net.IP, error) {
	token := Token(b)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.entries) == 0 {
		return nil, ErrEmpty
	}
	idx := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].token >= token })
	if idx == len(p.entries) {
		idx = 0
	}
	return net.ParseIP(p.entries[idx].addr).To4(), nil
}

// Successors returns the n ring-order successors of ip, starting with the
// node after ip and wrapping around the ring; when n equals the ring size the
// walk wraps back onto ip itself. When n exceeds the ring size it returns the
// first successor repeated n times, which on a single-node ring is ip itself,
// collapsing replication to one copy as section 8's boundary behavior
// requires; a caller building a replica set should dedupe against the owner
// if it wants a strict "other nodes" list.
func (p *Partitioner) Successors(ip net.IP, n int) ([]net.IP, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("ring: %v is not an IPv4 address", ip)
	}
	token := Token(ip4)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.entries) == 0 {
		return nil, ErrEmpty
	}
	if n <= 0 {
		return nil, nil
	}

	start := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].token >= token })
	if start == len(p.entries) {
		start = 0
	}
	// Skip the input node itself if it sits exactly at start.
	if p.entries[start].token == token {
		start = (start + 1) % len(p.entries)
	}

	out := make([]net.IP, 0, n)
	count := len(p.entries)
	if n > count {
		// Fewer nodes than n: repeat the first successor (ip itself on a
		// single-node ring).
		for len(out) < n {
			out = append(out, net.ParseIP(p.entries[start].addr).To4())
		}
		return out, nil
	}
	for i := 0; i < n; i++ {
		out = append(out, net.ParseIP(p.entries[(start+i)%count].addr).To4())
	}
	return out, nil
}

// Nodes returns every node currently on the ring, in token order.
func (p *Partitioner) Nodes() []net.IP {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]net.IP, len(p.entries))
	for i, e := range p.entries {
		out[i] = net.ParseIP(e.addr).To4()
	}
	return out
}

// Contains reports whether ip is already on the ring.
func (p *Partitioner) Contains(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	token := Token(ip4)
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].token >= token })
	return idx < len(p.entries) && p.entries[idx].token == token
}

// Len returns the number of nodes on the ring.
func (p *Partitioner) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
