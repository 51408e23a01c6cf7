package gossip

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Digest summarizes a node's known state without its application payload:
// the triple (address, generation, version).
//
// Address is a fixed-size array (rather than net.IP, a slice) so Digest is
// comparable and usable as a map key, matching the Rust side's derived
// Eq/Ord/Hash on a plain struct.
type Digest struct {
	Address [4]byte
	HeartbeatState
}

// NewDigest builds a Digest from a live IPv4 address and heartbeat.
func NewDigest(ip net.IP, h HeartbeatState) Digest {
	var d Digest
	copy(d.Address[:], ip.To4())
	d.HeartbeatState = h
	return d
}

// IP returns the digest's address as a net.IP.
func (d Digest) IP() net.IP {
	return net.IP(d.Address[:]).To4()
}

// Less gives Digests the same total order the Rust side's derived Ord gives
// a (Ipv4Addr, u128, u32) tuple: address, then generation, then version.
func (d Digest) Less(o Digest) bool {
	for i := range d.Address {
		if d.Address[i] != o.Address[i] {
			return d.Address[i] < o.Address[i]
		}
	}
	return d.HeartbeatState.Less(o.HeartbeatState)
}

// digestWireLen is 4 (address) + 16 (generation, u128 on the wire) + 4
// (version).
const digestWireLen = 4 + 16 + 4

// encode appends the wire form of d to buf:
//
//	0    8    16   24   32
//	+----+----+----+----+
//	|    ip address     |
//	+----+----+----+----+
//	|     generation    |  (16 bytes, big-endian; Generation occupies the
//	+----+----+----+----+   low 8, the high 8 are always zero)
//	|      version      |
//	+----+----+----+----+
//
// Generation is carried as a u128 on the wire for compatibility with the
// reference layout, but the node only ever needs a 64-bit boot-epoch value,
// so the high 8 bytes are always zero; see DESIGN.md.
func (d Digest) encode(buf []byte) []byte {
	buf = append(buf, d.Address[:]...)
	var gen [16]byte
	binary.BigEndian.PutUint64(gen[8:], d.Generation)
	buf = append(buf, gen[:]...)
	var ver [4]byte
	binary.BigEndian.PutUint32(ver[:], d.Version)
	return append(buf, ver[:]...)
}

// decodeDigest reads a Digest from the front of b, returning the remainder.
func decodeDigest(b []byte) (Digest, []byte, error) {
	if len(b) < digestWireLen {
		return Digest{}, nil, fmt.Errorf("gossip: short digest: need %d bytes, have %d", digestWireLen, len(b))
	}
	var d Digest
	copy(d.Address[:], b[:4])
	d.Generation = binary.BigEndian.Uint64(b[12:20])
	d.Version = binary.BigEndian.Uint32(b[20:24])
	return d, b[digestWireLen:], nil
}
