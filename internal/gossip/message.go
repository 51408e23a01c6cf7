package gossip

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
)

// PayloadType tags the body of a Message on the wire.
type PayloadType uint8

const (
	PayloadSyn  PayloadType = 0x00
	PayloadAck  PayloadType = 0x01
	PayloadAck2 PayloadType = 0x02
)

// Message is the envelope carried as the Gossip-opcode body of an internode
// frame: the sender's address plus one of Syn/Ack/Ack2.
type Message struct {
	From net.IP
	Type PayloadType
	Syn  *Syn
	Ack  *Ack
	Ack2 *Ack2
}

// Syn opens a round: a digest for every node the sender knows about.
type Syn struct {
	Digests []Digest
}

// infoEntry pairs a digest with the application state it summarizes. Ack and
// Ack2 both carry these, sorted by digest so encoding is deterministic (the
// reference implementation uses a BTreeMap for the same reason).
type infoEntry struct {
	Digest Digest
	State  ApplicationState
}

// Ack answers a Syn: StaleDigests lists digests the sender has that need a
// newer copy from the peer, UpdatedInfo carries full state for digests the
// sender found to be newer than the peer's.
type Ack struct {
	StaleDigests []Digest
	UpdatedInfo  []infoEntry
}

// Ack2 closes the round, delivering full state for every digest the Ack
// asked for.
type Ack2 struct {
	UpdatedInfo []infoEntry
}

func sortedInfo(m map[Digest]ApplicationState) []infoEntry {
	out := make([]infoEntry, 0, len(m))
	for d, s := range m {
		out = append(out, infoEntry{Digest: d, State: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Digest.Less(out[j].Digest) })
	return out
}

// NewSyn builds a Syn from a digest for every known endpoint.
func NewSyn(digests []Digest) *Syn { return &Syn{Digests: digests} }

// NewAck builds an Ack, sorting UpdatedInfo for deterministic encoding.
func NewAck(stale []Digest, updated map[Digest]ApplicationState) *Ack {
	return &Ack{StaleDigests: stale, UpdatedInfo: sortedInfo(updated)}
}

// NewAck2 builds an Ack2, sorting UpdatedInfo for deterministic encoding.
func NewAck2(updated map[Digest]ApplicationState) *Ack2 {
	return &Ack2{UpdatedInfo: sortedInfo(updated)}
}

// NewMessage wraps a Syn/Ack/Ack2 payload with its sender's address.
func NewMessage(from net.IP, payload interface{}) (*Message, error) {
	m := &Message{From: from}
	switch p := payload.(type) {
	case *Syn:
		m.Type = PayloadSyn
		m.Syn = p
	case *Ack:
		m.Type = PayloadAck
		m.Ack = p
	case *Ack2:
		m.Type = PayloadAck2
		m.Ack2 = p
	default:
		return nil, fmt.Errorf("gossip: unsupported payload type %T", payload)
	}
	return m, nil
}

// Encode serializes m as:
//
//	0    8    16   24   32
//	+----+----+----+----+
//	|         ip        |
//	+----+----+----+----+
//	|type|   payload     ...
//	+----+----+----+----+
func (m *Message) Encode() ([]byte, error) {
	buf := make([]byte, 0, 5+64)
	ip4 := m.From.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("gossip: %v is not an IPv4 address", m.From)
	}
	buf = append(buf, ip4...)
	buf = append(buf, byte(m.Type))

	switch m.Type {
	case PayloadSyn:
		buf = encodeSyn(buf, m.Syn)
	case PayloadAck:
		buf = encodeAck(buf, m.Ack)
	case PayloadAck2:
		buf = encodeAck2(buf, m.Ack2)
	default:
		return nil, fmt.Errorf("gossip: unknown payload type 0x%02x", m.Type)
	}
	return buf, nil
}

// DecodeMessage parses the wire form written by Message.Encode.
func DecodeMessage(b []byte) (*Message, error) {
	if len(b) < 5 {
		return nil, fmt.Errorf("gossip: message too short: %d bytes", len(b))
	}
	from := net.IP(append([]byte(nil), b[:4]...))
	typ := PayloadType(b[4])
	rest := b[5:]

	m := &Message{From: from, Type: typ}
	var err error
	switch typ {
	case PayloadSyn:
		m.Syn, err = decodeSyn(rest)
	case PayloadAck:
		m.Ack, err = decodeAck(rest)
	case PayloadAck2:
		m.Ack2, err = decodeAck2(rest)
	default:
		return nil, fmt.Errorf("gossip: unknown payload type 0x%02x", typ)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("gossip: short u32")
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}

func encodeSyn(buf []byte, s *Syn) []byte {
	buf = putUint32(buf, uint32(len(s.Digests)))
	for _, d := range s.Digests {
		buf = d.encode(buf)
	}
	return buf
}

func decodeSyn(b []byte) (*Syn, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	digests := make([]Digest, 0, n)
	for i := uint32(0); i < n; i++ {
		var d Digest
		d, rest, err = decodeDigest(rest)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return &Syn{Digests: digests}, nil
}

// infoType tags each Ack entry as a bare digest request or a digest carrying
// full application state, matching the reference InfoType discriminant.
const (
	infoTypeDigest        uint32 = 0x00
	infoTypeDigestAndInfo uint32 = 0x01
)

func encodeApplicationState(buf []byte, a ApplicationState) []byte {
	var status [2]byte
	binary.BigEndian.PutUint16(status[:], uint16(a.Status))
	buf = append(buf, status[:]...)
	buf = putUint32(buf, a.Version)
	buf = putUint32(buf, uint32(len(a.Schemas)))
	for _, s := range a.Schemas {
		buf = putUint32(buf, uint32(len(s.Keyspace)))
		buf = append(buf, s.Keyspace...)
		buf = putUint32(buf, uint32(len(s.Tables)))
		for _, tbl := range s.Tables {
			buf = putUint32(buf, uint32(len(tbl)))
			buf = append(buf, tbl...)
		}
	}
	return buf
}

func decodeApplicationState(b []byte) (ApplicationState, []byte, error) {
	if len(b) < 2 {
		return ApplicationState{}, nil, fmt.Errorf("gossip: short application state")
	}
	status := NodeStatus(binary.BigEndian.Uint16(b[:2]))
	rest := b[2:]

	version, rest, err := readUint32(rest)
	if err != nil {
		return ApplicationState{}, nil, err
	}
	nSchemas, rest, err := readUint32(rest)
	if err != nil {
		return ApplicationState{}, nil, err
	}
	schemas := make([]Schema, 0, nSchemas)
	for i := uint32(0); i < nSchemas; i++ {
		var ksLen uint32
		ksLen, rest, err = readUint32(rest)
		if err != nil {
			return ApplicationState{}, nil, err
		}
		if uint32(len(rest)) < ksLen {
			return ApplicationState{}, nil, fmt.Errorf("gossip: truncated keyspace name")
		}
		ks := string(rest[:ksLen])
		rest = rest[ksLen:]

		var nTables uint32
		nTables, rest, err = readUint32(rest)
		if err != nil {
			return ApplicationState{}, nil, err
		}
		tables := make([]string, 0, nTables)
		for j := uint32(0); j < nTables; j++ {
			var tLen uint32
			tLen, rest, err = readUint32(rest)
			if err != nil {
				return ApplicationState{}, nil, err
			}
			if uint32(len(rest)) < tLen {
				return ApplicationState{}, nil, fmt.Errorf("gossip: truncated table name")
			}
			tables = append(tables, string(rest[:tLen]))
			rest = rest[tLen:]
		}
		schemas = append(schemas, Schema{Keyspace: ks, Tables: tables})
	}
	return ApplicationState{Status: status, Version: version, Schemas: schemas}, rest, nil
}

func encodeAck(buf []byte, a *Ack) []byte {
	buf = putUint32(buf, uint32(len(a.StaleDigests)))
	buf = putUint32(buf, uint32(len(a.UpdatedInfo)))
	for _, d := range a.StaleDigests {
		buf = putUint32(buf, infoTypeDigest)
		buf = d.encode(buf)
	}
	for _, e := range a.UpdatedInfo {
		buf = putUint32(buf, infoTypeDigestAndInfo)
		buf = e.Digest.encode(buf)
		buf = encodeApplicationState(buf, e.State)
	}
	return buf
}

func decodeAck(b []byte) (*Ack, error) {
	staleLen, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	infoLen, rest, err := readUint32(rest)
	if err != nil {
		return nil, err
	}

	stale := make([]Digest, 0, staleLen)
	for i := uint32(0); i < staleLen; i++ {
		var tag uint32
		tag, rest, err = readUint32(rest)
		if err != nil {
			return nil, err
		}
		if tag != infoTypeDigest {
			return nil, fmt.Errorf("gossip: expected digest-only entry, got tag 0x%x", tag)
		}
		var d Digest
		d, rest, err = decodeDigest(rest)
		if err != nil {
			return nil, err
		}
		stale = append(stale, d)
	}

	info := make([]infoEntry, 0, infoLen)
	for i := uint32(0); i < infoLen; i++ {
		var tag uint32
		tag, rest, err = readUint32(rest)
		if err != nil {
			return nil, err
		}
		if tag != infoTypeDigestAndInfo {
			return nil, fmt.Errorf("gossip: expected digest+info entry, got tag 0x%x", tag)
		}
		var d Digest
		d, rest, err = decodeDigest(rest)
		if err != nil {
			return nil, err
		}
		var st ApplicationState
		st, rest, err = decodeApplicationState(rest)
		if err != nil {
			return nil, err
		}
		info = append(info, infoEntry{Digest: d, State: st})
	}
	return &Ack{StaleDigests: stale, UpdatedInfo: info}, nil
}

func encodeAck2(buf []byte, a *Ack2) []byte {
	buf = putUint32(buf, uint32(len(a.UpdatedInfo)))
	for _, e := range a.UpdatedInfo {
		buf = e.Digest.encode(buf)
		buf = encodeApplicationState(buf, e.State)
	}
	return buf
}

func decodeAck2(b []byte) (*Ack2, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	info := make([]infoEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		var d Digest
		d, rest, err = decodeDigest(rest)
		if err != nil {
			return nil, err
		}
		var st ApplicationState
		st, rest, err = decodeApplicationState(rest)
		if err != nil {
			return nil, err
		}
		info = append(info, infoEntry{Digest: d, State: st})
	}
	return &Ack2{UpdatedInfo: info}, nil
}
