package packet

// SetKeySlot is an opaque handle returned by a SetKeyAllocator. This
// package never looks inside it; it only obtains one per materialized set
// and releases it again on a failed materialize.
type SetKeySlot interface{}

// SetKeyAllocator is the external "obtain a long-lived cache slot" /
// "release it" contract a caller plugs in (spec §4.8, §5). Obtain failing
// fails the whole materialize with SERVFAIL.
type SetKeyAllocator interface {
	Obtain() (SetKeySlot, error)
	Release(SetKeySlot)
}

// RRSetInfo is one materialized, owned RRset: an expanded owner name plus a
// single packed buffer holding every member's (rdlen, expanded rdata),
// RR members first, then RRSIG members, with parallel Lengths/TTLs arrays
// describing each packed entry.
type RRSetInfo struct {
	Key     SetKeySlot
	Name    []byte
	Type    RRType
	Class   uint16
	Flags   rrsetFlags
	Hash    uint32
	Section section
	TTL     uint32 // canonical TTL: min over members, high-bit-clamped

	RRCount    int
	RRSIGCount int
	RRData     []byte
	Lengths    []uint16
	TTLs       []uint32
}

func (s *RRSetInfo) equal(o *RRSetInfo) bool {
	if s.Type != o.Type || s.Class != o.Class || s.Flags != o.Flags {
		return false
	}
	if s.Hash != o.Hash || s.Section != o.Section || s.TTL != o.TTL {
		return false
	}
	if !bytesEqual(s.Name, o.Name) || !bytesEqual(s.RRData, o.RRData) {
		return false
	}
	if len(s.Lengths) != len(o.Lengths) {
		return false
	}
	for i := range s.Lengths {
		if s.Lengths[i] != o.Lengths[i] || s.TTLs[i] != o.TTLs[i] {
			return false
		}
	}
	return true
}

// ReplyInfo is the owned, post-materialization form of a message (spec's
// "reply_info"). Nothing in it points back into the source packet.
type ReplyInfo struct {
	ID      uint16
	Flags   uint16
	ANCount uint16 // RRset counts per section, not wire RR counts
	NSCount uint16
	ARCount uint16
	Sets    []*RRSetInfo
}

// Equal reports whether r and o describe the same sets in the same order
// with the same bytes. It exists so a caller can directly check parse
// stability (re-parsing identical input yields an equal ReplyInfo).
func (r *ReplyInfo) Equal(o *ReplyInfo) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID || r.Flags != o.Flags {
		return false
	}
	if r.ANCount != o.ANCount || r.NSCount != o.NSCount || r.ARCount != o.ARCount {
		return false
	}
	if len(r.Sets) != len(o.Sets) {
		return false
	}
	for i := range r.Sets {
		if !r.Sets[i].equal(o.Sets[i]) {
			return false
		}
	}
	return true
}

// clampTTL implements RFC 2181 §8: a TTL with its high bit set is treated
// as zero.
func clampTTL(ttl uint32) uint32 {
	if ttl&0x80000000 != 0 {
		return 0
	}
	return ttl
}

// Materialize runs pass-2 over m, producing an owned ReplyInfo. Call
// ExtractEDNS first if the caller wants EDNS pulled out of the additional
// section before materialization; Materialize itself does not look for OPT
// specially; it just materializes whatever the index currently holds.
func Materialize(m *Message, alloc SetKeyAllocator) (ri *ReplyInfo, err error) {
	ri = &ReplyInfo{
		ID:      m.Header.ID,
		Flags:   m.Header.Flags,
		ANCount: uint16(m.idx.sectionCounts[sectionAnswer]),
		NSCount: uint16(m.idx.sectionCounts[sectionAuthority]),
		ARCount: uint16(m.idx.sectionCounts[sectionAdditional]),
	}

	count := 0
	for p := m.idx.orderHead; p != nil; p = p.orderNext {
		count++
	}
	ri.Sets = make([]*RRSetInfo, 0, count)

	defer func() {
		if err != nil {
			for _, s := range ri.Sets {
				if s.Key != nil {
					alloc.Release(s.Key)
				}
			}
			ri = nil
		}
	}()

	for p := m.idx.orderHead; p != nil; p = p.orderNext {
		info, merr := materializeSet(m.buf, p, alloc)
		if merr != nil {
			err = servFail(merr)
			return ri, err
		}
		ri.Sets = append(ri.Sets, info)
	}
	return ri, nil
}

func materializeSet(buf []byte, p *rrsetParse, alloc SetKeyAllocator) (*RRSetInfo, error) {
	name, err := expandName(buf, p.ownerOffset)
	if err != nil {
		return nil, err
	}

	key, err := alloc.Obtain()
	if err != nil {
		return nil, ErrAllocFailed
	}

	info := &RRSetInfo{
		Key:        key,
		Name:       name,
		Type:       p.rrType,
		Class:      p.class,
		Flags:      p.flags,
		Hash:       p.hash,
		Section:    p.sect,
		RRCount:    p.rrCount,
		RRSIGCount: p.rrsigCount,
	}

	data := make([]byte, p.size)
	lengths := make([]uint16, 0, p.rrCount+p.rrsigCount)
	ttls := make([]uint32, 0, p.rrCount+p.rrsigCount)
	off := 0
	minSet := false
	var minTTL uint32

	appendMember := func(rr *rrParse, memberType RRType) error {
		ttl := clampTTL(rr.ttl)
		if !minSet || ttl < minTTL {
			minTTL = ttl
			minSet = true
		}
		desc := descriptorFor(memberType)
		expSize, eerr := rdataExpandedSize(buf, rr.rdataOffset, rr.rdlen, desc)
		if eerr != nil {
			return eerr
		}
		if off+2+expSize > len(data) {
			return ErrRdataOverrun
		}
		data[off] = byte(expSize >> 8)
		data[off+1] = byte(expSize)
		n, werr := rdataExpand(buf, rr.rdataOffset, rr.rdlen, desc, data[off+2:off+2+expSize])
		if werr != nil {
			return werr
		}
		if n != expSize {
			return ErrRdataOverrun
		}
		off += 2 + expSize
		lengths = append(lengths, uint16(expSize))
		ttls = append(ttls, ttl)
		return nil
	}

	for rr := p.rrHead; rr != nil; rr = rr.next {
		if err := appendMember(rr, p.rrType); err != nil {
			alloc.Release(key)
			return nil, err
		}
	}
	for rr := p.rrsigHead; rr != nil; rr = rr.next {
		if err := appendMember(rr, TypeRRSIG); err != nil {
			alloc.Release(key)
			return nil, err
		}
	}

	info.TTL = minTTL
	info.RRData = data[:off]
	info.Lengths = lengths
	info.TTLs = ttls
	return info, nil
}
