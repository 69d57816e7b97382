package packet

// EDNSData is the result of EDNS(0) OPT extraction (spec §4.9). Present is
// false when the message carried no OPT record, in which case UDPSize
// defaults to the RFC 1035 UDP datagram size.
type EDNSData struct {
	Present  bool
	UDPSize  uint16
	ExtRcode uint8
	Version  uint8
	Bits     uint16
}

// ExtractEDNS scans every RRset of m for an OPT pseudo-RR, unlinks it
// from the RRset index (so it no longer appears in materialization), and
// decodes its payload size, extended RCODE, version, and flag bits. At most
// one OPT record may exist; it must sit in the additional section and carry
// at least one RR.
func ExtractEDNS(m *Message) (EDNSData, error) {
	var found *rrsetParse
	total := 0
	sets := 0
	for p := m.idx.orderHead; p != nil; p = p.orderNext {
		if p.rrType == TypeOPT {
			found = p
			sets++
			total += p.rrCount
		}
	}
	if sets > 1 || total > 1 {
		return EDNSData{}, ErrMultipleOPT
	}
	if found == nil {
		return EDNSData{Present: false, UDPSize: 512}, nil
	}
	if found.sect != sectionAdditional {
		return EDNSData{}, ErrOPTWrongSection
	}
	if found.rrCount == 0 || found.rrHead == nil {
		return EDNSData{}, ErrOPTEmpty
	}

	rr := found.rrHead
	edns := EDNSData{
		Present:  true,
		UDPSize:  found.class,
		ExtRcode: uint8(rr.ttl >> 24),
		Version:  uint8(rr.ttl >> 16),
		Bits:     uint16(rr.ttl),
	}

	m.idx.unlink(found)
	m.ednsExtracted = true

	return edns, nil
}
