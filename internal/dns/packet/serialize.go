package packet

// QueryInfo is the question half of a message, kept separate from
// ReplyInfo the same way the wire format keeps it in its own section.
type QueryInfo struct {
	OwnerName []byte // expanded, wire-format (length-prefixed labels + root)
	QType     RRType
	QClass    uint16
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Serialize rebuilds a wire packet from qinfo/ri, using id/flags for the
// header and rediscovering compression opportunities as it writes names.
// qinfo may be nil for replies with no question. TTLs are serialized as
// stored; this package does not track elapsed time since materialization,
// since ownership of that bookkeeping belongs to whatever cache sits above
// it.
func Serialize(qinfo *QueryInfo, ri *ReplyInfo, id, flags uint16) ([]byte, error) {
	buf := make([]byte, 0, 512)
	buf = appendU16(buf, id)
	buf = appendU16(buf, flags)
	qdcount := uint16(0)
	if qinfo != nil {
		qdcount = 1
	}
	buf = appendU16(buf, qdcount)
	buf = appendU16(buf, rrCountInSection(ri, sectionAnswer))
	buf = appendU16(buf, rrCountInSection(ri, sectionAuthority))
	buf = appendU16(buf, rrCountInSection(ri, sectionAdditional))

	tree := &compressionTree{}

	if qinfo != nil {
		var err error
		buf, err = writeName(buf, tree, qinfo.OwnerName)
		if err != nil {
			return nil, err
		}
		buf = appendU16(buf, uint16(qinfo.QType))
		buf = appendU16(buf, qinfo.QClass)
	}

	var err error
	for _, sect := range []section{sectionAnswer, sectionAuthority} {
		buf, err = writeSection(buf, tree, setsInSection(ri, sect), false)
		if err != nil {
			return nil, err
		}
	}
	buf, err = writeSection(buf, tree, setsInSection(ri, sectionAdditional), true)
	if err != nil {
		return nil, err
	}

	return buf, nil
}

func setsInSection(ri *ReplyInfo, sect section) []*RRSetInfo {
	var out []*RRSetInfo
	for _, s := range ri.Sets {
		if s.Section == sect {
			out = append(out, s)
		}
	}
	return out
}

// rrCountInSection sums RR+RRSIG members across every set in sect: the wire
// header's per-section count is a count of RRs actually emitted, not of
// RRsets (an RRset with multiple members or an attached RRSIG emits more
// than one RR for a single set).
func rrCountInSection(ri *ReplyInfo, sect section) uint16 {
	n := 0
	for _, s := range ri.Sets {
		if s.Section == sect {
			n += s.RRCount + s.RRSIGCount
		}
	}
	return uint16(n)
}

// writeSection emits every set's members. For the additional section the
// historical ordering is preserved: every set's data RRs across the whole
// section come first, then every set's signatures — so a glue/OPT record
// never ends up sandwiched after a trailing signature.
func writeSection(buf []byte, tree *compressionTree, sets []*RRSetInfo, additionalOrder bool) ([]byte, error) {
	var err error
	if !additionalOrder {
		for _, s := range sets {
			if buf, err = writeSetMembers(buf, tree, s, true, true); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	for _, s := range sets {
		if buf, err = writeSetMembers(buf, tree, s, true, false); err != nil {
			return nil, err
		}
	}
	for _, s := range sets {
		if buf, err = writeSetMembers(buf, tree, s, false, true); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func writeSetMembers(buf []byte, tree *compressionTree, s *RRSetInfo, includeData, includeSigs bool) ([]byte, error) {
	off := 0
	for i := 0; i < s.RRCount+s.RRSIGCount; i++ {
		rdlen := int(s.Lengths[i])
		if off+2+rdlen > len(s.RRData) {
			return nil, ErrRdataOverrun
		}
		entry := s.RRData[off+2 : off+2+rdlen]
		ttl := s.TTLs[i]
		off += 2 + rdlen

		isSig := i >= s.RRCount
		if isSig && !includeSigs {
			continue
		}
		if !isSig && !includeData {
			continue
		}
		memberType := s.Type
		if isSig {
			memberType = TypeRRSIG
		}
		var err error
		buf, err = writeRR(buf, tree, s.Name, memberType, s.Class, ttl, entry)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func writeRR(buf []byte, tree *compressionTree, name []byte, rrType RRType, class uint16, ttl uint32, rdata []byte) ([]byte, error) {
	var err error
	buf, err = writeName(buf, tree, name)
	if err != nil {
		return nil, err
	}
	buf = appendU16(buf, uint16(rrType))
	buf = appendU16(buf, class)
	buf = appendU32(buf, ttl)

	rdlenPos := len(buf)
	buf = appendU16(buf, 0)
	rdataStart := len(buf)
	buf, err = writeRData(buf, tree, rrType, rdata)
	if err != nil {
		return nil, err
	}
	rdlen := len(buf) - rdataStart
	buf[rdlenPos] = byte(rdlen >> 8)
	buf[rdlenPos+1] = byte(rdlen)
	return buf, nil
}

// writeRData walks the same descriptor the parser uses, this time over
// already-expanded rdata: embedded names are re-offered to the compression
// tree, everything else is copied verbatim.
func writeRData(buf []byte, tree *compressionTree, rrType RRType, rdata []byte) ([]byte, error) {
	desc := descriptorFor(rrType)
	pos := 0
	for _, kind := range desc {
		if pos > len(rdata) {
			return nil, ErrRdataOverrun
		}
		if w, ok := kind.fixedWidth(); ok {
			if pos+w > len(rdata) {
				return nil, ErrRdataOverrun
			}
			buf = append(buf, rdata[pos:pos+w]...)
			pos += w
			continue
		}
		switch kind {
		case fieldLenString:
			if pos+1 > len(rdata) {
				return nil, ErrRdataOverrun
			}
			l := int(rdata[pos])
			if pos+1+l > len(rdata) {
				return nil, ErrRdataOverrun
			}
			buf = append(buf, rdata[pos:pos+1+l]...)
			pos += 1 + l
		case fieldName:
			wireLen, _, err := nameWireLen(rdata, pos)
			if err != nil {
				return nil, err
			}
			buf, err = writeName(buf, tree, rdata[pos:pos+wireLen])
			if err != nil {
				return nil, err
			}
			pos += wireLen
		}
	}
	if pos > len(rdata) {
		return nil, ErrRdataOverrun
	}
	buf = append(buf, rdata[pos:]...)
	return buf, nil
}

// writeName looks name up in tree; on a match it copies only the
// unmatched, more-specific labels and appends a 2-byte pointer for the
// rest. Every suffix written out is offered to the tree at its real output
// offset so later names can compress against it; tree.insert skips
// single-label suffixes and offsets beyond the 14-bit pointer range.
func writeName(buf []byte, tree *compressionTree, name []byte) ([]byte, error) {
	labels := splitLabels(name)
	node, matched := tree.lookup(labels)

	writeUpTo := len(labels)
	if node != nil && matched > 0 && matched <= len(labels) {
		writeUpTo = len(labels) - matched
	}

	base := len(buf)
	pos := 0
	for i := 0; i < writeUpTo; i++ {
		if pos >= len(name) {
			return nil, ErrRdataOverrun
		}
		tree.insert(labels[i:], base+pos)
		l := int(name[pos])
		if pos+1+l > len(name) {
			return nil, ErrRdataOverrun
		}
		buf = append(buf, name[pos:pos+1+l]...)
		pos += 1 + l
	}

	if node != nil && matched > 0 {
		buf = append(buf, byte(0xC0|byte(node.offset>>8)), byte(node.offset))
		return buf, nil
	}

	if pos > len(name) {
		return nil, ErrRdataOverrun
	}
	buf = append(buf, name[pos:]...)
	return buf, nil
}
