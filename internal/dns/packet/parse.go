package packet

import (
	"log/slog"
)

// Header flag bits (RFC 1035 §4.1.1, RFC 2535 AD, RFC 2065/4035 CD).
const (
	flagQR     uint16 = 1 << 15
	flagOpcode uint16 = 0x7800
	flagAA     uint16 = 1 << 10
	flagTC     uint16 = 1 << 9
	flagRD     uint16 = 1 << 8
	flagRA     uint16 = 1 << 7
	flagZ      uint16 = 1 << 6
	flagAD     uint16 = 1 << 5
	flagCDBit  uint16 = 1 << 4
)

// Header is the fixed 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

func (h Header) QR() bool { return h.Flags&flagQR != 0 }
func (h Header) CD() bool { return h.Flags&flagCDBit != 0 }

// HeaderRcode returns the RCODE nibble carried in the header flags.
func (h Header) HeaderRcode() uint8 { return uint8(h.Flags & 0x000F) }

// Question is the single (owner, type, class) question carried by most
// queries. OwnerOffset/OwnerExpandedLen describe the owner name as seen in
// the source packet; they are meaningless once the packet is gone.
type Question struct {
	OwnerOffset      int
	OwnerExpandedLen int
	QType            RRType
	QClass           uint16
}

// Message is the transient pass-1 parse result (spec's "msg_parse"): header,
// question, and the RRset index, all still borrowing the source packet via
// the arena. It never outlives the call that produced it.
type Message struct {
	buf         []byte
	Header      Header
	Question    Question
	HasQuestion bool

	idx   rrsetIndex
	arena *arena

	ednsExtracted bool
}

// prevRRCache is the "same as previous RR" fast path state (spec §4.5).
type prevRRCache struct {
	valid                bool
	firstOffset, lastOffset int
	class                uint16
	rrType               RRType
	flags                rrsetFlags
	set                  *rrsetParse
}

// ParseMessage runs pass-1 over buf: header, question, and the three RR
// sections, grouping RRs into RRsets and fusing RRSIGs onto the sets they
// cover. logger may be nil, in which case silent-drop events are not logged.
func ParseMessage(buf []byte, logger *slog.Logger) (*Message, error) {
	cur := newCursor(buf)

	hdr, err := parseHeader(cur)
	if err != nil {
		return nil, formErr(err)
	}
	if hdr.QDCount > 1 {
		return nil, formErr(ErrMultipleQuestions)
	}

	m := &Message{buf: buf, Header: hdr}

	var q Question
	if hdr.QDCount == 1 {
		q, err = parseQuestion(cur, buf)
		if err != nil {
			return nil, formErr(err)
		}
		m.Question = q
		m.HasQuestion = true
	}

	totalRRs := int(hdr.ANCount) + int(hdr.NSCount) + int(hdr.ARCount)
	m.arena = newArena(totalRRs+1, totalRRs+1)

	sections := []struct {
		sect  section
		count uint16
	}{
		{sectionAnswer, hdr.ANCount},
		{sectionAuthority, hdr.NSCount},
		{sectionAdditional, hdr.ARCount},
	}

	var prev prevRRCache
	for _, s := range sections {
		for i := uint16(0); i < s.count; i++ {
			if err := parseOneRR(m, cur, s.sect, &prev, logger); err != nil {
				return nil, formErr(err)
			}
		}
	}

	return m, nil
}

// Release frees m's parse arena. Callers invoke this once they are done
// reading m (after Materialize and/or ExtractEDNS, or immediately on a
// parse they don't intend to materialize) — spec §3/§7: the parse arena is
// always freed on exit, independent of whether the parse succeeded.
func (m *Message) Release() {
	if m.arena != nil {
		m.arena.freeAll()
		m.arena = nil
	}
}

// ReplyInfoParse is the combined pass-1 + EDNS-extraction + pass-2 entry
// point (spec §6 "reply_info_parse"): parse buf, pull out EDNS(0) if
// present, materialize the result through alloc, and release the parse
// arena before returning — regardless of outcome. logger may be nil.
func ReplyInfoParse(buf []byte, logger *slog.Logger, alloc SetKeyAllocator) (*QueryInfo, *ReplyInfo, EDNSData, error) {
	m, err := ParseMessage(buf, logger)
	if err != nil {
		return nil, nil, EDNSData{}, err
	}
	defer m.Release()

	edns, err := ExtractEDNS(m)
	if err != nil {
		return nil, nil, EDNSData{}, formErr(err)
	}

	ri, err := Materialize(m, alloc)
	if err != nil {
		return nil, nil, edns, err
	}

	var qinfo *QueryInfo
	if m.HasQuestion {
		name, nerr := expandName(buf, m.Question.OwnerOffset)
		if nerr != nil {
			return nil, nil, edns, formErr(nerr)
		}
		qinfo = &QueryInfo{OwnerName: name, QType: m.Question.QType, QClass: m.Question.QClass}
	}

	return qinfo, ri, edns, nil
}

func parseHeader(cur *cursor) (Header, error) {
	var h Header
	id, err := cur.readU16()
	if err != nil {
		return h, err
	}
	flags, err := cur.readU16()
	if err != nil {
		return h, err
	}
	qd, err := cur.readU16()
	if err != nil {
		return h, err
	}
	an, err := cur.readU16()
	if err != nil {
		return h, err
	}
	ns, err := cur.readU16()
	if err != nil {
		return h, err
	}
	ar, err := cur.readU16()
	if err != nil {
		return h, err
	}
	h.ID, h.Flags = id, flags
	h.QDCount, h.ANCount, h.NSCount, h.ARCount = qd, an, ns, ar
	return h, nil
}

func parseQuestion(cur *cursor, buf []byte) (Question, error) {
	var q Question
	off := cur.position()
	wireLen, expandedLen, err := nameWireLen(buf, off)
	if err != nil {
		return q, err
	}
	if err := cur.setPosition(off + wireLen); err != nil {
		return q, err
	}
	qtype, err := cur.readU16()
	if err != nil {
		return q, err
	}
	qclass, err := cur.readU16()
	if err != nil {
		return q, err
	}
	q.OwnerOffset, q.OwnerExpandedLen = off, expandedLen
	q.QType, q.QClass = RRType(qtype), qclass
	return q, nil
}

// hashSeed folds type, class and flags into the seed mixed into the name
// hash, so that two RRsets with the same owner name but different identity
// components never collide in the table by virtue of the name hash alone.
func hashSeed(t RRType, class uint16, flags rrsetFlags) uint32 {
	return uint32(t)<<16 ^ uint32(class) ^ uint32(flags)<<8
}

// coveredTypeOf reads an RRSIG's "type covered" field, the first two bytes
// of its rdata.
func coveredTypeOf(buf []byte, rr *rrParse) (RRType, error) {
	if rr.rdataOffset+2 > len(buf) {
		return 0, ErrTruncated
	}
	return RRType(uint16(buf[rr.rdataOffset])<<8 | uint16(buf[rr.rdataOffset+1])), nil
}

// nsecBitAt reports whether bit n (DNS NSEC bit numbering: MSB-first,
// byte n/8, bit 7-n%8) is set in a type-bitmap window.
func nsecBitAt(bitmap []byte, n int) bool {
	byteIdx := n / 8
	if byteIdx >= len(bitmap) {
		return false
	}
	mask := byte(0x80) >> uint(n%8)
	return bitmap[byteIdx]&mask != 0
}

// computeNSECApex peeks into an NSEC RR's rdata (next-domain-name followed
// by type bitmap windows) to see whether window 0 sets the SOA bit. Any
// error here just means the flag isn't set; the real rdata walk
// (rdataExpandedSize in parseOneRR) is what actually rejects malformed NSEC
// rdata.
func computeNSECApex(buf []byte, rdataOff int, rdlen uint16) bool {
	end := rdataOff + int(rdlen)
	if end > len(buf) {
		return false
	}
	nameLen, _, err := nameWireLen(buf, rdataOff)
	if err != nil {
		return false
	}
	bitmapOff := rdataOff + nameLen
	if bitmapOff+2 > end {
		return false
	}
	window := buf[bitmapOff]
	wlen := int(buf[bitmapOff+1])
	if window != 0 || wlen <= 0 || bitmapOff+2+wlen > end {
		return false
	}
	return nsecBitAt(buf[bitmapOff+2:bitmapOff+2+wlen], 6)
}

// parseOneRR processes a single RR in the given section: owner name, type,
// class, provisional flags, RRset location/allocation/fusion, and the
// decompressed-size rdata walk (§4.7).
func parseOneRR(m *Message, cur *cursor, sect section, prev *prevRRCache, logger *slog.Logger) error {
	buf := m.buf

	ownerOff := cur.position()
	wireLen, expandedLen, err := nameWireLen(buf, ownerOff)
	if err != nil {
		return err
	}
	if err := cur.setPosition(ownerOff + wireLen); err != nil {
		return err
	}

	rawType, err := cur.readU16()
	if err != nil {
		return err
	}
	rrType := RRType(rawType)
	class, err := cur.readU16()
	if err != nil {
		return err
	}

	ttlOffset := cur.position()
	rdlen, err := cur.peekU16At(ttlOffset + 4)
	if err != nil {
		return err
	}
	rdataOff := ttlOffset + 6

	flags := rrsetFlags(0)
	if m.Header.CD() {
		flags |= flagCD
	}
	if rrType == TypeNSEC && computeNSECApex(buf, rdataOff, rdlen) {
		flags |= flagNSECApex
	}

	sameOwnerAsPrev := false
	if prev.valid {
		eq, err := smartCompare(buf, ownerOff, prev.firstOffset, prev.lastOffset)
		if err != nil {
			return err
		}
		sameOwnerAsPrev = eq
	}

	var target *rrsetParse
	attachAsSig := false
	dropped := false

	switch {
	case prev.valid && sameOwnerAsPrev && prev.class == class && prev.rrType == rrType && prev.flags == flags:
		target = prev.set

	case rrType == TypeRRSIG && prev.valid && sameOwnerAsPrev && prev.class == class:
		covered, cerr := cur.peekU16At(rdataOff)
		if cerr == nil && RRType(covered) == prev.rrType {
			target = prev.set
			attachAsSig = true
		}

	}

	if target == nil && rrType != TypeRRSIG {
		h, herr := nameHash(buf, ownerOff, hashSeed(TypeRRSIG, class, flags))
		if herr != nil {
			return herr
		}
		rrsigSet, lerr := m.idx.lookup(buf, h, ownerOff, TypeRRSIG, class, flags)
		if lerr != nil {
			return lerr
		}
		if rrsigSet != nil {
			covers := false
			for rr := rrsigSet.rrHead; rr != nil; rr = rr.next {
				ct, cerr := coveredTypeOf(buf, rr)
				if cerr == nil && ct == rrType {
					covers = true
					break
				}
			}
			if covers {
				fused, ferr := fuseRRSIGIntoData(m, rrsigSet, rrType, class, flags, sect)
				if ferr != nil {
					return ferr
				}
				target = fused
			}
		}
	}

	if target == nil && rrType == TypeRRSIG {
		covered, cerr := cur.peekU16At(rdataOff)
		if cerr != nil {
			return cerr
		}
		coveredType := RRType(covered)
		h, herr := nameHash(buf, ownerOff, hashSeed(coveredType, class, flags))
		if herr != nil {
			return herr
		}
		dataSet, lerr := m.idx.lookup(buf, h, ownerOff, coveredType, class, flags)
		if lerr != nil {
			return lerr
		}
		if dataSet == nil && coveredType == TypeNSEC {
			toggled := flags ^ flagNSECApex
			h2, herr2 := nameHash(buf, ownerOff, hashSeed(coveredType, class, toggled))
			if herr2 != nil {
				return herr2
			}
			dataSet, lerr = m.idx.lookup(buf, h2, ownerOff, coveredType, class, toggled)
			if lerr != nil {
				return lerr
			}
		}
		if dataSet != nil {
			target = dataSet
			attachAsSig = true
		}
	}

	if target == nil {
		h, herr := nameHash(buf, ownerOff, hashSeed(rrType, class, flags))
		if herr != nil {
			return herr
		}
		found, lerr := m.idx.lookup(buf, h, ownerOff, rrType, class, flags)
		if lerr != nil {
			return lerr
		}
		if found == nil {
			ns := m.arena.newRRset()
			ns.ownerOffset = ownerOff
			ns.ownerExpandedLen = expandedLen
			ns.rrType = rrType
			ns.class = class
			ns.flags = flags
			ns.hash = h
			ns.sect = sect
			m.idx.insert(ns)
			target = ns
		} else {
			target = found
		}
	}

	if target.sect != sect && target.rrType != TypeRRSIG && rrType != TypeRRSIG {
		dropped = true
	}

	// §4.7: measure/validate rdata regardless of whether we keep this RR.
	if _, err := cur.readU32(); err != nil { // ttl, peeked from ttlOffset below
		return err
	}
	if _, err := cur.readU16(); err != nil { // rdlen, already peeked above
		return err
	}
	desc := descriptorFor(rrType)
	expSize, err := rdataExpandedSize(buf, rdataOff, int(rdlen), desc)
	if err != nil {
		return err
	}
	if err := cur.skip(int(rdlen)); err != nil {
		return err
	}

	if dropped {
		if logger != nil {
			logger.Warn("dropping RR: section mismatch with existing RRset",
				"type", rrType.String(), "section", int(sect), "existingSection", int(target.sect))
		}
		*prev = prevRRCache{valid: false}
		return nil
	}

	rr := m.arena.newRR()
	rr.rdataOffset = rdataOff
	rr.rdlen = int(rdlen)
	ttlVal, _ := cur.peekU32At(ttlOffset)
	rr.ttl = ttlVal
	rr.decompressedSize = expSize + 2

	if attachAsSig {
		suppressDup := m.HasQuestion && (m.Question.QType == TypeRRSIG || m.Question.QType == TypeANY)
		if suppressDup && isDuplicateRRSIG(buf, target, rr) {
			if logger != nil {
				logger.Warn("dropping duplicate RRSIG", "owner", string(bufNameForLog(buf, ownerOff)))
			}
		} else {
			target.appendRRSIG(rr)
		}
	} else {
		target.appendRR(rr)
	}

	newFirst := ownerOff
	if sameOwnerAsPrev {
		newFirst = prev.firstOffset
	}
	*prev = prevRRCache{
		valid:       true,
		firstOffset: newFirst,
		lastOffset:  ownerOff,
		class:       class,
		rrType:      rrType,
		flags:       flags,
		set:         target,
	}
	return nil
}

// isDuplicateRRSIG compares rr's raw (rdlen, rdata) bytes against every
// signature already attached to target.
func isDuplicateRRSIG(buf []byte, target *rrsetParse, rr *rrParse) bool {
	for existing := target.rrsigHead; existing != nil; existing = existing.next {
		if existing.rdlen != rr.rdlen {
			continue
		}
		if bytesEqual(buf[existing.rdataOffset:existing.rdataOffset+existing.rdlen], buf[rr.rdataOffset:rr.rdataOffset+rr.rdlen]) {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// bufNameForLog best-effort expands a name for a log line; any failure
// degrades to an empty string rather than aborting the parse.
func bufNameForLog(buf []byte, offset int) []byte {
	n, err := expandName(buf, offset)
	if err != nil {
		return nil
	}
	return n
}

// fuseRRSIGIntoData promotes an RRSIG-only rrsigSet so that it (or a split
// copy of it) becomes the rrset for data records of type dataType at the
// same owner (spec §4.6). It returns the set the caller should attach the
// triggering data RR to.
func fuseRRSIGIntoData(m *Message, rrsigSet *rrsetParse, dataType RRType, class uint16, flags rrsetFlags, sect section) (*rrsetParse, error) {
	buf := m.buf
	hasOther := false
	for rr := rrsigSet.rrHead; rr != nil; rr = rr.next {
		ct, err := coveredTypeOf(buf, rr)
		if err != nil {
			return nil, err
		}
		if ct != dataType {
			hasOther = true
			break
		}
	}

	newHash, err := nameHash(buf, rrsigSet.ownerOffset, hashSeed(dataType, class, flags))
	if err != nil {
		return nil, err
	}

	if !hasOther {
		m.idx.bucketReinsert(rrsigSet, newHash)
		if rrsigSet.sect != sect {
			m.idx.changeSection(rrsigSet, sect)
		}
		if rrsigSet.rrHead != nil {
			if rrsigSet.rrsigTail != nil {
				rrsigSet.rrsigTail.next = rrsigSet.rrHead
			} else {
				rrsigSet.rrsigHead = rrsigSet.rrHead
			}
			rrsigSet.rrsigTail = rrsigSet.rrTail
			rrsigSet.rrsigCount += rrsigSet.rrCount
		}
		rrsigSet.rrHead, rrsigSet.rrTail, rrsigSet.rrCount = nil, nil, 0
		rrsigSet.rrType = dataType
		rrsigSet.flags = flags
		return rrsigSet, nil
	}

	newSet := m.arena.newRRset()
	newSet.ownerOffset = rrsigSet.ownerOffset
	newSet.ownerExpandedLen = rrsigSet.ownerExpandedLen
	newSet.rrType = dataType
	newSet.class = class
	newSet.flags = flags
	newSet.hash = newHash
	newSet.sect = sect
	m.idx.insert(newSet)

	copyMode := m.HasQuestion && (m.Question.QType == TypeRRSIG || m.Question.QType == TypeANY)

	var keepHead, keepTail *rrParse
	keepCount, movedSize := 0, 0
	for rr := rrsigSet.rrHead; rr != nil; rr = rr.next {
		ct, err := coveredTypeOf(buf, rr)
		if err != nil {
			return nil, err
		}
		if ct == dataType {
			if copyMode {
				dup := m.arena.newRR()
				dup.rdataOffset = rr.rdataOffset
				dup.rdlen = rr.rdlen
				dup.ttl = rr.ttl
				dup.decompressedSize = rr.decompressedSize
				newSet.appendRRSIG(dup)
			} else {
				rrCopy := m.arena.newRR()
				rrCopy.rdataOffset = rr.rdataOffset
				rrCopy.rdlen = rr.rdlen
				rrCopy.ttl = rr.ttl
				rrCopy.decompressedSize = rr.decompressedSize
				newSet.appendRRSIG(rrCopy)
				movedSize += rr.decompressedSize
				continue
			}
		}
		if keepTail != nil {
			keepTail.next = rr
		} else {
			keepHead = rr
		}
		keepTail = rr
		keepCount++
	}
	if keepTail != nil {
		keepTail.next = nil
	}
	rrsigSet.rrHead, rrsigSet.rrTail = keepHead, keepTail
	if !copyMode {
		rrsigSet.rrCount = keepCount
		rrsigSet.size -= movedSize
	}

	return newSet, nil
}
