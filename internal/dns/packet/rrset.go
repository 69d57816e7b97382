package packet

// section is the RR section an rrsetParse currently belongs to.
type section uint8

const (
	sectionAnswer section = iota
	sectionAuthority
	sectionAdditional
	numSections
)

// rrsetFlags (spec §3 "Flags on an RRset") participate in an RRset's
// identity: two otherwise-identical sets with different flags are distinct.
type rrsetFlags uint8

const (
	// flagCD mirrors the message's CD (Checking Disabled) bit.
	flagCD rrsetFlags = 1 << iota
	// flagNSECApex is set when an NSEC RR's type bitmap shows SOA in its
	// first window, i.e. it looks like it comes from a zone apex.
	flagNSECApex
)

// rrParse is one RR as seen in the packet (spec §3 "rr_parse"). It borrows
// the source packet and is intrusively linked into its rrsetParse.
type rrParse struct {
	rdataOffset      int // offset of RDATA, just past RDLENGTH
	rdlen            int
	ttl              uint32
	decompressedSize int // 2-byte rdlen + expanded rdata, once materialized
	next             *rrParse
}

// rrsetParse is one group of RRs sharing (owner, type, class, flags),
// spec §3 "rrset_parse". All of it borrows the source packet; it never
// outlives the parse call.
type rrsetParse struct {
	ownerOffset      int
	ownerExpandedLen int
	rrType           RRType
	class            uint16
	flags            rrsetFlags
	hash             uint32
	sect             section

	rrHead, rrTail *rrParse
	rrCount        int

	rrsigHead, rrsigTail *rrParse
	rrsigCount           int

	size int // accumulated decompressed size across rr + rrsig members

	bucketNext           *rrsetParse
	orderPrev, orderNext *rrsetParse
}

// appendRR links rr onto the set's data RR list and folds its size in.
func (p *rrsetParse) appendRR(rr *rrParse) {
	if p.rrTail != nil {
		p.rrTail.next = rr
	} else {
		p.rrHead = rr
	}
	p.rrTail = rr
	p.rrCount++
	p.size += rr.decompressedSize
}

// appendRRSIG links rr onto the set's signature list and folds its size in.
func (p *rrsetParse) appendRRSIG(rr *rrParse) {
	if p.rrsigTail != nil {
		p.rrsigTail.next = rr
	} else {
		p.rrsigHead = rr
	}
	p.rrsigTail = rr
	p.rrsigCount++
	p.size += rr.decompressedSize
}

// rrsetTableSize is the compile-time hashtable size (spec §4.4: "a
// power-of-two-sized hash table...the implementation uses a compile-time
// constant; 32 is a reasonable default").
const rrsetTableSize = 32

// rrsetIndex is the per-message hashtable plus insertion-order list of
// rrsetParse records (spec §4.4).
type rrsetIndex struct {
	buckets              [rrsetTableSize]*rrsetParse
	orderHead, orderTail *rrsetParse
	sectionCounts        [numSections]int
}

// lookup scans the bucket for hash; equality additionally requires the
// owner name (compared against the packet), type, class, and flags to all
// match.
func (idx *rrsetIndex) lookup(buf []byte, hash uint32, ownerOff int, rrType RRType, class uint16, flags rrsetFlags) (*rrsetParse, error) {
	b := hash & (rrsetTableSize - 1)
	for p := idx.buckets[b]; p != nil; p = p.bucketNext {
		if p.hash != hash || p.rrType != rrType || p.class != class || p.flags != flags {
			continue
		}
		eq, err := nameCompare(buf, p.ownerOffset, ownerOff)
		if err != nil {
			return nil, err
		}
		if eq {
			return p, nil
		}
	}
	return nil, nil
}

// insert prepends rrset to its bucket, appends it to the insertion-order
// list, and bumps the section counter.
func (idx *rrsetIndex) insert(rrset *rrsetParse) {
	b := rrset.hash & (rrsetTableSize - 1)
	rrset.bucketNext = idx.buckets[b]
	idx.buckets[b] = rrset
	idx.orderAppend(rrset)
	idx.sectionCounts[rrset.sect]++
}

func (idx *rrsetIndex) orderAppend(rrset *rrsetParse) {
	rrset.orderPrev = idx.orderTail
	rrset.orderNext = nil
	if idx.orderTail != nil {
		idx.orderTail.orderNext = rrset
	} else {
		idx.orderHead = rrset
	}
	idx.orderTail = rrset
}

func (idx *rrsetIndex) orderRemove(rrset *rrsetParse) {
	if rrset.orderPrev != nil {
		rrset.orderPrev.orderNext = rrset.orderNext
	} else {
		idx.orderHead = rrset.orderNext
	}
	if rrset.orderNext != nil {
		rrset.orderNext.orderPrev = rrset.orderPrev
	} else {
		idx.orderTail = rrset.orderPrev
	}
	rrset.orderPrev, rrset.orderNext = nil, nil
}

// bucketRemove unlinks rrset from its current hash bucket, leaving the
// insertion-order list untouched.
func (idx *rrsetIndex) bucketRemove(rrset *rrsetParse) {
	b := rrset.hash & (rrsetTableSize - 1)
	if idx.buckets[b] == rrset {
		idx.buckets[b] = rrset.bucketNext
		rrset.bucketNext = nil
		return
	}
	for p := idx.buckets[b]; p != nil; p = p.bucketNext {
		if p.bucketNext == rrset {
			p.bucketNext = rrset.bucketNext
			rrset.bucketNext = nil
			return
		}
	}
}

// bucketReinsert moves rrset to the bucket for newHash, used when an RRSIG
// set is promoted to a data set and its identity changes (spec §4.6).
func (idx *rrsetIndex) bucketReinsert(rrset *rrsetParse, newHash uint32) {
	idx.bucketRemove(rrset)
	rrset.hash = newHash
	b := newHash & (rrsetTableSize - 1)
	rrset.bucketNext = idx.buckets[b]
	idx.buckets[b] = rrset
}

// changeSection unlinks rrset from the insertion-order list, re-appends it
// at the tail, and moves its count from the old section to newSection.
// Consumers must not assume insertion order equals section order: this is
// only used for the RRSIG-driven answer<->authority/additional
// reassignments spec.md §4.4/§9 describes, and moving *into* the answer
// section here is a programmer error (see DESIGN.md "Open Questions").
func (idx *rrsetIndex) changeSection(rrset *rrsetParse, newSection section) {
	idx.sectionCounts[rrset.sect]--
	idx.orderRemove(rrset)
	rrset.sect = newSection
	idx.orderAppend(rrset)
	idx.sectionCounts[newSection]++
}

// unlink fully removes rrset from both the hashtable and the
// insertion-order list and decrements its section counter — used only for
// EDNS OPT extraction (spec §4.9).
func (idx *rrsetIndex) unlink(rrset *rrsetParse) {
	idx.bucketRemove(rrset)
	idx.orderRemove(rrset)
	idx.sectionCounts[rrset.sect]--
}
