package packet

// arena is the pass-1 parse allocator (spec §4.3 "parse arena"). Unlike the
// monotone bump allocator the spec describes, this is backed by ordinary Go
// slices: the message header's RR counts give a tight upper bound on how
// many rrsetParse/rrParse records a single parse can ever produce, so in the
// overwhelmingly common case newRRset/newRR never grow the backing slice and
// behave exactly like bump allocation. If a pathological input does need
// more (the RRSIG-fusion split path in parse.go allocates a fresh rrParse
// for every signature it moves or copies), append grows the slice the normal Go
// way; any *rrsetParse/*rrParse already handed out stays valid because Go
// pointers keep their backing array alive independent of what the slice
// header later points at. freeAll drops every reference at once, which is
// the one bulk-free property the spec actually needs from this component —
// per-record Free calls never existed during parsing to begin with.
type arena struct {
	rrsets     []rrsetParse
	rrsetsUsed int

	rrs     []rrParse
	rrsUsed int
}

// newArena pre-sizes both pools from the counts taken out of a message
// header. maxRRsets and maxRRs are upper bounds, not targets: a header
// claiming more RRs than the packet can actually hold is fine, since the
// slices are never read past rrsetsUsed/rrsUsed.
func newArena(maxRRsets, maxRRs int) *arena {
	if maxRRsets < 1 {
		maxRRsets = 1
	}
	if maxRRs < 1 {
		maxRRs = 1
	}
	return &arena{
		rrsets: make([]rrsetParse, maxRRsets),
		rrs:    make([]rrParse, maxRRs),
	}
}

// newRRset returns a zeroed rrsetParse from the pool.
func (a *arena) newRRset() *rrsetParse {
	if a.rrsetsUsed >= len(a.rrsets) {
		a.rrsets = append(a.rrsets, rrsetParse{})
	}
	p := &a.rrsets[a.rrsetsUsed]
	a.rrsetsUsed++
	*p = rrsetParse{}
	return p
}

// newRR returns a zeroed rrParse from the pool.
func (a *arena) newRR() *rrParse {
	if a.rrsUsed >= len(a.rrs) {
		a.rrs = append(a.rrs, rrParse{})
	}
	p := &a.rrs[a.rrsUsed]
	a.rrsUsed++
	*p = rrParse{}
	return p
}

// freeAll releases the arena's backing storage. Callers invoke this once
// Materialize has copied everything it needs out of the pass-1 structures;
// nothing holds a pointer into the arena past that point.
func (a *arena) freeAll() {
	a.rrsets = nil
	a.rrs = nil
}
