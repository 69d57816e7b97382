package packet

import "testing"

// Property: round-trip. Serializing a materialized reply and re-parsing it
// yields an equivalent set of (name, type, class, flags, rdata).
func TestPropertyRoundTrip(t *testing.T) {
	buf := buildMinimalAnswer(encodeName("example.com."))
	m, err := ParseMessage(buf, nil)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	ri, err := Materialize(m, &testAllocator{})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	qOwner, err := expandName(m.buf, m.Question.OwnerOffset)
	if err != nil {
		t.Fatalf("expandName(question): %v", err)
	}
	qinfo := &QueryInfo{OwnerName: qOwner, QType: TypeA, QClass: ClassINET}
	out, err := Serialize(qinfo, ri, 0xBEEF, 0x8180)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	m2, err := ParseMessage(out, nil)
	if err != nil {
		t.Fatalf("re-parse of serialized bytes: %v", err)
	}
	ri2, err := Materialize(m2, &testAllocator{})
	if err != nil {
		t.Fatalf("Materialize (re-parsed): %v", err)
	}

	if len(ri2.Sets) != len(ri.Sets) {
		t.Fatalf("set count changed across round trip: %d != %d", len(ri2.Sets), len(ri.Sets))
	}
	s1, s2 := ri.Sets[0], ri2.Sets[0]
	if s1.Type != s2.Type || s1.Class != s2.Class || s1.Flags != s2.Flags {
		t.Errorf("identity changed across round trip: %+v vs %+v", s1, s2)
	}
	if !bytesEqual(s1.Name, s2.Name) {
		t.Errorf("name changed across round trip: %v vs %v", s1.Name, s2.Name)
	}
	if !bytesEqual(s1.RRData, s2.RRData) {
		t.Errorf("rdata changed across round trip: %v vs %v", s1.RRData, s2.RRData)
	}
}

// Same property as TestPropertyRoundTrip, but over an answer set with two
// RRs plus an attached RRSIG: the header's ANCOUNT must count RRs, not
// RRsets, or the re-parse silently drops the trailing RRs.
func TestPropertyRoundTripMultiRRWithSignature(t *testing.T) {
	buf := header(0x1234, 0x8180, 1, 1, 0, 0)
	buf = append(buf, encodeName("example.com.")...)
	buf = appendU16(buf, uint16(TypeA))
	buf = appendU16(buf, ClassINET)
	buf = buildRR(buf, encodeName("example.com."), TypeA, ClassINET, 300, []byte{192, 0, 2, 1})
	buf = buildRR(buf, encodeName("example.com."), TypeA, ClassINET, 300, []byte{192, 0, 2, 2})
	buf = buildRR(buf, encodeName("example.com."), TypeRRSIG, ClassINET, 300, buildRRSIGRdata(TypeA, "example.com."))
	// Patch ANCOUNT up to 3 RRs now that we've appended three RRs after the
	// header was written with a placeholder count of 1.
	buf[7] = 3

	m, err := ParseMessage(buf, nil)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	ri, err := Materialize(m, &testAllocator{})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(ri.Sets) != 1 || ri.Sets[0].RRCount != 2 || ri.Sets[0].RRSIGCount != 1 {
		t.Fatalf("expected 1 set with 2 RRs + 1 RRSIG, got %+v", ri.Sets)
	}

	qinfo := &QueryInfo{OwnerName: encodeName("example.com."), QType: TypeA, QClass: ClassINET}
	out, err := Serialize(qinfo, ri, 0xBEEF, 0x8180)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	m2, err := ParseMessage(out, nil)
	if err != nil {
		t.Fatalf("re-parse of serialized bytes: %v", err)
	}
	if m2.Header.ANCount != 3 {
		t.Fatalf("serialized ANCOUNT = %d, want 3 (2 RRs + 1 RRSIG)", m2.Header.ANCount)
	}
	ri2, err := Materialize(m2, &testAllocator{})
	if err != nil {
		t.Fatalf("Materialize (re-parsed): %v", err)
	}
	if len(ri2.Sets) != 1 {
		t.Fatalf("set count changed across round trip: %d != 1", len(ri2.Sets))
	}
	if ri2.Sets[0].RRCount != 2 || ri2.Sets[0].RRSIGCount != 1 {
		t.Fatalf("RR/RRSIG counts changed across round trip: got RRCount=%d RRSIGCount=%d, want 2,1",
			ri2.Sets[0].RRCount, ri2.Sets[0].RRSIGCount)
	}
	if !bytesEqual(ri.Sets[0].RRData, ri2.Sets[0].RRData) {
		t.Errorf("rdata changed across round trip: %v vs %v", ri.Sets[0].RRData, ri2.Sets[0].RRData)
	}
}

func TestSerializeCompressesRepeatedName(t *testing.T) {
	buf := buildMinimalAnswer(encodeName("example.com."))
	m, err := ParseMessage(buf, nil)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	ri, err := Materialize(m, &testAllocator{})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	qinfo := &QueryInfo{OwnerName: encodeName("example.com."), QType: TypeA, QClass: ClassINET}
	out, err := Serialize(qinfo, ri, 1, 0x8180)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	// The answer's owner name repeats the question's; it should compress to
	// a 2-byte pointer rather than the full name again.
	naiveNameBytes := len(encodeName("example.com."))
	if len(out) >= 12+naiveNameBytes+4+naiveNameBytes+10+4 {
		t.Errorf("expected answer owner to compress, output too large: %d bytes", len(out))
	}
}

func TestWriteNameRoundTrip(t *testing.T) {
	tree := &compressionTree{}
	var buf []byte
	buf, err := writeName(buf, tree, encodeName("example.com."))
	if err != nil {
		t.Fatalf("writeName: %v", err)
	}
	buf, err = writeName(buf, tree, encodeName("www.example.com."))
	if err != nil {
		t.Fatalf("writeName (suffix): %v", err)
	}
	// second name should have compressed its "example.com." suffix: much
	// shorter than writing both names in full.
	full := len(encodeName("example.com.")) + len(encodeName("www.example.com."))
	if len(buf) >= full {
		t.Errorf("expected compression to shrink output: got %d, naive %d", len(buf), full)
	}

	n1, err := expandName(buf, 0)
	if err != nil {
		t.Fatalf("expandName 1: %v", err)
	}
	if !bytesEqual(n1, encodeName("example.com.")) {
		t.Errorf("first name mismatch: %v", n1)
	}
	n2, err := expandName(buf, len(encodeName("example.com.")))
	if err != nil {
		t.Fatalf("expandName 2: %v", err)
	}
	if !bytesEqual(n2, encodeName("www.example.com.")) {
		t.Errorf("second name mismatch: %v", n2)
	}
}
