package packet

import "testing"

func TestRdataExpandedSizeFixed(t *testing.T) {
	buf := []byte{192, 0, 2, 1} // A record rdata
	size, err := rdataExpandedSize(buf, 0, 4, descriptorFor(TypeA))
	if err != nil {
		t.Fatalf("rdataExpandedSize: %v", err)
	}
	if size != 4 {
		t.Errorf("size = %d, want 4", size)
	}
}

func TestRdataExpandedSizeWithName(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeName("mail.example.com.")...) // MX's second field
	prefixed := append(appendU16(nil, 10), buf...)         // priority=10 + name
	size, err := rdataExpandedSize(prefixed, 0, len(prefixed), descriptorFor(TypeMX))
	if err != nil {
		t.Fatalf("rdataExpandedSize: %v", err)
	}
	want := 2 + len(buf)
	if size != want {
		t.Errorf("size = %d, want %d", size, want)
	}
}

func TestRdataExpandedSizeCompressedName(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeName("example.com.")...)
	nsRdata := []byte{0xC0, 0x00}
	full := append(append([]byte{}, buf...), nsRdata...)
	size, err := rdataExpandedSize(full, len(buf), len(nsRdata), descriptorFor(TypeNS))
	if err != nil {
		t.Fatalf("rdataExpandedSize: %v", err)
	}
	if size != len(buf) {
		t.Errorf("size = %d, want %d (full expansion of the compressed target)", size, len(buf))
	}
}

func TestRdataExpandOpaqueTail(t *testing.T) {
	// TXT has no descriptor entries: entirely opaque.
	buf := []byte{3, 'f', 'o', 'o'}
	size, err := rdataExpandedSize(buf, 0, len(buf), descriptorFor(TypeTXT))
	if err != nil {
		t.Fatalf("rdataExpandedSize: %v", err)
	}
	if size != len(buf) {
		t.Errorf("size = %d, want %d", size, len(buf))
	}
	dst := make([]byte, size)
	n, err := rdataExpand(buf, 0, len(buf), descriptorFor(TypeTXT), dst)
	if err != nil {
		t.Fatalf("rdataExpand: %v", err)
	}
	if n != len(buf) || !bytesEqual(dst, buf) {
		t.Errorf("rdataExpand = %v, want %v", dst[:n], buf)
	}
}

func TestRdataExpandOverrun(t *testing.T) {
	buf := []byte{1, 2, 3} // too short for a fixed4 field
	if _, err := rdataExpandedSize(buf, 0, 3, descriptorFor(TypeA)); err != ErrRdataOverrun {
		t.Fatalf("expected ErrRdataOverrun, got %v", err)
	}
}
