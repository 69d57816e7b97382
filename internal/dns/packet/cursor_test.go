package packet

import "testing"

func TestCursorReads(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	c := newCursor(buf)

	b, err := c.readU8()
	if err != nil || b != 0x01 {
		t.Fatalf("readU8: got %d, %v", b, err)
	}
	u16, err := c.readU16()
	if err != nil || u16 != 0x0203 {
		t.Fatalf("readU16: got %x, %v", u16, err)
	}
	u32, err := c.readU32()
	if err != nil || u32 != 0x04050607 {
		t.Fatalf("readU32: got %x, %v", u32, err)
	}
	if c.remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", c.remaining())
	}
}

func TestCursorTruncated(t *testing.T) {
	c := newCursor([]byte{0x01})
	if _, err := c.readU16(); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if _, err := c.readU32(); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if _, err := c.readBytes(5); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestCursorSetPosition(t *testing.T) {
	c := newCursor(make([]byte, 10))
	if err := c.setPosition(5); err != nil {
		t.Fatalf("setPosition(5): %v", err)
	}
	if c.position() != 5 {
		t.Fatalf("expected position 5, got %d", c.position())
	}
	if err := c.setPosition(11); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if err := c.setPosition(-1); err != ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestCursorPeek(t *testing.T) {
	buf := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	c := newCursor(buf)
	v, err := c.peekU16At(2)
	if err != nil || v != 0xCCDD {
		t.Fatalf("peekU16At: got %x, %v", v, err)
	}
	if c.position() != 0 {
		t.Fatalf("peek must not move cursor, got position %d", c.position())
	}
	if _, err := c.peekU32At(4); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
