package packet

import "strings"

// encodeName writes name (e.g. "example.com.") in plain, uncompressed wire
// format: length-prefixed labels terminated by a root byte.
func encodeName(name string) []byte {
	name = strings.TrimSuffix(name, ".")
	var out []byte
	if name != "" {
		for _, label := range strings.Split(name, ".") {
			out = append(out, byte(len(label)))
			out = append(out, []byte(label)...)
		}
	}
	out = append(out, 0)
	return out
}

// buildRR appends owner name (at ownerOff, written verbatim here — tests
// that want compression pass pointer bytes directly), type, class, ttl,
// and rdata (with its length prefix) to buf.
func buildRR(buf []byte, owner []byte, rrType RRType, class uint16, ttl uint32, rdata []byte) []byte {
	buf = append(buf, owner...)
	buf = appendU16(buf, uint16(rrType))
	buf = appendU16(buf, class)
	buf = appendU32(buf, ttl)
	buf = appendU16(buf, uint16(len(rdata)))
	buf = append(buf, rdata...)
	return buf
}

func header(id, flags, qd, an, ns, ar uint16) []byte {
	buf := appendU16(nil, id)
	buf = appendU16(buf, flags)
	buf = appendU16(buf, qd)
	buf = appendU16(buf, an)
	buf = appendU16(buf, ns)
	buf = appendU16(buf, ar)
	return buf
}
