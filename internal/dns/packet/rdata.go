package packet

// RR-type descriptor table (spec §4.7, §9): for each known type, the
// ordered list of rdata field kinds. This is the only place that needs to
// change to teach the parser a new type's shape. Unknown types get an empty
// descriptor and are treated as opaque blobs (their rdata is copied
// verbatim; nothing inside it is ever name-expanded).
type fieldKind uint8

const (
	fieldFixed1 fieldKind = iota
	fieldFixed2
	fieldFixed4
	fieldFixed6
	fieldFixed16
	fieldLenString // a single length-octet followed by that many bytes
	fieldName      // an embedded, possibly-compressed domain name
)

func (k fieldKind) fixedWidth() (int, bool) {
	switch k {
	case fieldFixed1:
		return 1, true
	case fieldFixed2:
		return 2, true
	case fieldFixed4:
		return 4, true
	case fieldFixed6:
		return 6, true
	case fieldFixed16:
		return 16, true
	default:
		return 0, false
	}
}

type rdataDescriptor []fieldKind

// Fields not named here (WKS's bitmap, RRSIG's signature, NSEC's type bitmap, DNSKEY's public key, NSEC3's hashed owner
// bitmap, TSIG's MAC/other data...) are exactly the "whatever rdata bytes
// remain after the known fields" opaque tail spec.md §4.7 describes: the
// descriptor only needs to list fields up to and including the last one
// that could contain an embedded name or whose width isn't simply "the
// rest".
var rdataDescriptors = map[RRType]rdataDescriptor{
	TypeA:     {fieldFixed4},
	TypeNS:    {fieldName},
	TypeMD:    {fieldName},
	TypeMF:    {fieldName},
	TypeCNAME: {fieldName},
	TypeSOA:   {fieldName, fieldName, fieldFixed4, fieldFixed4, fieldFixed4, fieldFixed4, fieldFixed4},
	TypeMB:    {fieldName},
	TypeMG:    {fieldName},
	TypeMR:    {fieldName},
	TypePTR:   {fieldName},
	TypeHINFO: {fieldLenString, fieldLenString},
	TypeMINFO: {fieldName, fieldName},
	TypeMX:    {fieldFixed2, fieldName},
	TypeAAAA:  {fieldFixed16},
	TypeSRV:   {fieldFixed2, fieldFixed2, fieldFixed2, fieldName},
	TypeDS:    {fieldFixed2, fieldFixed1, fieldFixed1},
	TypeRRSIG: {fieldFixed2, fieldFixed1, fieldFixed1, fieldFixed4, fieldFixed4, fieldFixed4, fieldFixed2, fieldName},
	TypeNSEC:       {fieldName},
	TypeDNSKEY:     {fieldFixed2, fieldFixed1, fieldFixed1},
	TypeNSEC3:      {fieldFixed1, fieldFixed1, fieldFixed2, fieldLenString, fieldLenString},
	TypeNSEC3PARAM: {fieldFixed1, fieldFixed1, fieldFixed2, fieldLenString},
	TypeTSIG:       {fieldName},
}

func descriptorFor(t RRType) rdataDescriptor {
	return rdataDescriptors[t]
}

// rdataExpandedSize walks the descriptor for the rdata starting at rdataOff
// (length rdlen, all within buf) and returns the number of bytes the rdata
// would occupy once every embedded name is expanded. It does not mutate
// buf and borrows nothing past the call.
func rdataExpandedSize(buf []byte, rdataOff, rdlen int, desc rdataDescriptor) (int, error) {
	if rdataOff < 0 || rdlen < 0 || rdataOff+rdlen > len(buf) {
		return 0, ErrTruncated
	}
	pos := rdataOff
	end := rdataOff + rdlen
	size := 0
	for _, kind := range desc {
		if pos >= end {
			return 0, ErrRdataOverrun
		}
		if w, ok := kind.fixedWidth(); ok {
			if pos+w > end {
				return 0, ErrRdataOverrun
			}
			pos += w
			size += w
			continue
		}
		switch kind {
		case fieldLenString:
			if pos+1 > end {
				return 0, ErrRdataOverrun
			}
			l := int(buf[pos])
			pos++
			if pos+l > end {
				return 0, ErrRdataOverrun
			}
			pos += l
			size += l + 1
		case fieldName:
			wireLen, expandedLen, err := nameWireLen(buf, pos)
			if err != nil {
				return 0, err
			}
			if pos+wireLen > end {
				return 0, ErrRdataOverrun
			}
			pos += wireLen
			size += expandedLen
		}
	}
	// Whatever remains after the known fields is opaque and counted as-is.
	if pos > end {
		return 0, ErrRdataOverrun
	}
	size += end - pos
	return size, nil
}

// rdataExpand walks the same descriptor, this time writing the fully
// expanded rdata (embedded names decompressed, everything else copied
// verbatim) into dst, which must be at least as large as the value returned
// by rdataExpandedSize for the same input. It returns the number of bytes
// written.
func rdataExpand(buf []byte, rdataOff, rdlen int, desc rdataDescriptor, dst []byte) (int, error) {
	if rdataOff < 0 || rdlen < 0 || rdataOff+rdlen > len(buf) {
		return 0, ErrTruncated
	}
	pos := rdataOff
	end := rdataOff + rdlen
	n := 0
	for _, kind := range desc {
		if pos >= end {
			return 0, ErrRdataOverrun
		}
		if w, ok := kind.fixedWidth(); ok {
			if pos+w > end {
				return 0, ErrRdataOverrun
			}
			n += copy(dst[n:], buf[pos:pos+w])
			pos += w
			continue
		}
		switch kind {
		case fieldLenString:
			if pos+1 > end {
				return 0, ErrRdataOverrun
			}
			l := int(buf[pos])
			if pos+1+l > end {
				return 0, ErrRdataOverrun
			}
			n += copy(dst[n:], buf[pos:pos+1+l])
			pos += 1 + l
		case fieldName:
			wireLen, _, err := nameWireLen(buf, pos)
			if err != nil {
				return 0, err
			}
			if pos+wireLen > end {
				return 0, ErrRdataOverrun
			}
			expanded, err := expandName(buf, pos)
			if err != nil {
				return 0, err
			}
			n += copy(dst[n:], expanded)
			pos += wireLen
		}
	}
	if pos > end {
		return 0, ErrRdataOverrun
	}
	n += copy(dst[n:], buf[pos:end])
	return n, nil
}
