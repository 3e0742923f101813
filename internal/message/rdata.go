package message

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/joshuafuller/beacon/internal/errors"
)

// OPTOption is one {code, data} option inside an OPT pseudo-record's RDATA,
// per RFC 6891 §6.1. mDNS uses this for the OWNER option (RFC 6762 §6.1's
// sibling discovery) and lease-length extensions.
type OPTOption struct {
	Code uint16
	Data []byte
}

// ParseOPTOptions parses the RDATA of an OPT pseudo-record into its option
// list, per RFC 6891 §6.1.2.
func ParseOPTOptions(rdata []byte) ([]OPTOption, error) {
	var opts []OPTOption
	offset := 0
	for offset < len(rdata) {
		if offset+4 > len(rdata) {
			return nil, &errors.WireFormatError{
				Operation: "parse OPT option",
				Offset:    offset,
				Message:   "truncated option header",
			}
		}
		code := binary.BigEndian.Uint16(rdata[offset : offset+2])
		length := binary.BigEndian.Uint16(rdata[offset+2 : offset+4])
		offset += 4
		if offset+int(length) > len(rdata) {
			return nil, &errors.WireFormatError{
				Operation: "parse OPT option",
				Offset:    offset,
				Message:   fmt.Sprintf("truncated option data: expected %d bytes, only %d available", length, len(rdata)-offset),
			}
		}
		opts = append(opts, OPTOption{Code: code, Data: append([]byte(nil), rdata[offset:offset+int(length)]...)})
		offset += int(length)
	}
	return opts, nil
}

// EncodeOPTOptions serializes an option list back to OPT RDATA.
func EncodeOPTOptions(opts []OPTOption) []byte {
	buf := make([]byte, 0, len(opts)*4)
	for _, o := range opts {
		var hdr [4]byte
		binary.BigEndian.PutUint16(hdr[0:2], o.Code)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(o.Data)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, o.Data...)
	}
	return buf
}

// NSECData is the parsed form of an mDNS NSEC record: the next domain name
// (always equal to the owner name itself in mDNS's single-record NSEC
// form, per RFC 6762 §6.1) and the set of record types asserted absent.
type NSECData struct {
	NextDomainName string
	Types          []uint16
}

// ParseNSEC parses mDNS-form NSEC RDATA: a name followed by one or more
// {window, bitmap-length, bitmap} type-bitmap blocks per RFC 4034 §4.1,
// restricted to window block 0 as mDNS never needs type numbers above 255.
func ParseNSEC(rdata []byte) (NSECData, error) {
	name, offset, err := ParseName(rdata, 0)
	if err != nil {
		return NSECData{}, err
	}

	var types []uint16
	for offset < len(rdata) {
		if offset+2 > len(rdata) {
			return NSECData{}, &errors.WireFormatError{
				Operation: "parse NSEC bitmap",
				Offset:    offset,
				Message:   "truncated bitmap window header",
			}
		}
		window := rdata[offset]
		length := int(rdata[offset+1])
		offset += 2
		if offset+length > len(rdata) {
			return NSECData{}, &errors.WireFormatError{
				Operation: "parse NSEC bitmap",
				Offset:    offset,
				Message:   "truncated bitmap",
			}
		}
		for i := 0; i < length; i++ {
			b := rdata[offset+i]
			for bit := 0; bit < 8; bit++ {
				if b&(0x80>>uint(bit)) != 0 {
					types = append(types, uint16(window)*256+uint16(i*8+bit))
				}
			}
		}
		offset += length
	}
	return NSECData{NextDomainName: name, Types: types}, nil
}

// EncodeNSEC builds mDNS-form NSEC RDATA (name is NOT compressed per
// RFC 3597 §4 — NSEC's owner-name-as-next-name is encoded in full so the
// bitmap's implicit length is unambiguous).
func EncodeNSEC(owner string, types []uint16) ([]byte, error) {
	encodedName, err := EncodeName(owner)
	if err != nil {
		return nil, err
	}
	buf := append([]byte(nil), encodedName...)

	windows := make(map[byte][]byte)
	for _, t := range types {
		window := byte(t / 256)
		bit := int(t % 256)
		bm := windows[window]
		needed := bit/8 + 1
		for len(bm) < needed {
			bm = append(bm, 0)
		}
		bm[bit/8] |= 0x80 >> uint(bit%8)
		windows[window] = bm
	}
	for w := 0; w < 256; w++ {
		bm, ok := windows[byte(w)]
		if !ok {
			continue
		}
		buf = append(buf, byte(w), byte(len(bm)))
		buf = append(buf, bm...)
	}
	return buf, nil
}

// SOAData is the subset of an SOA record's RDATA negative caching needs:
// the MINIMUM field RFC 2308 §4 uses as the negative-response TTL.
type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// ParseSOA parses SOA RDATA: MNAME, RNAME (both possibly-compressed domain
// names), then five uint32 fields (SERIAL, REFRESH, RETRY, EXPIRE, MINIMUM).
func ParseSOA(rdata []byte) (SOAData, error) {
	mname, offset, err := ParseName(rdata, 0)
	if err != nil {
		return SOAData{}, err
	}
	rname, offset, err := ParseName(rdata, offset)
	if err != nil {
		return SOAData{}, err
	}
	if offset+20 > len(rdata) {
		return SOAData{}, &errors.WireFormatError{
			Operation: "parse SOA record",
			Offset:    offset,
			Message:   fmt.Sprintf("truncated SOA fixed fields: %d bytes remaining, expected 20", len(rdata)-offset),
		}
	}
	return SOAData{
		MName:   mname,
		RName:   rname,
		Serial:  binary.BigEndian.Uint32(rdata[offset : offset+4]),
		Refresh: binary.BigEndian.Uint32(rdata[offset+4 : offset+8]),
		Retry:   binary.BigEndian.Uint32(rdata[offset+8 : offset+12]),
		Expire:  binary.BigEndian.Uint32(rdata[offset+12 : offset+16]),
		Minimum: binary.BigEndian.Uint32(rdata[offset+16 : offset+20]),
	}, nil
}

// EncodeAAAA serializes a 16-byte IPv6 address as AAAA RDATA.
func EncodeAAAA(ip net.IP) ([]byte, error) {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return nil, &errors.ValidationError{Field: "ip", Value: ip.String(), Message: "not an IPv6 address"}
	}
	return append([]byte(nil), v6...), nil
}
