package message

import (
	"encoding/binary"
	"strings"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// EncodeMessage serializes a complete DNSMessage (query or response, any
// combination of sections) to wire format, applying RFC 1035 §4.1.4 name
// compression across the question QNAMEs and the answer/authority/additional
// owner NAMEs. RDATA is copied as given, so domain names embedded in it
// (PTR, SRV, NSEC next-name) are not compressed.
//
// BuildQuery and BuildResponse remain as the minimal single-question,
// uncompressed helpers they always were; EncodeMessage is what the
// assembler uses to pack a full multi-section mDNS packet.
func EncodeMessage(msg *DNSMessage) ([]byte, error) {
	buf := make([]byte, 12)
	compress := make(map[string]int)

	binary.BigEndian.PutUint16(buf[0:2], msg.Header.ID)
	binary.BigEndian.PutUint16(buf[2:4], msg.Header.Flags)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(msg.Questions)))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(msg.Answers)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(msg.Authorities)))
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(msg.Additionals)))

	for _, q := range msg.Questions {
		encoded, err := encodeNameCompressed(&buf, q.QNAME, compress)
		if err != nil {
			return nil, err
		}
		_ = encoded
		buf = appendUint16(buf, q.QTYPE)
		buf = appendUint16(buf, q.QCLASS)
	}

	for _, section := range [][]Answer{msg.Answers, msg.Authorities, msg.Additionals} {
		for _, rr := range section {
			if _, err := encodeNameCompressed(&buf, rr.NAME, compress); err != nil {
				return nil, err
			}
			buf = appendUint16(buf, rr.TYPE)
			buf = appendUint16(buf, rr.CLASS)
			buf = appendUint32(buf, rr.TTL)

			rdlenPos := len(buf)
			buf = appendUint16(buf, 0) // placeholder, patched below
			rdataStart := len(buf)
			buf = append(buf, rr.RDATA...)
			rdlen := len(buf) - rdataStart
			binary.BigEndian.PutUint16(buf[rdlenPos:rdlenPos+2], uint16(rdlen))
		}
	}

	return buf, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// encodeNameCompressed appends name to *buf, replacing the longest suffix
// already written elsewhere in the packet with a pointer, and recording the
// offset of the whole name (and of every suffix not already recorded) for
// future reuse. Service instance names (containing "._") keep their
// instance label uncompressed via encodeServiceInstanceCompressed, matching
// RFC 6763 §4.3's allowance for arbitrary UTF-8 in that one label.
func encodeNameCompressed(buf *[]byte, name string, compress map[string]int) ([]byte, error) {
	if name == "" || name == "." {
		*buf = append(*buf, 0)
		return nil, nil
	}

	labels := strings.Split(strings.TrimSuffix(name, "."), ".")

	if idx := instanceSplitIndex(labels); idx > 0 {
		return encodeServiceInstanceCompressed(buf, labels, idx, compress)
	}

	return encodeLabelsCompressed(buf, labels, compress, name)
}

// instanceSplitIndex returns 1 when the second label begins with "_" and
// the first does not, the split point between a free-form service-instance
// label and the service-type labels that follow it; otherwise it returns -1.
func instanceSplitIndex(labels []string) int {
	if len(labels) < 2 {
		return -1
	}
	if !strings.HasPrefix(labels[0], "_") && strings.HasPrefix(labels[1], "_") {
		return 1
	}
	return -1
}

func encodeServiceInstanceCompressed(buf *[]byte, labels []string, idx int, compress map[string]int) ([]byte, error) {
	startOffset := len(*buf)
	if startOffset < 1<<14 {
		compress[strings.Join(labels, ".")] = startOffset
	}

	instance := labels[0]
	if len(instance) > protocol.MaxLabelLength {
		return nil, &errors.ValidationError{Field: "name", Value: instance, Message: "instance label too long"}
	}
	*buf = append(*buf, byte(len(instance)))
	*buf = append(*buf, []byte(instance)...)

	return encodeLabelsCompressed(buf, labels[idx:], compress, strings.Join(labels[idx:], "."))
}

func encodeLabelsCompressed(buf *[]byte, labels []string, compress map[string]int, fullName string) ([]byte, error) {
	for i := range labels {
		suffix := strings.Join(labels[i:], ".")
		if ptr, ok := compress[suffix]; ok {
			*buf = append(*buf, byte(0xC0|(ptr>>8)), byte(ptr))
			return nil, nil
		}

		if offset := len(*buf); offset < 1<<14 {
			compress[suffix] = offset
		}

		label := labels[i]
		if len(label) > protocol.MaxLabelLength {
			return nil, &errors.ValidationError{Field: "name", Value: fullName, Message: "label too long"}
		}
		*buf = append(*buf, byte(len(label)))
		*buf = append(*buf, []byte(label)...)
	}
	*buf = append(*buf, 0)
	return nil, nil
}
