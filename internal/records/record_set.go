// Package records builds the authoritative record set for a registered
// service: PTR, SRV, TXT, and A/AAAA, per RFC 6762/6763.
package records

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/message"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// ServiceInfo holds the facts needed to build one service's record set.
type ServiceInfo struct {
	InstanceName string            // "My Printer"
	ServiceType  string            // "_http._tcp.local"
	Hostname     string            // "myhost.local"
	Port         int               // 8080
	IPv4Address  []byte            // 4-byte IPv4 address, nil if unavailable
	IPv6Address  []byte            // 16-byte IPv6 address, nil if unavailable
	TXTRecords   map[string]string // {"version": "1.0"}
}

// BuildRecordSet constructs the full set of coredata.AuthRecord for a
// service, per RFC 6763 §6: PTR (shared), SRV/TXT/A/AAAA (unique, probed).
//
// The SRV/TXT/A/AAAA records are wired together through RRSet so the
// authoritative-record engine treats them as one atomic announce/goodbye
// unit, and TXT is marked DependentOn SRV so a name conflict on either
// forces both back through probing together.
func BuildRecordSet(service *ServiceInfo) ([]*coredata.AuthRecord, error) {
	if err := validateInstanceAndType(service); err != nil {
		return nil, err
	}

	instanceFQDN := service.InstanceName + "." + service.ServiceType

	ptr, err := buildPTRRecord(service)
	if err != nil {
		return nil, fmt.Errorf("build PTR record: %w", err)
	}
	srv, err := buildSRVRecord(service, instanceFQDN)
	if err != nil {
		return nil, fmt.Errorf("build SRV record: %w", err)
	}
	txt := buildTXTRecord(service, instanceFQDN)

	set := []*coredata.AuthRecord{ptr, srv, txt}

	if len(service.IPv4Address) == 4 {
		a, err := buildARecord(service)
		if err != nil {
			return nil, fmt.Errorf("build A record: %w", err)
		}
		set = append(set, a)
	}
	if len(service.IPv6Address) == 16 {
		aaaa, err := buildAAAARecord(service)
		if err != nil {
			return nil, fmt.Errorf("build AAAA record: %w", err)
		}
		set = append(set, aaaa)
	}

	// SRV, TXT, and the address records form one RRSet: the same token
	// pointer (srv) marks them as belonging together for the engine's
	// SameRRSet/ConflictsWith bookkeeping, and TXT additionally depends on
	// SRV so a probe conflict on the instance name carries TXT back into
	// probing alongside it.
	for _, rec := range set[1:] {
		rec.RRSet = srv
	}
	txt.DependentOn = srv

	return set, nil
}

func validateInstanceAndType(service *ServiceInfo) error {
	if service.InstanceName == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if service.ServiceType == "" {
		return fmt.Errorf("service type cannot be empty")
	}
	if service.Port < 1 || service.Port > 65535 {
		return fmt.Errorf("port must be in range 1-65535 (got %d)", service.Port)
	}
	return nil
}

// buildPTRRecord builds the service-type-to-instance pointer record.
// PTR is shared: multiple hosts advertise the same service type, so it
// never probes and never carries the cache-flush bit.
func buildPTRRecord(service *ServiceInfo) (*coredata.AuthRecord, error) {
	target, err := message.EncodeServiceInstanceName(service.InstanceName, service.ServiceType)
	if err != nil {
		return nil, err
	}
	data := coredata.NewRecordData(
		coredata.NewName(service.ServiceType),
		protocol.RecordTypePTR, protocol.ClassIN,
		GetTTLForRecordType(protocol.RecordTypePTR), target, coredata.InterfaceAny, false,
	)
	return &coredata.AuthRecord{RecordData: data, RecordType: coredata.Shared}, nil
}

// buildSRVRecord builds the instance-to-host-and-port record per RFC 2782.
func buildSRVRecord(service *ServiceInfo, instanceFQDN string) (*coredata.AuthRecord, error) {
	rdata := make([]byte, 6)
	binary.BigEndian.PutUint16(rdata[0:2], 0) // priority
	binary.BigEndian.PutUint16(rdata[2:4], 0) // weight
	port := service.Port
	if port < 0 || port > 65535 {
		port = 0
	}
	binary.BigEndian.PutUint16(rdata[4:6], uint16(port)) //nolint:gosec // bounds checked above

	hostEncoded, err := message.EncodeName(service.Hostname)
	if err != nil {
		return nil, err
	}
	rdata = append(rdata, hostEncoded...)

	data := coredata.NewRecordData(
		coredata.NewName(instanceFQDN),
		protocol.RecordTypeSRV, protocol.ClassIN,
		GetTTLForRecordType(protocol.RecordTypeSRV), rdata, coredata.InterfaceAny, true,
	)
	return &coredata.AuthRecord{RecordData: data, RecordType: coredata.Unique}, nil
}

// buildTXTRecord builds the instance metadata record per RFC 6763 §6.
// An empty map still yields the mandatory single zero-length string.
func buildTXTRecord(service *ServiceInfo, instanceFQDN string) *coredata.AuthRecord {
	var rdata []byte
	if len(service.TXTRecords) == 0 {
		rdata = []byte{0x00}
	} else {
		rdata = make([]byte, 0, 256)
		for key, value := range service.TXTRecords {
			entry := key + "=" + value
			n := len(entry)
			if n > 255 {
				n = 255
				entry = entry[:255]
			}
			rdata = append(rdata, byte(n))
			rdata = append(rdata, entry...)
		}
	}
	data := coredata.NewRecordData(
		coredata.NewName(instanceFQDN),
		protocol.RecordTypeTXT, protocol.ClassIN,
		GetTTLForRecordType(protocol.RecordTypeTXT), rdata, coredata.InterfaceAny, true,
	)
	return &coredata.AuthRecord{RecordData: data, RecordType: coredata.Unique}
}

// buildARecord builds the hostname-to-IPv4 record. Host address records
// use the long TTLHostname since they change far less often than
// service-discovery records.
func buildARecord(service *ServiceInfo) (*coredata.AuthRecord, error) {
	data := coredata.NewRecordData(
		coredata.NewName(service.Hostname),
		protocol.RecordTypeA, protocol.ClassIN,
		GetTTLForRecordType(protocol.RecordTypeA), append([]byte(nil), service.IPv4Address...), coredata.InterfaceAny, true,
	)
	return &coredata.AuthRecord{RecordData: data, RecordType: coredata.Unique}, nil
}

// buildAAAARecord builds the hostname-to-IPv6 record per RFC 3596.
func buildAAAARecord(service *ServiceInfo) (*coredata.AuthRecord, error) {
	rdata, err := message.EncodeAAAA(net.IP(service.IPv6Address))
	if err != nil {
		return nil, err
	}
	data := coredata.NewRecordData(
		coredata.NewName(service.Hostname),
		protocol.RecordTypeAAAA, protocol.ClassIN,
		GetTTLForRecordType(protocol.RecordTypeAAAA), rdata, coredata.InterfaceAny, true,
	)
	return &coredata.AuthRecord{RecordData: data, RecordType: coredata.Unique}, nil
}
