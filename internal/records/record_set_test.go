package records

import (
	"testing"

	"github.com/joshuafuller/beacon/internal/coredata"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// TestBuildTXTRecord_Empty tests RFC 6763 §6 mandatory TXT record.
//
// RFC 6763 §6: "If a DNS-SD service has no TXT records, it MUST include a
// single TXT record consisting of a single zero byte (0x00)."
func TestBuildTXTRecord_Empty(t *testing.T) {
	service := &ServiceInfo{InstanceName: "My Printer", ServiceType: "_http._tcp.local"}

	rec := buildTXTRecord(service, "My Printer._http._tcp.local")

	if len(rec.RData) != 1 || rec.RData[0] != 0x00 {
		t.Errorf("buildTXTRecord(empty).RData = %v, want [0x00]", rec.RData)
	}
}

// TestBuildTXTRecord_SingleKey tests encoding a single key-value pair.
//
// RFC 6763 §6.4: length byte + "key=value" string.
func TestBuildTXTRecord_SingleKey(t *testing.T) {
	service := &ServiceInfo{
		InstanceName: "My Printer",
		ServiceType:  "_http._tcp.local",
		TXTRecords:   map[string]string{"version": "1.0"},
	}

	rec := buildTXTRecord(service, "My Printer._http._tcp.local")

	keyValue := "version=1.0"
	if len(rec.RData) != len(keyValue)+1 {
		t.Fatalf("buildTXTRecord(single key).RData length = %d, want %d", len(rec.RData), len(keyValue)+1)
	}
	if rec.RData[0] != byte(len(keyValue)) {
		t.Errorf("buildTXTRecord(single key) length byte = 0x%02x, want 0x%02x", rec.RData[0], len(keyValue))
	}
	if string(rec.RData[1:]) != keyValue {
		t.Errorf("buildTXTRecord(single key) string = %q, want %q", rec.RData[1:], keyValue)
	}
}

// TestBuildTXTRecord_MultipleKeys tests encoding multiple key-value pairs.
func TestBuildTXTRecord_MultipleKeys(t *testing.T) {
	service := &ServiceInfo{
		InstanceName: "My Printer",
		ServiceType:  "_http._tcp.local",
		TXTRecords: map[string]string{
			"version": "1.0",
			"path":    "/api",
		},
	}

	rec := buildTXTRecord(service, "My Printer._http._tcp.local")

	// Each entry: length byte + data. Two entries means two length bytes
	// interleaved through the blob; a single 0x00 byte would mean the
	// mandatory-empty path was taken instead.
	if len(rec.RData) < len("version=1.0")+len("path=/api")+2 {
		t.Errorf("buildTXTRecord(multiple keys).RData too short: %d bytes", len(rec.RData))
	}
	if rec.RData[0] == 0x00 {
		t.Error("buildTXTRecord(multiple keys) starts with 0x00, want length-prefixed strings")
	}
}

func newTestService() *ServiceInfo {
	return &ServiceInfo{
		InstanceName: "My Printer",
		ServiceType:  "_http._tcp.local",
		Hostname:     "myhost.local",
		Port:         8080,
		IPv4Address:  []byte{192, 168, 1, 100},
		TXTRecords:   map[string]string{"version": "1.0"},
	}
}

// TestBuildRecordSet_AllRecordTypes tests building the complete record set
// for a service with an IPv4 address.
//
// RFC 6763 §6: PTR, SRV, TXT, and A records.
func TestBuildRecordSet_AllRecordTypes(t *testing.T) {
	recordSet, err := BuildRecordSet(newTestService())
	if err != nil {
		t.Fatalf("BuildRecordSet() error = %v", err)
	}

	foundTypes := make(map[protocol.RecordType]bool)
	for _, record := range recordSet {
		foundTypes[record.Type] = true
	}

	wantTypes := []protocol.RecordType{
		protocol.RecordTypePTR,
		protocol.RecordTypeSRV,
		protocol.RecordTypeTXT,
		protocol.RecordTypeA,
	}
	for _, wantType := range wantTypes {
		if !foundTypes[wantType] {
			t.Errorf("BuildRecordSet() missing record type %v", wantType)
		}
	}
	if len(recordSet) != 4 {
		t.Errorf("BuildRecordSet() returned %d records, want 4 (PTR, SRV, TXT, A)", len(recordSet))
	}
}

// TestBuildRecordSet_PTRRecord tests PTR record construction.
func TestBuildRecordSet_PTRRecord(t *testing.T) {
	recordSet, err := BuildRecordSet(newTestService())
	if err != nil {
		t.Fatalf("BuildRecordSet() error = %v", err)
	}

	var ptr *coredata.AuthRecord
	for _, record := range recordSet {
		if record.Type == protocol.RecordTypePTR {
			ptr = record
			break
		}
	}
	if ptr == nil {
		t.Fatal("BuildRecordSet() did not include PTR record")
	}

	wantName := coredata.NewName("_http._tcp.local")
	if !ptr.Name.Equal(wantName) {
		t.Errorf("PTR record Name = %q, want %q", ptr.Name, wantName)
	}
	if wantTTL := uint32(120); ptr.TTL != wantTTL {
		t.Errorf("PTR record TTL = %d, want %d (RFC 6762 §10: 120s for service records)", ptr.TTL, wantTTL)
	}
	if ptr.CacheFlush {
		t.Error("PTR record CacheFlush = true, want false (shared record)")
	}
	if ptr.RecordType != coredata.Shared {
		t.Errorf("PTR record RecordType = %v, want Shared", ptr.RecordType)
	}
}

// TestBuildRecordSet_SRVRecord tests SRV record construction.
func TestBuildRecordSet_SRVRecord(t *testing.T) {
	recordSet, err := BuildRecordSet(newTestService())
	if err != nil {
		t.Fatalf("BuildRecordSet() error = %v", err)
	}

	var srv *coredata.AuthRecord
	for _, record := range recordSet {
		if record.Type == protocol.RecordTypeSRV {
			srv = record
			break
		}
	}
	if srv == nil {
		t.Fatal("BuildRecordSet() did not include SRV record")
	}

	wantName := coredata.NewName("My Printer._http._tcp.local")
	if !srv.Name.Equal(wantName) {
		t.Errorf("SRV record Name = %q, want %q", srv.Name, wantName)
	}
	if wantTTL := uint32(120); srv.TTL != wantTTL {
		t.Errorf("SRV record TTL = %d, want %d", srv.TTL, wantTTL)
	}
	if !srv.CacheFlush {
		t.Error("SRV record CacheFlush = false, want true (unique record)")
	}
}

// TestBuildRecordSet_ARecord tests A record construction.
func TestBuildRecordSet_ARecord(t *testing.T) {
	recordSet, err := BuildRecordSet(newTestService())
	if err != nil {
		t.Fatalf("BuildRecordSet() error = %v", err)
	}

	var a *coredata.AuthRecord
	for _, record := range recordSet {
		if record.Type == protocol.RecordTypeA {
			a = record
			break
		}
	}
	if a == nil {
		t.Fatal("BuildRecordSet() did not include A record")
	}

	wantName := coredata.NewName("myhost.local")
	if !a.Name.Equal(wantName) {
		t.Errorf("A record Name = %q, want %q", a.Name, wantName)
	}
	if wantTTL := uint32(4500); a.TTL != wantTTL {
		t.Errorf("A record TTL = %d, want %d (RFC 6762 §10: 4500s for hostname records)", a.TTL, wantTTL)
	}
	if !a.CacheFlush {
		t.Error("A record CacheFlush = false, want true (unique record)")
	}
	if len(a.RData) != 4 {
		t.Errorf("A record RData length = %d, want 4 bytes", len(a.RData))
	}
}

// TestBuildRecordSet_SRVTXTShareRRSet verifies SRV/TXT/A are wired into one
// RRSet and TXT depends on SRV, so the authoritative-record engine treats a
// conflict on the instance name as one unit.
func TestBuildRecordSet_SRVTXTShareRRSet(t *testing.T) {
	recordSet, err := BuildRecordSet(newTestService())
	if err != nil {
		t.Fatalf("BuildRecordSet() error = %v", err)
	}

	var srv, txt, a *coredata.AuthRecord
	for _, record := range recordSet {
		switch record.Type {
		case protocol.RecordTypeSRV:
			srv = record
		case protocol.RecordTypeTXT:
			txt = record
		case protocol.RecordTypeA:
			a = record
		}
	}

	if txt.RRSet != srv || a.RRSet != srv {
		t.Errorf("TXT/A RRSet = %p/%p, want both pointing at SRV (%p)", txt.RRSet, a.RRSet, srv)
	}
	if txt.DependentOn != srv {
		t.Errorf("TXT DependentOn = %v, want SRV", txt.DependentOn)
	}
}

// TestBuildRecordSet_RejectsEmptyInstanceName tests validation per RFC 6763 §6.
func TestBuildRecordSet_RejectsEmptyInstanceName(t *testing.T) {
	service := newTestService()
	service.InstanceName = ""

	if _, err := BuildRecordSet(service); err == nil {
		t.Error("BuildRecordSet() with empty instance name error = nil, want error")
	}
}

// TestBuildRecordSet_RejectsInvalidPort tests validation of the port range.
func TestBuildRecordSet_RejectsInvalidPort(t *testing.T) {
	service := newTestService()
	service.Port = 0

	if _, err := BuildRecordSet(service); err == nil {
		t.Error("BuildRecordSet() with port 0 error = nil, want error")
	}
}

// TestBuildRecordSet_NoIPv6WhenAbsent tests that the AAAA record is omitted
// when no IPv6 address is supplied.
func TestBuildRecordSet_NoIPv6WhenAbsent(t *testing.T) {
	recordSet, err := BuildRecordSet(newTestService())
	if err != nil {
		t.Fatalf("BuildRecordSet() error = %v", err)
	}

	for _, record := range recordSet {
		if record.Type == protocol.RecordTypeAAAA {
			t.Error("BuildRecordSet() without IPv6Address included an AAAA record")
		}
	}
}
