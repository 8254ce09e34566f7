package parser

import (
	"testing"

	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/trace"
)

func networkEvent(eventID uint16, taskName string, props []model.RawProperty) model.RawEvent {
	return model.RawEvent{
		ProviderID: trace.ProviderNetwork.GUID,
		EventID:    eventID,
		Timestamp:  1700000000,
		ProcessID:  1234,
		TaskName:   taskName,
		Properties: props,
	}
}

func TestParseIgnoresUnknownProvider(t *testing.T) {
	p := New(nil, nil)
	ev := model.RawEvent{ProviderID: [16]byte{9, 9, 9}, EventID: 10}
	res := p.Parse(ev)
	if res.Kind != KindIgnore {
		t.Fatalf("expected KindIgnore, got %v", res.Kind)
	}
}

func TestParseTrafficUploadFourByteSize(t *testing.T) {
	p := New(nil, nil)
	ev := networkEvent(10, "KERNEL_NETWORK_TASK_TCPSEND", []model.RawProperty{
		{Name: "size", Bytes: []byte{0x64, 0x00, 0x00, 0x00}}, // 100
		{Name: "daddr", Bytes: []byte{1, 2, 3, 4}},
	})
	res := p.Parse(ev)
	if res.Kind != KindTraffic {
		t.Fatalf("expected KindTraffic, got %v", res.Kind)
	}
	if res.Traffic.Bytes != 100 {
		t.Fatalf("expected 100 bytes, got %d", res.Traffic.Bytes)
	}
	if res.Traffic.Direction != model.DirectionUpload {
		t.Fatalf("expected upload, got %v", res.Traffic.Direction)
	}
	if res.Traffic.RemoteIP != "1.2.3.4" {
		t.Fatalf("expected 1.2.3.4, got %s", res.Traffic.RemoteIP)
	}
}

func TestParseTrafficDownloadEightByteSize(t *testing.T) {
	p := New(nil, nil)
	ev := networkEvent(11, "KERNEL_NETWORK_TASK_TCPRECV", []model.RawProperty{
		{Name: "Size", Bytes: []byte{0x01, 0, 0, 0, 0, 0, 0, 0}}, // 1
	})
	res := p.Parse(ev)
	if res.Kind != KindTraffic {
		t.Fatalf("expected KindTraffic, got %v", res.Kind)
	}
	if res.Traffic.Direction != model.DirectionDownload {
		t.Fatalf("expected download, got %v", res.Traffic.Direction)
	}
}

func TestParseTrafficZeroBytesIgnored(t *testing.T) {
	p := New(nil, nil)
	ev := networkEvent(10, "Send", []model.RawProperty{
		{Name: "datalen", Bytes: []byte{0, 0, 0, 0}},
	})
	res := p.Parse(ev)
	if res.Kind != KindIgnore {
		t.Fatalf("expected KindIgnore for zero-byte event, got %v", res.Kind)
	}
}

func TestSchemaDiscoveredOnce(t *testing.T) {
	p := New(nil, nil)
	ev := networkEvent(10, "Send", []model.RawProperty{
		{Name: "size", Bytes: []byte{1, 0, 0, 0}},
	})
	p.Parse(ev)
	p.Parse(ev)
	p.Parse(ev)
	if got := p.SchemaCacheSize(); got != 1 {
		t.Fatalf("expected one cached schema after repeated events, got %d", got)
	}
}

func TestParseNoSizeFieldNotRelevant(t *testing.T) {
	p := New(nil, nil)
	ev := networkEvent(99, "SomeOtherTask", []model.RawProperty{
		{Name: "unrelatedField", Bytes: []byte{1, 2, 3, 4}},
	})
	res := p.Parse(ev)
	if res.Kind != KindIgnore {
		t.Fatalf("expected KindIgnore when no size field present, got %v", res.Kind)
	}
	if got := p.SchemaCacheSize(); got != 1 {
		t.Fatalf("irrelevant schema should still be cached, got %d entries", got)
	}
}

func TestParseDNSEventWithinRange(t *testing.T) {
	p := New(nil, nil)
	ev := model.RawEvent{
		ProviderID: trace.ProviderDNS.GUID,
		EventID:    3006,
		Properties: []model.RawProperty{
			{Name: "QueryName", Bytes: []byte("example.com")},
			{Name: "QueryResults", Bytes: []byte("93.184.216.34;")},
		},
	}
	res := p.Parse(ev)
	if res.Kind != KindDNS {
		t.Fatalf("expected KindDNS, got %v", res.Kind)
	}
	if res.DNS.QueryName != "example.com" || res.DNS.ResultIP != "93.184.216.34" {
		t.Fatalf("unexpected DNS observation: %+v", res.DNS)
	}
}

func TestParseDNSEventOutsideRangeIgnored(t *testing.T) {
	p := New(nil, nil)
	ev := model.RawEvent{
		ProviderID: trace.ProviderDNS.GUID,
		EventID:    5000,
		Properties: []model.RawProperty{
			{Name: "QueryName", Bytes: []byte("example.com")},
			{Name: "QueryResults", Bytes: []byte("93.184.216.34;")},
		},
	}
	res := p.Parse(ev)
	if res.Kind != KindIgnore {
		t.Fatalf("expected KindIgnore outside DNS event id range, got %v", res.Kind)
	}
}

func TestParseDNSMissingFieldIgnored(t *testing.T) {
	p := New(nil, nil)
	ev := model.RawEvent{
		ProviderID: trace.ProviderDNS.GUID,
		EventID:    3001,
		Properties: []model.RawProperty{
			{Name: "QueryName", Bytes: []byte("example.com")},
		},
	}
	res := p.Parse(ev)
	if res.Kind != KindIgnore {
		t.Fatalf("expected KindIgnore when result ip missing, got %v", res.Kind)
	}
}

func TestIPv4RoundTrip(t *testing.T) {
	cases := []struct {
		v    uint32
		want string
	}{
		{0x04030201, "1.2.3.4"},
		{0, "0.0.0.0"},
		{0xFFFFFFFF, "255.255.255.255"},
	}
	for _, c := range cases {
		if got := IPv4ToString(c.v); got != c.want {
			t.Errorf("IPv4ToString(%#x) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestIPv6RoundTrip(t *testing.T) {
	b := []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	got := IPv6ToString(b)
	want := "2001:0db8:0000:0000:0000:0000:0000:0001"
	if got != want {
		t.Errorf("IPv6ToString = %q, want %q", got, want)
	}
}

func TestIPv6WrongWidthReturnsEmpty(t *testing.T) {
	if got := IPv6ToString([]byte{1, 2, 3}); got != "" {
		t.Errorf("expected empty string for wrong width, got %q", got)
	}
}
