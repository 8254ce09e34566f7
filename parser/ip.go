package parser

import "fmt"

// IPv4ToString renders a 4-byte ETW address property as dotted-quad,
// least-significant-octet-first — the byte order the original DnsResolver
// used when turning its wire-format IPv4 values into strings.
func IPv4ToString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v&0xFF, (v>>8)&0xFF, (v>>16)&0xFF, (v>>24)&0xFF)
}

// IPv6ToString renders a 16-byte address as eight colon-separated lowercase
// hex groups. No zero-run compression is attempted; correctness over
// brevity, since this only ever feeds display strings and cache keys.
func IPv6ToString(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7],
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}
