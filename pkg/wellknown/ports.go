package wellknown

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strconv"
	"strings"

	_ "embed"

	"acp-capacity-analyzer/internal/model"
)

//go:embed well_known_ports.csv
var wellKnownPortsData string

type ServiceEntry struct {
	Protocol model.Protocol
	Port     uint16
}

var serviceRegistry map[string][]ServiceEntry

var protocolRegistry = map[string]model.Protocol{
	"ANY":       model.AnyProtocol,
	"IP":        model.AnyProtocol,
	"ICMP":      model.ICMP,
	"IGMP":      model.IGMP,
	"TCP":       model.TCP,
	"UDP":       model.UDP,
	"GRE":       model.GRE,
	"ESP":       model.ESP,
	"IPV6-ICMP": model.ICMPv6,
	"ICMPV6":    model.ICMPv6,
	"AH":        51,
	"EIGRP":     88,
	"OSPF":      89,
	"PIM":       103,
	"VRRP":      112,
	"SCTP":      132,
}

// Device aliases that do not follow the IANA service names.
var serviceAliases = map[string]string{
	"DNS":           "DOMAIN",
	"DNS_OVER_TCP":  "DOMAIN",
	"LDAP_SSL":      "LDAPS",
	"MS_SQL":        "MS-SQL-S",
	"MSSQL":         "MS-SQL-S",
	"NTP_UDP":       "NTP",
	"SMB":           "MICROSOFT-DS",
	"RDP_TCP":       "RDP",
	"SNMP_TRAP":     "SNMPTRAP",
	"HTTP_ALT":      "HTTP-ALT",
	"HTTPS_ALT":     "HTTPS-ALT",
	"NETBIOS":       "NETBIOS-SSN",
	"KERBEROS_V5":   "KERBEROS",
	"ISAKMP_IKE":    "ISAKMP",
	"IKE":           "ISAKMP",
	"IPSEC_NAT_T":   "IPSEC-NAT-T",
	"FTP_DATA":      "FTP-DATA",
	"POSTGRES":      "POSTGRESQL",
	"ORACLE_SQLNET": "ORACLE",
}

func init() {
	serviceRegistry = make(map[string][]ServiceEntry)
	reader := csv.NewReader(bytes.NewBufferString(wellKnownPortsData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded well_known_ports.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded well_known_ports.csv: %v", err)
		}
		if len(record) < 3 {
			continue
		}

		port, err := strconv.ParseUint(record[0], 10, 16)
		if err != nil {
			continue
		}
		register(record[1], model.TCP, uint16(port))
		register(record[2], model.UDP, uint16(port))
	}
}

func register(name string, proto model.Protocol, port uint16) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || name == "N/A" {
		return
	}
	serviceRegistry[name] = append(serviceRegistry[name], ServiceEntry{Protocol: proto, Port: port})
}

func normalize(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	if alias, ok := serviceAliases[n]; ok {
		return alias
	}
	return n
}

// GetService returns the port and protocol entries for a well-known service name.
func GetService(name string) ([]ServiceEntry, bool) {
	entry, ok := serviceRegistry[normalize(name)]
	return entry, ok
}

// GetProtocol resolves a protocol keyword or decimal protocol number.
func GetProtocol(name string) (model.Protocol, bool) {
	name = strings.TrimSpace(name)
	if n, err := strconv.ParseUint(name, 10, 8); err == nil {
		return model.Protocol(n), true
	}
	p, ok := protocolRegistry[strings.ToUpper(name)]
	return p, ok
}
