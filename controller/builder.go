package controller

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Septrum101/aliddns/app/record"
	"github.com/Septrum101/aliddns/config"
)

func buildBindings(records []*config.Record) map[string][]*binding {
	bindings := make(map[string][]*binding)
	for i := range records {
		r := records[i]
		b := &binding{
			nic:          r.NicName,
			recordType:   strings.ToUpper(r.RecordType),
			hostname:     r.Hostname,
			useTemporary: r.UseTemporary,
		}
		bindings[b.nic] = append(bindings[b.nic], b)
	}
	return bindings
}

// address picks the value to publish for b. AAAA bindings fall back between
// the stable and temporary IPv6 address when the preferred one is absent.
func (b *binding) address(ip record.AddressSet) (string, bool) {
	if b.recordType == "A" {
		return ip.V4, ip.V4 != ""
	}

	first, second := ip.V6, ip.V6Temp
	if b.useTemporary {
		first, second = second, first
	}
	if first != "" {
		return first, true
	}
	if second != "" {
		log.Debugf("[%s] preferred IPv6 address absent, use %s", b.hostname, second)
		return second, true
	}
	return "", false
}
