package probe

import (
	"fmt"
	"net"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/Septrum101/aliddns/app/record"
)

func viaInterfaces() (map[string]record.AddressSet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("interfaces: %w", err)
	}

	states, err := addrStates()
	if err != nil {
		// without flags every v6 address is treated as stable and preferred
		log.Debugf("[probe] address flags unavailable: %v", err)
	}

	ips := make(map[string]record.AddressSet)
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			log.Debugf("[probe] %s: %v", iface.Name, err)
			continue
		}

		var prefixes []netip.Prefix
		for _, a := range addrs {
			p, err := netip.ParsePrefix(a.String())
			if err != nil {
				continue
			}
			prefixes = append(prefixes, p)
		}

		if ip := classify(prefixes, states); !ip.IsEmpty() {
			ips[iface.Name] = ip
		}
	}

	return ips, nil
}

// addrState is the part of the kernel address flags that decides whether an
// address may be published.
type addrState uint8

const (
	stateTemporary addrState = 1 << iota
	stateDeprecated
	stateTentative
	stateDADFailed
)

// classify picks one address of each kind. Loopback, link-local, tentative
// and DAD-failed addresses are never published. A deprecated address is used
// only when no preferred address of the same kind exists.
func classify(prefixes []netip.Prefix, states map[netip.Addr]addrState) record.AddressSet {
	var ip, stale record.AddressSet
	for _, p := range prefixes {
		addr := p.Addr().Unmap()
		if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
			continue
		}
		st := states[addr]
		if st&(stateTentative|stateDADFailed) != 0 {
			continue
		}

		set := &ip
		if st&stateDeprecated != 0 {
			set = &stale
		}
		switch {
		case addr.Is4():
			keepFirst(&set.V4, addr.String())
		case st&stateTemporary != 0:
			keepFirst(&set.V6Temp, addr.String())
		default:
			keepFirst(&set.V6, addr.String())
		}
	}

	keepFirst(&ip.V4, stale.V4)
	keepFirst(&ip.V6, stale.V6)
	keepFirst(&ip.V6Temp, stale.V6Temp)
	return ip
}

func keepFirst(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
