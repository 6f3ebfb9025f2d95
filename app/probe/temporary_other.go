//go:build !linux

package probe

import (
	"errors"
	"net/netip"
)

func addrStates() (map[netip.Addr]addrState, error) {
	return nil, errors.New("not supported on this platform")
}
