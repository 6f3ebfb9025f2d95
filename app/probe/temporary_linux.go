package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

var errMalformed = errors.New("malformed netlink message")

// addrStates dumps the kernel IPv6 address table over netlink and returns
// the state flags of every address.
func addrStates() (map[netip.Addr]addrState, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("netlink socket: %w", err)
	}
	defer unix.Close(fd)

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Bind(fd, sa); err != nil {
		return nil, fmt.Errorf("netlink bind: %w", err)
	}
	if err := unix.Sendto(fd, dumpRequest(1), 0, sa); err != nil {
		return nil, fmt.Errorf("netlink send: %w", err)
	}

	states := make(map[netip.Addr]addrState)
	buf := make([]byte, 32*1024)
	for {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, fmt.Errorf("netlink recv: %w", err)
		}
		done, err := parseAddrDump(buf[:n], states)
		if err != nil {
			return nil, err
		}
		if done {
			return states, nil
		}
	}
}

func nlmAlign(n int) int {
	return (n + unix.NLMSG_ALIGNTO - 1) &^ (unix.NLMSG_ALIGNTO - 1)
}

func rtaAlign(n int) int {
	return (n + unix.RTA_ALIGNTO - 1) &^ (unix.RTA_ALIGNTO - 1)
}

func dumpRequest(seq uint32) []byte {
	b := make([]byte, unix.NLMSG_HDRLEN+nlmAlign(unix.SizeofRtGenmsg))
	binary.NativeEndian.PutUint32(b[0:4], uint32(len(b)))
	binary.NativeEndian.PutUint16(b[4:6], unix.RTM_GETADDR)
	binary.NativeEndian.PutUint16(b[6:8], unix.NLM_F_REQUEST|unix.NLM_F_DUMP)
	binary.NativeEndian.PutUint32(b[8:12], seq)
	b[unix.NLMSG_HDRLEN] = unix.AF_INET6
	return b
}

// parseAddrDump adds the RTM_NEWADDR entries of one datagram to states and
// reports whether the dump is complete.
func parseAddrDump(b []byte, states map[netip.Addr]addrState) (bool, error) {
	for len(b) >= unix.NLMSG_HDRLEN {
		l := int(binary.NativeEndian.Uint32(b[0:4]))
		if l < unix.NLMSG_HDRLEN || l > len(b) {
			return false, errMalformed
		}
		msg := b[unix.NLMSG_HDRLEN:l]

		switch binary.NativeEndian.Uint16(b[4:6]) {
		case unix.NLMSG_DONE:
			return true, nil
		case unix.NLMSG_ERROR:
			if len(msg) < 4 {
				return false, errMalformed
			}
			if code := int32(binary.NativeEndian.Uint32(msg)); code != 0 {
				return false, fmt.Errorf("netlink: %w", unix.Errno(-code))
			}
			return true, nil
		case unix.RTM_NEWADDR:
			if addr, st, ok := parseAddr(msg); ok {
				states[addr] = st
			}
		}

		b = b[min(nlmAlign(l), len(b)):]
	}
	return false, nil
}

func parseAddr(msg []byte) (netip.Addr, addrState, bool) {
	if len(msg) < unix.SizeofIfAddrmsg {
		return netip.Addr{}, 0, false
	}
	flags := uint32(msg[2])

	var addr netip.Addr
	attrs := msg[unix.SizeofIfAddrmsg:]
	for len(attrs) >= unix.SizeofRtAttr {
		l := int(binary.NativeEndian.Uint16(attrs[0:2]))
		if l < unix.SizeofRtAttr || l > len(attrs) {
			break
		}
		v := attrs[unix.SizeofRtAttr:l]
		switch binary.NativeEndian.Uint16(attrs[2:4]) {
		case unix.IFA_ADDRESS:
			if a, ok := netip.AddrFromSlice(v); ok {
				addr = a.Unmap()
			}
		case unix.IFA_FLAGS:
			// extended 32-bit flags override the 8-bit header field
			if len(v) >= 4 {
				flags = binary.NativeEndian.Uint32(v)
			}
		}
		attrs = attrs[min(rtaAlign(l), len(attrs)):]
	}
	if !addr.IsValid() {
		return netip.Addr{}, 0, false
	}

	var st addrState
	if flags&unix.IFA_F_TEMPORARY != 0 {
		st |= stateTemporary
	}
	if flags&unix.IFA_F_DEPRECATED != 0 {
		st |= stateDeprecated
	}
	if flags&unix.IFA_F_TENTATIVE != 0 {
		st |= stateTentative
	}
	if flags&unix.IFA_F_DADFAILED != 0 {
		st |= stateDADFailed
	}
	return addr, st, true
}
