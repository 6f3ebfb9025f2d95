package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/Septrum101/aliddns/app/record"
)

// Connecting a UDP socket sends nothing; the kernel only picks the route and
// the source address.
var (
	v4Target = "8.8.8.8:80"
	v6Target = "[2001:4860:4860::8888]:80"
)

func viaSocket(ctx context.Context) (record.AddressSet, error) {
	var ip record.AddressSet

	v4, err4 := localAddr(ctx, "udp4", v4Target)
	if err4 == nil {
		ip.V4 = v4
	}
	v6, err6 := localAddr(ctx, "udp6", v6Target)
	if err6 == nil {
		ip.V6 = v6
	}

	if err4 != nil && err6 != nil {
		return ip, errors.Join(err4, err6)
	}
	return ip, nil
}

func localAddr(ctx context.Context, network string, target string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, target)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	addr, err := netip.ParseAddrPort(conn.LocalAddr().String())
	if err != nil {
		return "", err
	}
	return addr.Addr().Unmap().String(), nil
}
