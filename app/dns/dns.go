package dns

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
)

var recordType = map[string]uint16{
	"A":    dns.TypeA,
	"AAAA": dns.TypeAAAA,
}

// Client looks up what a nameserver currently publishes for a name.
type Client struct {
	nameserver string
	client     *dns.Client
}

func New(nameserver string, timeout time.Duration) *Client {
	return &Client{
		nameserver: nameserver,
		client:     &dns.Client{Timeout: timeout},
	}
}

func (c *Client) LookupIP(ctx context.Context, name string, rrType string) ([]string, error) {
	qtype, ok := recordType[rrType]
	if !ok {
		return nil, fmt.Errorf("unsupported record type %q", rrType)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	in, _, err := c.client.ExchangeContext(ctx, m, c.nameserver)
	if err != nil {
		return nil, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("[%s] %s", name, dns.RcodeToString[in.Rcode])
	}

	var ips []string
	for _, rr := range in.Answer {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A.String())
		case *dns.AAAA:
			ips = append(ips, v.AAAA.String())
		}
	}
	log.Debugf("[dns] %s %s -> %v", name, rrType, ips)

	return ips, nil
}
