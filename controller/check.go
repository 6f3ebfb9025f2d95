package controller

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Septrum101/aliddns/helper"
)

// Resolver reports what DNS currently publishes for a name.
type Resolver interface {
	LookupIP(ctx context.Context, name string, rrType string) ([]string, error)
}

// Check probes once and writes, for every binding, the local address, the
// provider record and the published answer. It changes nothing.
func (s *Service) Check(ctx context.Context, resolver Resolver, w io.Writer) error {
	ips, err := s.prober.Probe(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(s.bindings))
	for k := range s.bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	drift := 0
	for _, k := range keys {
		for _, b := range s.bindings[k] {
			fqdn := helper.FQDN(b.hostname, s.domain)
			local, ok := b.address(ips[k])
			if !ok {
				local = "-"
			}

			remote := "-"
			records, err := s.provider.ListRecords(ctx, b.hostname)
			if err != nil {
				remote = "error: " + err.Error()
			}
			for _, r := range records {
				if r.RR == b.hostname && r.Type == b.recordType {
					remote = r.Value
					break
				}
			}

			published := "-"
			if resolver != nil {
				if v, err := resolver.LookupIP(ctx, fqdn, b.recordType); err != nil {
					published = "error: " + err.Error()
				} else if len(v) > 0 {
					published = strings.Join(v, ",")
				}
			}

			state := "ok"
			if local != remote {
				state = "drift"
				drift++
			}
			fmt.Fprintf(w, "%-30s %-4s nic=%-14q local=%-39s record=%-39s dns=%s [%s]\n",
				fqdn, b.recordType, b.nic, local, remote, published, state)
		}
	}
	fmt.Fprintf(w, "%d binding(s) out of sync\n", drift)

	return nil
}
