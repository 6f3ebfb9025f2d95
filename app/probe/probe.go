package probe

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Septrum101/aliddns/app/record"
)

// DefaultKey is the interface key used for the outbound socket result.
const DefaultKey = ""

// ErrProbe is returned when either acquisition strategy produced nothing.
var ErrProbe = errors.New("address probe failed")

// Prober discovers the local addresses keyed by interface name.
type Prober struct {
	socket func(ctx context.Context) (record.AddressSet, error)
	nics   func() (map[string]record.AddressSet, error)
}

func New() *Prober {
	return &Prober{
		socket: viaSocket,
		nics:   viaInterfaces,
	}
}

// Probe runs both strategies and merges them. The socket result is stored
// under DefaultKey. A failure of either strategy fails the whole probe.
func (p *Prober) Probe(ctx context.Context) (map[string]record.AddressSet, error) {
	var (
		def  record.AddressSet
		nics map[string]record.AddressSet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		def, err = p.socket(gctx)
		if err == nil && def.IsEmpty() {
			err = errors.New("socket: no outbound address")
		}
		return err
	})
	g.Go(func() (err error) {
		nics, err = p.nics()
		if err == nil && len(nics) == 0 {
			err = errors.New("interfaces: no usable address")
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProbe, err)
	}

	ips := make(map[string]record.AddressSet, len(nics)+1)
	for k, v := range nics {
		ips[k] = v
	}
	ips[DefaultKey] = def
	log.Tracef("[probe] %+v", ips)

	return ips, nil
}
