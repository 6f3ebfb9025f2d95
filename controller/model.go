package controller

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Septrum101/aliddns/app/record"
	"github.com/Septrum101/aliddns/common/alidns"
	"github.com/Septrum101/aliddns/common/notify"
)

// Prober returns the current addresses keyed by interface name.
type Prober interface {
	Probe(ctx context.Context) (map[string]record.AddressSet, error)
}

// Provider lists and updates existing DNS records.
type Provider interface {
	ListRecords(ctx context.Context, hostname string) ([]alidns.Record, error)
	UpdateRecord(ctx context.Context, hostname, recordType, value string) error
}

type Service struct {
	domain          string
	checkInterval   time.Duration
	enableRecheck   bool
	recheckInterval time.Duration

	// bindings grouped by interface key
	bindings map[string][]*binding
	prober   Prober
	provider Provider
	store    *record.Store
	notifier notify.Notify
	worker   *ants.Pool

	// keys whose change has already been debounced once in the current episode
	pending map[string]bool
	now     func() time.Time
}

type binding struct {
	nic          string
	recordType   string
	hostname     string
	useTemporary bool
}

type updateResult struct {
	success  int
	failed   int
	notFound int
	skipped  int
}
