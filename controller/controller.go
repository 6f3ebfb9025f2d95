package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"github.com/Septrum101/aliddns/app/probe"
	"github.com/Septrum101/aliddns/app/record"
	"github.com/Septrum101/aliddns/common/alidns"
	"github.com/Septrum101/aliddns/common/notify"
	"github.com/Septrum101/aliddns/config"
	"github.com/Septrum101/aliddns/helper"
)

// New builds the sync service for c, backed by store. store may be nil when
// the service is only used for Check.
func New(c *config.Config, store *record.Store) (*Service, error) {
	domain, err := helper.ToASCII(c.DomainName)
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w", c.DomainName, err)
	}
	notifier, err := notify.New(c.Notify)
	if err != nil {
		return nil, err
	}

	provider := alidns.New(domain, c.Auth.AuthID, c.Auth.AuthToken, c.Endpoint,
		alidns.WithTimeout(time.Second*time.Duration(c.Timeout)))

	return newService(c, store, probe.New(), provider, notifier)
}

func newService(c *config.Config, store *record.Store, prober Prober, provider Provider, notifier notify.Notify) (*Service, error) {
	worker, err := ants.NewPool(max(c.Concurrent, 1))
	if err != nil {
		return nil, err
	}

	return &Service{
		domain:          c.DomainName,
		checkInterval:   time.Second * time.Duration(c.Interval.CheckInterval),
		enableRecheck:   c.Interval.EnableRecheck,
		recheckInterval: time.Second * time.Duration(c.Interval.RecheckInterval),
		bindings:        buildBindings(c.Records),
		prober:          prober,
		provider:        provider,
		store:           store,
		notifier:        notifier,
		worker:          worker,
		pending:         make(map[string]bool),
		now:             time.Now,
	}, nil
}

// Run drives the check loop until ctx is done. It only returns an error when
// the record file can no longer be written.
func (s *Service) Run(ctx context.Context) error {
	defer s.Close()
	log.Warnln(config.AppName, "Started")

	for {
		wait, err := s.task(ctx)
		if err != nil {
			return err
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Infoln(config.AppName, "Closing..")
			return nil
		case <-t.C:
		}
	}
}

// Close releases the update workers.
func (s *Service) Close() {
	s.worker.Release()
}

// task runs one iteration and returns how long to wait before the next one.
func (s *Service) task(ctx context.Context) (time.Duration, error) {
	ips, err := s.prober.Probe(ctx)
	if err != nil {
		probeTotal.WithLabelValues("failed").Inc()
		log.Warnf("%v, retry in %s", err, s.recheckInterval)
		return s.recheckInterval, nil
	}
	probeTotal.WithLabelValues("success").Inc()

	// record check time
	rec := s.store.Load()
	rec.LastCheck = s.now().Unix()
	if err := s.store.Save(rec); err != nil {
		return 0, err
	}
	lastCheckTime.Set(float64(rec.LastCheck))

	changed := rec.Changed(ips)
	sort.Strings(changed)

	// a key that is back to its recorded value ends its episode
	for k := range s.pending {
		if !slices.Contains(changed, k) {
			log.Tracef("[%s] IP change reverted before recheck", displayKey(k))
			delete(s.pending, k)
		}
	}

	if len(changed) == 0 {
		log.Trace("IP not changed")
		return s.checkInterval, nil
	}

	var confirmed, deferred []string
	for _, k := range changed {
		if s.enableRecheck && !s.pending[k] {
			s.pending[k] = true
			deferred = append(deferred, k)
			continue
		}
		confirmed = append(confirmed, k)
	}

	if len(confirmed) == 0 {
		log.Tracef("IP changed on %s, recheck in %s", displayKeys(deferred), s.recheckInterval)
		return s.recheckInterval, nil
	}

	if err := s.update(ctx, rec, ips, confirmed, deferred); err != nil {
		return 0, err
	}
	for _, k := range confirmed {
		delete(s.pending, k)
	}

	if len(deferred) > 0 {
		return s.recheckInterval, nil
	}
	return s.checkInterval, nil
}

// update persists the confirmed addresses first, then pushes them to every
// binding of the confirmed keys. A failing binding never stops its siblings.
func (s *Service) update(ctx context.Context, rec record.Record, ips map[string]record.AddressSet, confirmed, deferred []string) error {
	log.Infof("IP changed on %s, updating DNS records", displayKeys(confirmed))

	lastIP := make(map[string]record.AddressSet, len(ips))
	for k, v := range ips {
		lastIP[k] = v
	}
	// deferred keys keep their recorded value until confirmed
	for _, k := range deferred {
		if old, ok := rec.LastIP[k]; ok {
			lastIP[k] = old
		} else {
			delete(lastIP, k)
		}
	}
	rec.LastIP = lastIP
	rec.LastUpdate = rec.LastCheck
	if err := s.store.Save(rec); err != nil {
		return err
	}
	lastUpdateTime.Set(float64(rec.LastUpdate))

	// provider calls already started are allowed to finish on shutdown
	callCtx := context.WithoutCancel(ctx)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		result  updateResult
		summary []string
	)
	count := func(outcome string, line string) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case "success":
			result.success++
		case "not_found":
			result.notFound++
		case "skipped":
			result.skipped++
		default:
			result.failed++
		}
		if line != "" {
			summary = append(summary, line)
		}
		updateTotal.WithLabelValues(outcome).Inc()
	}

	for _, k := range confirmed {
		for _, b := range s.bindings[k] {
			fqdn := helper.FQDN(b.hostname, s.domain)
			ip, ok := b.address(ips[k])
			if !ok {
				log.Warnf("[%s] No %s address found on %s", fqdn, b.recordType, displayKey(k))
				count("skipped", "")
				continue
			}

			wg.Add(1)
			err := s.worker.Submit(func() {
				defer wg.Done()

				log.Debugf("[%s] Updating %s record to %s", fqdn, b.recordType, ip)
				err := s.provider.UpdateRecord(callCtx, b.hostname, b.recordType, ip)
				switch {
				case err == nil:
					log.Infof("[%s] %s record updated to %s", fqdn, b.recordType, ip)
					count("success", fmt.Sprintf("%s %s -> %s", fqdn, b.recordType, ip))
				case errors.Is(err, alidns.ErrRecordNotFound):
					log.Warnf("[%s] %v, skipped", fqdn, err)
					count("not_found", "")
				default:
					log.Warnf("[%s] Failed to update %s record: %v", fqdn, b.recordType, err)
					count("failed", fmt.Sprintf("%s %s failed", fqdn, b.recordType))
				}
			})
			if err != nil {
				wg.Done()
				log.Errorf("[%s] %v", fqdn, err)
				count("failed", "")
			}
		}
	}
	wg.Wait()

	if result.failed > 0 || result.notFound > 0 {
		log.Warnf("Update complete, Success: %d, Fail: %d, NotFound: %d, Skipped: %d",
			result.success, result.failed, result.notFound, result.skipped)
	} else {
		log.Infof("Update complete, Success: %d, Skipped: %d", result.success, result.skipped)
	}
	s.pushMessage(summary)

	return nil
}

// push message
func (s *Service) pushMessage(summary []string) {
	if s.notifier == nil || len(summary) == 0 {
		return
	}
	sort.Strings(summary)
	if err := s.notifier.Webhook(s.domain, strings.Join(summary, "\n")); err != nil {
		log.Error(err)
	} else {
		log.Infof("[%s] Push message success", s.domain)
	}
}

func displayKey(k string) string {
	if k == probe.DefaultKey {
		return "default route"
	}
	return k
}

func displayKeys(keys []string) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = displayKey(k)
	}
	return strings.Join(names, ", ")
}
