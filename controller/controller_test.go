package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Septrum101/aliddns/app/record"
	"github.com/Septrum101/aliddns/common/alidns"
	"github.com/Septrum101/aliddns/config"
)

type fakeProber struct {
	results []map[string]record.AddressSet
	calls   int
}

func (p *fakeProber) Probe(context.Context) (map[string]record.AddressSet, error) {
	if p.calls >= len(p.results) {
		return p.results[len(p.results)-1], nil
	}
	r := p.results[p.calls]
	p.calls++
	if r == nil {
		return nil, errors.New("probe failed")
	}
	return r, nil
}

type updateCall struct {
	hostname, recordType, value string
}

type fakeProvider struct {
	sync.Mutex
	calls   []updateCall
	errs    map[string]error
	records []alidns.Record
}

func (f *fakeProvider) ListRecords(context.Context, string) ([]alidns.Record, error) {
	return f.records, nil
}

func (f *fakeProvider) UpdateRecord(_ context.Context, hostname, recordType, value string) error {
	f.Lock()
	defer f.Unlock()
	f.calls = append(f.calls, updateCall{hostname, recordType, value})
	return f.errs[hostname]
}

type fakeNotify struct {
	content []string
}

func (n *fakeNotify) Webhook(_ string, content string) error {
	n.content = append(n.content, content)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func testConfig(recheck bool, records ...*config.Record) *config.Config {
	return &config.Config{
		DomainName: "example.com",
		Concurrent: 2,
		Interval: &config.Interval{
			CheckInterval:   600,
			EnableRecheck:   recheck,
			RecheckInterval: 3,
		},
		Records: records,
	}
}

func newTestService(t *testing.T, c *config.Config, seed map[string]record.AddressSet, probes ...map[string]record.AddressSet) (*Service, *fakeProvider, *record.Store) {
	store, err := record.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if seed != nil {
		if err := store.Save(record.Record{LastIP: seed, LastCheck: 100, LastUpdate: 50}); err != nil {
			t.Fatal(err)
		}
	}

	provider := &fakeProvider{errs: map[string]error{}}
	s, err := newService(c, store, &fakeProber{results: probes}, provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	clk := &clock{t: time.Unix(1700000000, 0)}
	s.now = clk.now

	return s, provider, store
}

func wwwA() *config.Record {
	return &config.Record{NicName: "eth0", RecordType: "A", Hostname: "www"}
}

func v4(ip string) map[string]record.AddressSet {
	return map[string]record.AddressSet{"eth0": {V4: ip}}
}

func runTask(t *testing.T, s *Service) time.Duration {
	t.Helper()
	d, err := s.task(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestUnchangedProbeNeverUpdates(t *testing.T) {
	s, provider, store := newTestService(t, testConfig(true, wwwA()), v4("1.1.1.1"), v4("1.1.1.1"))

	var lastCheck int64
	for i := 0; i < 5; i++ {
		if d := runTask(t, s); d != 600*time.Second {
			t.Errorf("cycle %d waits %s", i, d)
		}
		rec := store.Load()
		if rec.LastCheck <= lastCheck {
			t.Errorf("cycle %d: last_check not advanced (%d)", i, rec.LastCheck)
		}
		lastCheck = rec.LastCheck
		if rec.LastUpdate != 50 {
			t.Errorf("cycle %d: last_update changed to %d", i, rec.LastUpdate)
		}
	}
	if len(provider.calls) != 0 {
		t.Errorf("unexpected provider calls %+v", provider.calls)
	}
}

func TestChangeUpdatesBinding(t *testing.T) {
	s, provider, store := newTestService(t, testConfig(false, wwwA()), v4("1.1.1.1"), v4("2.2.2.2"))

	if d := runTask(t, s); d != 600*time.Second {
		t.Errorf("wait %s", d)
	}

	want := []updateCall{{"www", "A", "2.2.2.2"}}
	if fmt.Sprint(provider.calls) != fmt.Sprint(want) {
		t.Errorf("calls %+v, want %+v", provider.calls, want)
	}
	rec := store.Load()
	if rec.LastIP["eth0"].V4 != "2.2.2.2" {
		t.Errorf("last_ip not updated: %+v", rec.LastIP)
	}
	if rec.LastUpdate != rec.LastCheck {
		t.Errorf("last_update %d != last_check %d", rec.LastUpdate, rec.LastCheck)
	}

	// a second run against the same address is a no-op
	runTask(t, s)
	if len(provider.calls) != 1 {
		t.Errorf("repeated update: %+v", provider.calls)
	}
}

func TestRecheckFlapNeverUpdates(t *testing.T) {
	s, provider, store := newTestService(t, testConfig(true, wwwA()), v4("1.1.1.1"),
		v4("2.2.2.2"), v4("1.1.1.1"), v4("2.2.2.2"))

	if d := runTask(t, s); d != 3*time.Second {
		t.Errorf("first detection waits %s, want recheck interval", d)
	}
	if d := runTask(t, s); d != 600*time.Second {
		t.Errorf("flap waits %s, want check interval", d)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("flap reached the provider: %+v", provider.calls)
	}
	if store.Load().LastIP["eth0"].V4 != "1.1.1.1" {
		t.Error("flap was persisted")
	}

	// the next change starts a new episode and is debounced again
	if d := runTask(t, s); d != 3*time.Second || len(provider.calls) != 0 {
		t.Errorf("new episode not debounced: wait %s, calls %+v", d, provider.calls)
	}
}

func TestRecheckConfirmsChange(t *testing.T) {
	s, provider, _ := newTestService(t, testConfig(true, wwwA()), v4("1.1.1.1"),
		v4("2.2.2.2"), v4("2.2.2.2"))

	runTask(t, s)
	if len(provider.calls) != 0 {
		t.Fatal("updated before recheck")
	}
	runTask(t, s)
	if len(provider.calls) != 1 || provider.calls[0].value != "2.2.2.2" {
		t.Errorf("calls %+v", provider.calls)
	}
	if len(s.pending) != 0 {
		t.Errorf("episode flag not reset: %v", s.pending)
	}
}

func TestRecheckNotConsumedTwice(t *testing.T) {
	s, provider, _ := newTestService(t, testConfig(true, wwwA()), v4("1.1.1.1"),
		v4("2.2.2.2"), v4("3.3.3.3"))

	runTask(t, s)
	runTask(t, s)
	if len(provider.calls) != 1 || provider.calls[0].value != "3.3.3.3" {
		t.Errorf("calls %+v", provider.calls)
	}
}

func TestPendingKeyKeepsRecordedValue(t *testing.T) {
	c := testConfig(true, wwwA(), &config.Record{NicName: "eth1", RecordType: "A", Hostname: "lan"})
	seed := map[string]record.AddressSet{"eth0": {V4: "1.1.1.1"}, "eth1": {V4: "10.0.0.1"}}
	s, provider, store := newTestService(t, c, seed,
		map[string]record.AddressSet{"eth0": {V4: "2.2.2.2"}, "eth1": {V4: "10.0.0.1"}},
		map[string]record.AddressSet{"eth0": {V4: "2.2.2.2"}, "eth1": {V4: "10.0.0.2"}},
	)

	runTask(t, s)
	if d := runTask(t, s); d != 3*time.Second {
		t.Errorf("pending eth1 should schedule a recheck, got %s", d)
	}
	if len(provider.calls) != 1 || provider.calls[0].hostname != "www" {
		t.Fatalf("calls %+v", provider.calls)
	}
	if got := store.Load().LastIP["eth1"].V4; got != "10.0.0.1" {
		t.Errorf("unconfirmed eth1 persisted as %s", got)
	}

	runTask(t, s)
	if len(provider.calls) != 2 || provider.calls[1] != (updateCall{"lan", "A", "10.0.0.2"}) {
		t.Errorf("calls %+v", provider.calls)
	}
}

func TestBindingFailuresAreContained(t *testing.T) {
	c := testConfig(false,
		&config.Record{NicName: "eth0", RecordType: "A", Hostname: "missing"},
		&config.Record{NicName: "eth0", RecordType: "A", Hostname: "broken"},
		&config.Record{NicName: "eth0", RecordType: "AAAA", Hostname: "v6"},
		wwwA(),
	)
	s, provider, store := newTestService(t, c, v4("1.1.1.1"), v4("2.2.2.2"))
	provider.errs["missing"] = fmt.Errorf("%w: no A record", alidns.ErrRecordNotFound)
	provider.errs["broken"] = &alidns.ApiError{Action: "UpdateDomainRecord", StatusCode: 500, Body: "oops"}
	n := &fakeNotify{}
	s.notifier = n

	if d := runTask(t, s); d != 600*time.Second {
		t.Errorf("wait %s", d)
	}

	// the AAAA binding has no IPv6 address and is skipped without a call
	if len(provider.calls) != 3 {
		t.Fatalf("calls %+v", provider.calls)
	}
	for _, call := range provider.calls {
		if call.hostname == "v6" {
			t.Error("binding without address reached the provider")
		}
	}
	if rec := store.Load(); rec.LastIP["eth0"].V4 != "2.2.2.2" || rec.LastUpdate != rec.LastCheck {
		t.Errorf("record %+v", rec)
	}
	if len(n.content) != 1 || !strings.Contains(n.content[0], "www.example.com A -> 2.2.2.2") {
		t.Errorf("notification %q", n.content)
	}
}

func TestProbeFailureRetries(t *testing.T) {
	s, provider, store := newTestService(t, testConfig(true, wwwA()), v4("1.1.1.1"), nil, v4("1.1.1.1"))

	if d := runTask(t, s); d != 3*time.Second {
		t.Errorf("probe failure waits %s", d)
	}
	if store.Load().LastCheck != 100 {
		t.Error("failed probe touched last_check")
	}
	runTask(t, s)
	if len(provider.calls) != 0 {
		t.Errorf("calls %+v", provider.calls)
	}
}

func TestBindingAddress(t *testing.T) {
	ip := record.AddressSet{V4: "1.1.1.1", V6: "2001:db8::1", V6Temp: "2001:db8::2"}
	cases := []struct {
		b    binding
		ip   record.AddressSet
		want string
		ok   bool
	}{
		{binding{recordType: "A"}, ip, "1.1.1.1", true},
		{binding{recordType: "AAAA"}, ip, "2001:db8::1", true},
		{binding{recordType: "AAAA", useTemporary: true}, ip, "2001:db8::2", true},
		{binding{recordType: "AAAA", useTemporary: true}, record.AddressSet{V6: "2001:db8::1"}, "2001:db8::1", true},
		{binding{recordType: "AAAA"}, record.AddressSet{V4: "1.1.1.1"}, "", false},
		{binding{recordType: "A"}, record.AddressSet{V6: "2001:db8::1"}, "", false},
	}
	for i, c := range cases {
		got, ok := c.b.address(c.ip)
		if got != c.want || ok != c.ok {
			t.Errorf("%d: address = %q %v, want %q %v", i, got, ok, c.want, c.ok)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := newTestService(t, testConfig(true, wwwA()), v4("1.1.1.1"), v4("1.1.1.1"))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop while sleeping")
	}
}

type fakeResolver map[string][]string

func (r fakeResolver) LookupIP(_ context.Context, name string, _ string) ([]string, error) {
	return r[name], nil
}

func TestCheck(t *testing.T) {
	c := testConfig(true, wwwA(), &config.Record{NicName: "eth0", RecordType: "A", Hostname: "api"})
	s, provider, _ := newTestService(t, c, nil, v4("2.2.2.2"))
	provider.records = []alidns.Record{
		{RR: "www", Type: "A", Value: "2.2.2.2"},
		{RR: "api", Type: "A", Value: "1.1.1.1"},
	}

	var buf bytes.Buffer
	err := s.Check(context.Background(), fakeResolver{"www.example.com": {"2.2.2.2"}}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "1 binding(s) out of sync") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if len(provider.calls) != 0 {
		t.Error("check mode must not update")
	}
}

func TestCheckWithoutStore(t *testing.T) {
	provider := &fakeProvider{records: []alidns.Record{{RR: "www", Type: "A", Value: "1.1.1.1"}}}
	s, err := newService(testConfig(true, wwwA()), nil, &fakeProber{results: []map[string]record.AddressSet{v4("1.1.1.1")}}, provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var buf bytes.Buffer
	if err := s.Check(context.Background(), fakeResolver{"www.example.com": {"1.1.1.1"}}, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "0 binding(s) out of sync") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
