package alidns

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultEndpoint = "alidns.cn-shanghai.aliyuncs.com"
	APIVersion      = "2015-01-09"
)

type Client struct {
	domain string
	signer *Signer
	client *resty.Client
}

type Option func(*Client)

// WithBaseURL sends requests to u while still signing for the configured
// endpoint host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.client.SetBaseURL(u)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.SetTimeout(d)
	}
}

// New creates a client updating records of domain.
func New(domain, accessKeyID, accessKeySecret, endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		domain: domain,
		signer: NewSigner(accessKeyID, accessKeySecret, APIVersion, endpoint),
		client: resty.New().SetBaseURL("https://" + endpoint).SetTimeout(10 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRecords returns the records of the domain whose RR contains hostname.
func (c *Client) ListRecords(ctx context.Context, hostname string) ([]Record, error) {
	query := url.Values{}
	query.Set("DomainName", c.domain)
	query.Set("RRKeyWord", hostname)

	var resp DescribeDomainRecordsResponse
	if err := c.do(ctx, "DescribeDomainRecords", query, &resp); err != nil {
		return nil, err
	}
	return resp.DomainRecords.Record, nil
}

// UpdateRecord points the existing record hostname/recordType at value.
func (c *Client) UpdateRecord(ctx context.Context, hostname, recordType, value string) error {
	records, err := c.ListRecords(ctx, hostname)
	if err != nil {
		return err
	}

	var target *Record
	for i := range records {
		if records[i].RR == hostname && records[i].Type == recordType {
			target = &records[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: no %s record for %s.%s", ErrRecordNotFound, recordType, hostname, c.domain)
	}

	query := url.Values{}
	query.Set("RecordId", target.RecordID)
	query.Set("RR", hostname)
	query.Set("Type", recordType)
	query.Set("Value", value)

	var resp UpdateDomainRecordResponse
	if err := c.do(ctx, "UpdateDomainRecord", query, &resp); err != nil {
		return err
	}
	log.Debugf("[alidns] record %s updated (RequestId: %s)", resp.RecordID, resp.RequestID)

	return nil
}

func (c *Client) do(ctx context.Context, action string, query url.Values, result any) error {
	req := &Request{
		Method: http.MethodGet,
		Path:   "/",
		Query:  query,
		Header: http.Header{},
	}
	req.Header.Set("x-acs-action", action)
	if err := c.signer.Sign(req); err != nil {
		return err
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(req.Path + "?" + CanonicalQueryString(query))
	if err != nil {
		return fmt.Errorf("[%s] %w", action, err)
	}

	body := resp.Body()
	log.Debugf("[alidns] %s response: %s", action, body)
	if resp.IsError() {
		return newApiError(action, resp.StatusCode(), body)
	}
	if err := json.Unmarshal(body, result); err != nil {
		e := newApiError(action, resp.StatusCode(), body)
		e.Message = err.Error()
		return e
	}

	return nil
}
