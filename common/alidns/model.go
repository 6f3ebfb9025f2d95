package alidns

import (
	"errors"
	"fmt"

	"github.com/bitly/go-simplejson"
)

// ErrRecordNotFound is returned when no existing record matches a binding.
// Records are never created.
var ErrRecordNotFound = errors.New("record not found")

// DescribeDomainRecordsResponse is the DescribeDomainRecords result.
type DescribeDomainRecordsResponse struct {
	TotalCount    int64  `json:"TotalCount"`
	PageSize      int64  `json:"PageSize"`
	PageNumber    int64  `json:"PageNumber"`
	RequestID     string `json:"RequestId"`
	DomainRecords struct {
		Record []Record `json:"Record"`
	} `json:"DomainRecords"`
}

// Record is one resolution record as returned by the provider.
type Record struct {
	RecordID        string `json:"RecordId"`
	RR              string `json:"RR"`
	Type            string `json:"Type"`
	Value           string `json:"Value"`
	DomainName      string `json:"DomainName"`
	Status          string `json:"Status"`
	Line            string `json:"Line"`
	TTL             int64  `json:"TTL"`
	Priority        int64  `json:"Priority,omitempty"`
	Weight          int32  `json:"Weight"`
	Locked          bool   `json:"Locked"`
	Remark          string `json:"Remark,omitempty"`
	CreateTimestamp int64  `json:"CreateTimestamp"`
	UpdateTimestamp int64  `json:"UpdateTimestamp"`
}

type UpdateDomainRecordResponse struct {
	RequestID string `json:"RequestId"`
	RecordID  string `json:"RecordId"`
}

// ApiError carries a failed provider call. Body is the raw response text.
type ApiError struct {
	Action     string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Body       string
}

func (e *ApiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] status %d, %s: %s (RequestId: %s)", e.Action, e.StatusCode, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("[%s] status %d: %s", e.Action, e.StatusCode, e.Body)
}

func newApiError(action string, status int, body []byte) *ApiError {
	e := &ApiError{Action: action, StatusCode: status, Body: string(body)}
	if j, err := simplejson.NewJson(body); err == nil {
		e.Code = j.Get("Code").MustString()
		e.Message = j.Get("Message").MustString()
		e.RequestID = j.Get("RequestId").MustString()
	}
	return e
}
