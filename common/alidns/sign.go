package alidns

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	Algorithm = "ACS3-HMAC-SHA256"

	// EmptyPayloadHash is the hex SHA-256 of an empty body.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	headerPrefix  = "x-acs-"
	nonceLength   = 32
	nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Request is the part of an HTTP request covered by the signature.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// SigningError reports a request that cannot be signed.
type SigningError struct {
	Header string
	Reason string
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign request: header %q %s", e.Header, e.Reason)
}

type Signer struct {
	accessKeyID     string
	accessKeySecret string
	version         string
	host            string

	now   func() time.Time
	nonce func() (string, error)
}

func NewSigner(accessKeyID, accessKeySecret, version, host string) *Signer {
	return &Signer{
		accessKeyID:     accessKeyID,
		accessKeySecret: accessKeySecret,
		version:         version,
		host:            host,
		now:             time.Now,
		nonce:           randomNonce,
	}
}

// Sign adds the companion headers and the Authorization header to r. A fresh
// nonce and timestamp are generated on every call.
func (s *Signer) Sign(r *Request) error {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	nonce, err := s.nonce()
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	payloadHash := HashPayload(r.Body)
	r.Header.Set("x-acs-version", s.version)
	r.Header.Set("x-acs-signature-nonce", nonce)
	r.Header.Set("x-acs-date", s.now().UTC().Format("2006-01-02T15:04:05Z"))
	r.Header.Set("host", s.host)
	r.Header.Set("x-acs-content-sha256", payloadHash)
	r.Header.Del("Authorization")

	canonicalHeaders, signedHeaders, err := CanonicalHeaders(r.Header)
	if err != nil {
		return err
	}

	canonicalRequest := strings.Join([]string{
		r.Method,
		r.Path,
		CanonicalQueryString(r.Query),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	stringToSign := StringToSign(canonicalRequest)
	log.Debugf("[alidns] CanonicalRequest:\n%s\n-END-", canonicalRequest)
	log.Debugf("[alidns] StringToSign:\n%s\n-END-", stringToSign)

	r.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s,SignedHeaders=%s,Signature=%s",
		Algorithm, s.accessKeyID, signedHeaders, Signature(stringToSign, s.accessKeySecret)))

	return nil
}

// PercentEncode encodes every byte outside the RFC 3986 unreserved set as
// %XX with uppercase hex.
func PercentEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// CanonicalQueryString sorts parameters by key, then by value, and joins the
// encoded pairs with '&'.
func CanonicalQueryString(q url.Values) string {
	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range q {
		if len(vs) == 0 {
			pairs = append(pairs, pair{k, ""})
		}
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k == pairs[j].k {
			return pairs[i].v < pairs[j].v
		}
		return pairs[i].k < pairs[j].k
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = PercentEncode(p.k) + "=" + PercentEncode(p.v)
	}
	return strings.Join(parts, "&")
}

// CanonicalHeaders returns the canonical header block and the signed header
// list. Only x-acs-*, host and content-type take part in the signature.
func CanonicalHeaders(h http.Header) (canonical string, signed string, err error) {
	values := make(map[string]string)
	var names []string
	for k, vs := range h {
		name := strings.ToLower(k)
		if !strings.HasPrefix(name, headerPrefix) && name != "host" && name != "content-type" {
			continue
		}
		v := strings.Join(vs, ",")
		if err := checkHeaderValue(v); err != nil {
			return "", "", &SigningError{Header: name, Reason: err.Error()}
		}
		if _, ok := values[name]; !ok {
			names = append(names, name)
		}
		values[name] = v
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";"), nil
}

func checkHeaderValue(v string) error {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return fmt.Errorf("contains non-printable byte 0x%02x at %d", c, i)
		}
	}
	return nil
}

// HashPayload returns the lowercase hex SHA-256 of body.
func HashPayload(body []byte) string {
	if len(body) == 0 {
		return EmptyPayloadHash
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func StringToSign(canonicalRequest string) string {
	sum := sha256.Sum256([]byte(canonicalRequest))
	return Algorithm + "\n" + hex.EncodeToString(sum[:])
}

func Signature(stringToSign, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	return hex.EncodeToString(mac.Sum(nil))
}

func randomNonce() (string, error) {
	limit := big.NewInt(int64(len(nonceAlphabet)))
	b := make([]byte, nonceLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = nonceAlphabet[n.Int64()]
	}
	return string(b), nil
}
