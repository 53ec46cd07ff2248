package onshape

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/partforge/partforge/pkg/apperr"
)

// Credentials holds the platform API key pair. Never logged or serialized.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Signer produces the authentication headers the platform verifies. A
// single instance is safe for concurrent use.
type Signer struct {
	creds Credentials
	nonce func() (string, error)
	now   func() time.Time
}

// NewSigner validates the credentials and returns a Signer. Missing keys
// fail here, before any request can be built.
func NewSigner(creds Credentials) (*Signer, error) {
	if strings.TrimSpace(creds.AccessKey) == "" {
		return nil, apperr.New(apperr.KindConfiguration, "onshape access key is required")
	}
	if strings.TrimSpace(creds.SecretKey) == "" {
		return nil, apperr.New(apperr.KindConfiguration, "onshape secret key is required")
	}
	return &Signer{creds: creds, nonce: generateNonce, now: time.Now}, nil
}

const (
	nonceLength  = 25
	nonceCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

func generateNonce() (string, error) {
	buf := make([]byte, nonceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	for i, b := range buf {
		buf[i] = nonceCharset[int(b)%len(nonceCharset)]
	}
	return string(buf), nil
}

// Sign builds the canonical string for one request and returns the headers
// the platform authenticates: Authorization, Date, On-Nonce and
// Content-Type.
//
// The canonical string joins, newline separated and newline terminated:
// method, nonce, date, content type, lower-cased path, lower-cased query,
// and a base64 SHA-256 digest of the body (empty string for an empty
// body). The signature is base64(HMAC-SHA256(secretKey, canonical)). A
// fresh nonce and date are generated on every call, so two requests with
// identical content never share a signature.
func (s *Signer) Sign(method, path, query, contentType string, body []byte) (http.Header, error) {
	if s.creds.SecretKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "signer has no credentials")
	}
	nonce, err := s.nonce()
	if err != nil {
		return nil, err
	}
	date := s.now().UTC().Format(http.TimeFormat)

	canonical := canonicalString(method, nonce, date, contentType, path, query, body)
	mac := hmac.New(sha256.New, []byte(s.creds.SecretKey))
	mac.Write([]byte(canonical))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("Authorization", fmt.Sprintf("On %s:HmacSHA256:%s", s.creds.AccessKey, signature))
	headers.Set("Date", date)
	headers.Set("On-Nonce", nonce)
	headers.Set("Content-Type", contentType)
	return headers, nil
}

func canonicalString(method, nonce, date, contentType, path, query string, body []byte) string {
	digest := ""
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		digest = base64.StdEncoding.EncodeToString(sum[:])
	}
	return strings.Join([]string{
		method,
		nonce,
		date,
		contentType,
		strings.ToLower(path),
		strings.ToLower(query),
		digest,
	}, "\n") + "\n"
}
