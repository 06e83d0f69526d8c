package blobstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrCapabilityExpired is returned when an upload capability's window
	// has passed.
	ErrCapabilityExpired = errors.New("upload capability expired")

	// ErrCapabilityInvalid is returned when the signature does not match
	// the key, content type, and expiry it claims to cover.
	ErrCapabilityInvalid = errors.New("upload capability signature mismatch")
)

// Capability is a time-limited, single-object-scoped permission to write
// one object. The signature covers the key, the declared content type, and
// the expiry, so none of them can be swapped after minting.
type Capability struct {
	Key         string    `json:"key"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CapabilityMinter mints and verifies upload capabilities with an HMAC
// signing secret shared by nothing outside this process.
type CapabilityMinter struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

// NewCapabilityMinter creates a minter. baseURL is the externally reachable
// prefix of the api-service, e.g. "http://localhost:8080".
func NewCapabilityMinter(secret, baseURL string, ttl time.Duration) *CapabilityMinter {
	return &CapabilityMinter{
		secret:  []byte(secret),
		baseURL: baseURL,
		ttl:     ttl,
	}
}

// Mint issues a capability for exactly one object key.
func (m *CapabilityMinter) Mint(key, contentType string, now time.Time) Capability {
	expiresAt := now.Add(m.ttl)
	sig := m.sign(key, contentType, expiresAt.Unix())

	u := fmt.Sprintf("%s/api/v1/objects/%s?expires=%d&signature=%s",
		m.baseURL,
		escapeKeyPath(key),
		expiresAt.Unix(),
		sig,
	)

	return Capability{
		Key:         key,
		Method:      "PUT",
		URL:         u,
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}
}

// Verify checks a presented capability against the key and content type of
// an incoming write. expires is the unix timestamp from the request.
func (m *CapabilityMinter) Verify(key, contentType, expiresRaw, signature string, now time.Time) error {
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry %q", ErrCapabilityInvalid, expiresRaw)
	}

	expected := m.sign(key, contentType, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrCapabilityInvalid
	}

	// Expiry is checked after the signature so a tampered expiry can never
	// extend a capability.
	if now.After(time.Unix(expires, 0)) {
		return ErrCapabilityExpired
	}

	return nil
}

// escapeKeyPath escapes each key segment but keeps the slashes literal so
// the router can match the key as a path.
func escapeKeyPath(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (m *CapabilityMinter) sign(key, contentType string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", key, contentType, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}
