package storage

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

// ErrBadSignature indicates a signed URL that failed verification.
var ErrBadSignature = errors.New("storage: bad signature")

// ErrSignatureExpired indicates a signed URL past its expiry.
var ErrSignatureExpired = errors.New("storage: signature expired")

// URLSigner issues and verifies short-lived signed URLs for stored objects.
// The signature covers the object key and the absolute expiry, so a URL
// cannot be replayed against another object or extended by the holder.
type URLSigner struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewURLSigner creates a signer serving URLs under baseURL.
func NewURLSigner(baseURL, secret string) (*URLSigner, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storage: base url is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("storage: signing secret is required")
	}
	return &URLSigner{baseURL: baseURL, secret: []byte(secret), now: time.Now}, nil
}

// SignedURL returns a URL for the object that verifies until the TTL lapses.
func (s *URLSigner) SignedURL(objectPath string, ttl time.Duration) (string, error) {
	key, err := sanitizeKey(objectPath)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("storage: ttl must be positive")
	}
	expires := s.now().Add(ttl).Unix()
	sig := s.sign(key, expires)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	return fmt.Sprintf("%s/%s?%s", s.baseURL, key, q.Encode()), nil
}

// Verify checks the signature and expiry carried by a signed URL's query
// parameters for the given object key.
func (s *URLSigner) Verify(objectPath, expiresRaw, sig string) error {
	key, err := sanitizeKey(objectPath)
	if err != nil {
		return ErrBadSignature
	}
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	expected := s.sign(key, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	if s.now().Unix() > expires {
		return ErrSignatureExpired
	}
	return nil
}

func (s *URLSigner) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
