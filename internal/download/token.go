package download

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mystorykid/internal/domain"
)

// Token format, version 1: base64url("v1:<downloadID>:<expiresUnixMilli>:<nonce>").
// The version field leads so the layout can evolve without breaking tokens
// already delivered by email.
const tokenVersion = "v1"

const nonceBytes = 9

// ErrTokenMalformed indicates the token could not be decoded into the
// versioned three-field layout.
var ErrTokenMalformed = errors.New("download: malformed token")

// TokenClaims are the fields carried inside an access token.
type TokenClaims struct {
	DownloadID string
	ExpiresAt  time.Time
	Nonce      string
}

// MintToken issues a bearer token for the given grant, valid for the given
// delivery window. Minting never touches the grant store.
func MintToken(downloadID string, window time.Duration, now time.Time) (string, error) {
	downloadID = strings.TrimSpace(downloadID)
	if downloadID == "" || strings.Contains(downloadID, ":") {
		return "", fmt.Errorf("%w: download id", domain.ErrInvalidArgument)
	}
	if window <= 0 {
		return "", fmt.Errorf("%w: token window", domain.ErrInvalidArgument)
	}
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("download: generate nonce: %w", err)
	}
	expires := now.Add(window).UnixMilli()
	raw := strings.Join([]string{
		tokenVersion,
		downloadID,
		strconv.FormatInt(expires, 10),
		hex.EncodeToString(nonce),
	}, ":")
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// DecodeToken reverses MintToken. It performs no expiry or grant checks.
func DecodeToken(token string) (TokenClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return TokenClaims{}, ErrTokenMalformed
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 || parts[0] != tokenVersion {
		return TokenClaims{}, ErrTokenMalformed
	}
	downloadID, expiresRaw, nonce := parts[1], parts[2], parts[3]
	if downloadID == "" || nonce == "" {
		return TokenClaims{}, ErrTokenMalformed
	}
	millis, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return TokenClaims{}, ErrTokenMalformed
	}
	return TokenClaims{
		DownloadID: downloadID,
		ExpiresAt:  time.UnixMilli(millis).UTC(),
		Nonce:      nonce,
	}, nil
}
