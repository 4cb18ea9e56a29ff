package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken is returned for malformed, forged or expired owner tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenSigner issues and verifies owner bearer tokens of the form
// "<owner_id>.<expires_unix>.<signature>".
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner creates a signer. An empty secret is rejected.
func NewTokenSigner(secret string) (*TokenSigner, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenSigner{secret: []byte(secret), now: time.Now}, nil
}

// Issue returns a token for ownerID valid for ttl.
func (ts *TokenSigner) Issue(ownerID int64, ttl time.Duration) string {
	payload := fmt.Sprintf("%d.%d", ownerID, ts.now().Add(ttl).Unix())
	return payload + "." + ts.signData(payload)
}

// Verify checks the signature and expiry and returns the owner id.
func (ts *TokenSigner) Verify(token string) (int64, error) {
	idx := strings.LastIndex(token, ".")
	if idx < 0 {
		return 0, ErrInvalidToken
	}
	payload, signature := token[:idx], token[idx+1:]
	if !ts.verifySignature(payload, signature) {
		return 0, ErrInvalidToken
	}

	ownerPart, expiresPart, ok := strings.Cut(payload, ".")
	if !ok {
		return 0, ErrInvalidToken
	}
	ownerID, err := strconv.ParseInt(ownerPart, 10, 64)
	if err != nil || ownerID <= 0 {
		return 0, ErrInvalidToken
	}
	expires, err := strconv.ParseInt(expiresPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if !ts.now().Before(time.Unix(expires, 0)) {
		return 0, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return ownerID, nil
}

// signData creates an HMAC signature for data
func (ts *TokenSigner) signData(data string) string {
	h := hmac.New(sha256.New, ts.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (ts *TokenSigner) verifySignature(data, signature string) bool {
	expected := ts.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
