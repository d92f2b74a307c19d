// Package csrf issues and verifies short-lived signed anti-forgery tokens of
// the form base36(unix millis) "." hex(random) "." hex(signature)[:16].
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTTL = time.Hour
	sigLen     = 16
	randomLen  = 16
	// clockSkew tolerates tokens issued by a node whose clock runs slightly ahead.
	clockSkew = 30 * time.Second
)

var (
	ErrMalformed = errors.New("malformed csrf token")
	ErrSignature = errors.New("csrf token signature mismatch")
	ErrExpired   = errors.New("csrf token expired")
	ErrMissing   = errors.New("csrf token missing")
)

var HeaderNames = []string{"X-CSRF-Token", "X-XSRF-Token"}

type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(secret string, ttl time.Duration) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("csrf secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a fresh token and the moment it stops being accepted.
func (t *Tokens) Issue() (string, time.Time, error) {
	raw := make([]byte, randomLen)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("read random: %w", err)
	}
	issued := t.now()
	ts := strconv.FormatInt(issued.UnixMilli(), 36)
	nonce := hex.EncodeToString(raw)
	return ts + "." + nonce + "." + t.sign(ts, nonce), issued.Add(t.ttl), nil
}

// Verify accepts a token whose signature matches and whose age is below the TTL.
func (t *Tokens) Verify(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || len(parts[2]) != sigLen {
		return ErrMalformed
	}
	ms, err := strconv.ParseInt(parts[0], 36, 64)
	if err != nil {
		return ErrMalformed
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return ErrMalformed
	}

	if !hmac.Equal([]byte(parts[2]), []byte(t.sign(parts[0], parts[1]))) {
		return ErrSignature
	}

	age := t.now().Sub(time.UnixMilli(ms))
	if age >= t.ttl || age < -clockSkew {
		return ErrExpired
	}
	return nil
}

func (t *Tokens) sign(ts, nonce string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(ts + "." + nonce))
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}

// FromRequest returns the token carried in the first present header.
func FromRequest(r *http.Request) string {
	for _, h := range HeaderNames {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

// SameOrigin reports whether the request's Origin header names the host it was sent to.
func SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Check applies the request rules: same-origin requests pass, any other
// request must carry a valid token.
func (t *Tokens) Check(r *http.Request) error {
	if SameOrigin(r) {
		return nil
	}
	token := FromRequest(r)
	if token == "" {
		return ErrMissing
	}
	return t.Verify(token)
}
