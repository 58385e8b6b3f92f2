package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// ResumptionContext is the minimal state a paused saga needs to finish
// identity reconciliation later. It is held by the caller, not the store,
// and is only trusted because it is signed.
type ResumptionContext struct {
	Email           string          `json:"email"`
	OrgID           uuid.UUID       `json:"orgId"`
	SubscriptionID  string          `json:"subscriptionId"`
	PackageID       string          `json:"packageId"`
	BillingInterval BillingInterval `json:"billingInterval"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ResumeTokenCodec encodes a ResumptionContext as a compact signed token:
// base64url(JSON) + "." + base64url(HMAC-SHA256). The TTL bounds how long a
// paused saga stays resumable.
type ResumeTokenCodec struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewResumeTokenCodec constructs a codec. A non-positive ttl falls back to
// one hour.
func NewResumeTokenCodec(secret []byte, ttl time.Duration, clk clock.Clock) (*ResumeTokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("resume token secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clk == nil {
		clk = clock.New()
	}
	return &ResumeTokenCodec{secret: secret, ttl: ttl, clock: clk}, nil
}

// Encode serializes and signs the context.
func (c *ResumeTokenCodec) Encode(rc ResumptionContext) (string, error) {
	payload, err := json.Marshal(rc)
	if err != nil {
		return "", fmt.Errorf("marshal resumption context: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + c.sign(encoded), nil
}

// Decode verifies the signature and TTL, returning ErrInvalidResumeToken on
// a malformed or tampered token and ErrSessionExpired when the validity
// window has passed.
func (c *ResumeTokenCodec) Decode(token string) (ResumptionContext, error) {
	encoded, signature, found := strings.Cut(token, ".")
	if !found || encoded == "" {
		return ResumptionContext{}, ErrInvalidResumeToken
	}

	if !hmac.Equal([]byte(c.sign(encoded)), []byte(signature)) {
		return ResumptionContext{}, fmt.Errorf("signature mismatch: %w", ErrInvalidResumeToken)
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ResumptionContext{}, fmt.Errorf("decode payload: %w", ErrInvalidResumeToken)
	}

	var rc ResumptionContext
	if err := json.Unmarshal(payload, &rc); err != nil {
		return ResumptionContext{}, fmt.Errorf("unmarshal payload: %w", ErrInvalidResumeToken)
	}

	if c.clock.Now().Sub(rc.CreatedAt) > c.ttl {
		return ResumptionContext{}, fmt.Errorf("token issued at %s: %w", rc.CreatedAt.Format(time.RFC3339), ErrSessionExpired)
	}

	return rc, nil
}

func (c *ResumeTokenCodec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
