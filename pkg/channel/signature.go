package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Webhook signature headers.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

var ErrInvalidSignature = errors.New("channel: invalid webhook signature")

// Signature is what a receiver needs to authenticate a webhook delivery.
type Signature struct {
	Value     string
	Timestamp int64
	ID        string
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderID, s.ID)
}

// Sign computes hex(HMAC-SHA256(secret, "<unix ts>.<payload>")).
func Sign(secret string, id string, payload []byte, at time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, fmt.Errorf("%w: webhook secret is required", ErrInvalidConfig)
	}
	ts := at.Unix()
	return Signature{Value: mac(secret, ts, payload), Timestamp: ts, ID: id}, nil
}

// VerifySignature authenticates a received webhook. A positive maxAge rejects
// signatures older than maxAge or more than a minute in the future.
func VerifySignature(secret string, payload []byte, h http.Header, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: webhook secret is required", ErrInvalidConfig)
	}
	sig := h.Get(HeaderSignature)
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if sig == "" || err != nil {
		return fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	if maxAge > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > maxAge || age < -time.Minute {
			return fmt.Errorf("%w: timestamp outside allowed window", ErrInvalidSignature)
		}
	}
	if !hmac.Equal([]byte(mac(secret, ts, payload)), []byte(sig)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

func mac(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
