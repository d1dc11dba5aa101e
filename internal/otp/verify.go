package otp

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/rs/zerolog/log"
)

// StepSeconds is the width of one TOTP time step.
const StepSeconds = 30

// Verifier checks submitted one-time codes against the current time step
// with a tolerance of one step in either direction (clock drift plus typing
// delay, roughly 90 seconds of validity per code).
//
// The zero value is not usable; construct with NewVerifier. Now is injectable
// for tests and defaults to time.Now.
type Verifier struct {
	Now func() time.Time
}

// NewVerifier returns a Verifier using the real clock.
func NewVerifier() *Verifier {
	return &Verifier{Now: time.Now}
}

// Sanitize strips all whitespace from a submitted code and reports whether
// the remainder is exactly six ASCII decimal digits. Rejected input never
// reaches any cryptographic work.
func Sanitize(raw string) (string, bool) {
	buf := make([]byte, 0, Digits)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			continue
		case c >= '0' && c <= '9':
			if len(buf) == Digits {
				return "", false
			}
			buf = append(buf, c)
		default:
			return "", false
		}
	}
	if len(buf) != Digits {
		return "", false
	}
	return string(buf), true
}

// constantTimeEqual compares two code strings without leaking the position
// of the first differing byte. Both operands are hashed to fixed-length
// digests first, then compared with subtle.ConstantTimeCompare (byte-wise
// XOR accumulation, no early exit), so neither length nor content shapes
// the comparison time.
func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// Verify reports whether rawCode is the valid one-time code for secretText
// at the current step or one step to either side.
//
// Malformed input returns false before any crypto work. An undecodable
// secret also returns false but is logged as a configuration error: the
// caller-visible outcome must not distinguish "wrong code" from "server
// misconfigured", the operator-visible log must.
func (v *Verifier) Verify(secretText, rawCode string) bool {
	code, ok := Sanitize(rawCode)
	if !ok {
		return false
	}

	key, err := DecodeSecret(secretText)
	if err != nil {
		log.Error().Err(err).Msg("otp: shared secret is not valid base32; check provisioning")
		return false
	}

	step := uint64(v.Now().UnixMilli() / (StepSeconds * 1000))
	// The three windowed attempts are not themselves constant-time across
	// attempts; only each individual comparison is. The attempt count is
	// fixed at three regardless of outcome, checked in window order.
	for _, delta := range []int64{-1, 0, 1} {
		candidate := HOTP(key, uint64(int64(step)+delta))
		if constantTimeEqual(candidate, code) {
			return true
		}
	}
	return false
}
