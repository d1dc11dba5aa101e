// Package otp implements the time-based one-time-password login gate:
// Base32 secret codec, RFC 4226 HOTP derivation, and a clock-drift-tolerant
// verifier with constant-time code comparison.
//
// The codec deliberately does not use encoding/base32: provisioned secrets
// arrive hand-typed (lowercase, stray spaces, optional '=' padding), and the
// stdlib decoder rejects exactly the inputs we need to accept. Decoding here
// is the normalizing variant: strip padding and whitespace, uppercase, then
// pack 5-bit symbols MSB-first.
package otp

import (
	"errors"
	"strings"
)

// ErrInvalidSecretEncoding is returned when a shared secret contains a
// character outside the Base32 alphabet after normalization.
var ErrInvalidSecretEncoding = errors.New("invalid base32 secret encoding")

// base32Alphabet is the RFC 4648 alphabet: A-Z then 2-7, 5 bits per symbol.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// DecodeSecret decodes a provisioned Base32 shared secret into raw key bytes.
//
// Normalization: '=' padding and all whitespace are stripped and the input is
// uppercased before decoding. Any remaining character outside the alphabet
// yields ErrInvalidSecretEncoding. The output length is floor(n*5/8) bytes
// for n accepted symbols; trailing bits that do not fill a byte are dropped.
func DecodeSecret(text string) ([]byte, error) {
	cleaned := normalizeSecret(text)

	out := make([]byte, 0, len(cleaned)*5/8)
	var buf uint32 // bit accumulator, high bits first
	var bits uint
	for _, ch := range []byte(cleaned) {
		v := strings.IndexByte(base32Alphabet, ch)
		if v < 0 {
			return nil, ErrInvalidSecretEncoding
		}
		buf = buf<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
		}
	}
	return out, nil
}

// EncodeSecret is the inverse of DecodeSecret, used by provisioning tooling
// and round-trip tests. It emits unpadded uppercase Base32.
func EncodeSecret(key []byte) string {
	var b strings.Builder
	b.Grow((len(key)*8 + 4) / 5)

	var buf uint32
	var bits uint
	for _, by := range key {
		buf = buf<<8 | uint32(by)
		bits += 8
		for bits >= 5 {
			bits -= 5
			b.WriteByte(base32Alphabet[buf>>bits&0x1f])
		}
	}
	if bits > 0 {
		b.WriteByte(base32Alphabet[buf<<(5-bits)&0x1f])
	}
	return b.String()
}

// EncodeCounter renders a time-step counter as the big-endian 8-byte block
// HMAC'd by HOTP.
func EncodeCounter(n uint64) [8]byte {
	var out [8]byte
	for i := 7; i >= 0; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out
}

// normalizeSecret strips padding and whitespace and uppercases the input.
func normalizeSecret(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '=', r == ' ', r == '\t', r == '\n', r == '\r':
			continue
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
