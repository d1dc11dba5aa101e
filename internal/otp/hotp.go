package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// Digits is the fixed length of generated one-time codes.
const Digits = 6

// HOTP computes the RFC 4226 one-time code for the given key and counter:
// HMAC-SHA1 over the big-endian counter, dynamic truncation via the low
// nibble of the final digest byte, top bit masked off to force a 31-bit
// non-negative value, reduced modulo 10^6 and zero-padded to six digits.
func HOTP(key []byte, counter uint64) string {
	mac := hmac.New(sha1.New, key)
	block := EncodeCounter(counter)
	mac.Write(block[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", Digits, code%1_000_000)
}
