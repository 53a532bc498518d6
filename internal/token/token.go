// Package token implements the self-describing, HMAC-signed QR pass token.
//
// Wire format: "P.U.E.S", pass id, subject id, expiry (unix seconds), and
// the first 32 hex characters of HMAC-SHA256 over "P.U.E". The codec does
// no state lookup and no time check; it is pure encode/decode plus a
// timing-safe signature comparison.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sigLen is the number of hex characters kept from the full HMAC digest.
// Truncating to 128 bits keeps QR payloads compact and remains
// collision-resistant for a pass's minutes-long lifetime.
const sigLen = 32

// Fields is a parsed, not-yet-verified token.
type Fields struct {
	PassID    uint64
	SubjectID uint64
	Expiry    time.Time
	Signature string
}

// Encode produces a signed token string for the given pass/subject/expiry.
func Encode(secret []byte, passID, subjectID uint64, expiry time.Time) string {
	data := signingData(passID, subjectID, expiry.Unix())
	sig := sign(secret, data)
	return data + "." + sig
}

// Parse splits a token into its four fields without checking the
// signature or expiry. A structurally invalid token (wrong field count,
// non-decimal integer field, or wrong-length signature) returns ok=false.
func Parse(raw string) (fields Fields, ok bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 {
		return Fields{}, false
	}

	passID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || !isCanonicalDecimal(parts[0]) {
		return Fields{}, false
	}
	subjectID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || !isCanonicalDecimal(parts[1]) {
		return Fields{}, false
	}
	expUnix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || !isCanonicalDecimal(parts[2]) {
		return Fields{}, false
	}
	sig := parts[3]
	if len(sig) != sigLen || !isLowerHex(sig) {
		return Fields{}, false
	}

	return Fields{
		PassID:    passID,
		SubjectID: subjectID,
		Expiry:    time.Unix(expUnix, 0).UTC(),
		Signature: sig,
	}, true
}

// Verify recomputes the MAC over the parsed fields and compares it against
// the token's signature in constant time.
func Verify(secret []byte, f Fields) bool {
	data := signingData(f.PassID, f.SubjectID, f.Expiry.Unix())
	want := sign(secret, data)
	return hmac.Equal([]byte(want), []byte(f.Signature))
}

func signingData(passID, subjectID uint64, expUnix int64) string {
	return fmt.Sprintf("%d.%d.%d", passID, subjectID, expUnix)
}

func sign(secret []byte, data string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	full := hex.EncodeToString(mac.Sum(nil))
	return full[:sigLen]
}

// isCanonicalDecimal rejects leading zeros (except the literal value "0")
// and any non-digit characters that strconv would otherwise have accepted
// (e.g. a leading '+').
func isCanonicalDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	return true
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
