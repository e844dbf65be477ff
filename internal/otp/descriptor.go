// Package otp extracts TOTP descriptors from KeePass entries and
// generates the rotating codes they describe.
package otp

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Defaults applied when an otpauth URI omits the parameter.
const (
	DefaultPeriod = 30
	DefaultDigits = 6
)

// Descriptor is everything needed to generate codes for one entry.
// Secret holds the raw key bytes, never the base32 text from the URI.
type Descriptor struct {
	UUID      string
	EntryName string
	Issuer    string
	Account   string
	URL       string
	Secret    []byte
	Period    int
	Digits    int
}

// Fingerprint returns a stable digest of the secret, used to drop
// duplicate entries that share one key. It is safe to log and persist.
func (d *Descriptor) Fingerprint() string {
	sum := sha256.Sum256(d.Secret)
	return hex.EncodeToString(sum[:])
}

// ErrNoOtpSource means the entry carries no OTP configuration at all.
// Callers skip such entries silently.
var ErrNoOtpSource = errors.New("no otp source in entry")

// ParseError means the entry does carry OTP configuration but it could
// not be understood. The message names the entry and the reason, never
// the secret or any attribute value.
type ParseError struct {
	Entry  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("entry %q: %s", e.Entry, e.Reason)
}

func parseError(entry, format string, args ...any) *ParseError {
	return &ParseError{Entry: entry, Reason: fmt.Sprintf(format, args...)}
}
