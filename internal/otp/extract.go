package otp

import (
	"encoding/base32"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/keepotp/internal/kdbx"
)

// Attribute names that designate an OTP source directly, matched
// case-insensitively.
var namedOtpKeys = map[string]struct{}{
	"otp":     {},
	"totp":    {},
	"otpauth": {},
}

// KeePassXC stores manually configured TOTP parameters in this pair of
// attributes: the seed is the bare base32 secret, the settings value is
// "period;digits".
const (
	totpSeedKey     = "TOTP Seed"
	totpSettingsKey = "TOTP Settings"
)

// Extract locates the OTP configuration of an entry and returns its
// descriptor. Sources are consulted in order: a custom attribute named
// otp/totp/otpauth, then KeePassXC's structured TOTP fields, then any
// attribute whose value embeds an otpauth URI. Once a source matches,
// later sources are not consulted; a matching source that fails to
// parse yields a ParseError. Entries with no source at all yield
// ErrNoOtpSource.
func Extract(e kdbx.Entry) (*Descriptor, error) {
	if v, ok := namedAttribute(e); ok {
		if containsFieldReference(v) {
			return nil, ErrNoOtpSource
		}
		return parseURI(e, v)
	}

	if seed, ok := e.Attr(totpSeedKey); ok {
		if containsFieldReference(seed) {
			return nil, ErrNoOtpSource
		}
		return parseStructured(e, seed)
	}

	for _, a := range e.Attrs {
		if idx := strings.Index(a.Value, "otpauth://"); idx >= 0 {
			if containsFieldReference(a.Value) {
				return nil, ErrNoOtpSource
			}
			return parseURI(e, a.Value[idx:])
		}
	}

	return nil, ErrNoOtpSource
}

func namedAttribute(e kdbx.Entry) (string, bool) {
	for _, a := range e.Attrs {
		if _, ok := namedOtpKeys[strings.ToLower(a.Key)]; ok {
			return a.Value, true
		}
	}
	return "", false
}

func containsFieldReference(s string) bool {
	return strings.Contains(strings.ToUpper(s), "{REF:")
}

// parseURI decodes an otpauth:// URI into a descriptor. Only the totp
// type with the SHA1 algorithm is supported.
func parseURI(e kdbx.Entry, raw string) (*Descriptor, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, parseError(e.Title, "malformed otpauth uri")
	}
	if u.Scheme != "otpauth" {
		return nil, parseError(e.Title, "not an otpauth uri")
	}
	if !strings.EqualFold(u.Host, "totp") {
		return nil, parseError(e.Title, "unsupported otp type %q", u.Host)
	}

	d := &Descriptor{
		UUID:      e.UUID,
		EntryName: e.Title,
		URL:       e.URL,
		Period:    DefaultPeriod,
		Digits:    DefaultDigits,
	}

	label := strings.TrimPrefix(u.Path, "/")
	if issuer, account, found := strings.Cut(label, ":"); found {
		d.Issuer = strings.TrimSpace(issuer)
		d.Account = strings.TrimSpace(account)
	} else {
		d.Account = strings.TrimSpace(label)
	}

	q := u.Query()

	secret, err := decodeSecret(q.Get("secret"))
	if err != nil {
		return nil, parseError(e.Title, "invalid secret encoding")
	}
	d.Secret = secret

	if issuer := q.Get("issuer"); issuer != "" {
		d.Issuer = issuer
	}

	if p := q.Get("period"); p != "" {
		period, err := strconv.Atoi(p)
		if err != nil || period <= 0 {
			return nil, parseError(e.Title, "invalid period %q", p)
		}
		d.Period = period
	}

	if s := q.Get("digits"); s != "" {
		digits, err := strconv.Atoi(s)
		if err != nil || digits <= 0 {
			return nil, parseError(e.Title, "invalid digits %q", s)
		}
		d.Digits = digits
	}

	if a := q.Get("algorithm"); a != "" && !strings.EqualFold(a, "SHA1") {
		return nil, parseError(e.Title, "unsupported algorithm %q", a)
	}

	if d.Account == "" {
		d.Account = e.Username
	}

	return d, nil
}

// parseStructured builds a descriptor from the TOTP Seed / TOTP Settings
// attribute pair. Missing settings fall back to the 30s/6-digit default.
func parseStructured(e kdbx.Entry, seed string) (*Descriptor, error) {
	secret, err := decodeSecret(seed)
	if err != nil {
		return nil, parseError(e.Title, "invalid secret encoding")
	}

	d := &Descriptor{
		UUID:      e.UUID,
		EntryName: e.Title,
		Account:   e.Username,
		URL:       e.URL,
		Secret:    secret,
		Period:    DefaultPeriod,
		Digits:    DefaultDigits,
	}

	settings, ok := e.Attr(totpSettingsKey)
	if !ok || strings.TrimSpace(settings) == "" {
		return d, nil
	}

	parts := strings.Split(settings, ";")
	if len(parts) != 2 {
		return nil, parseError(e.Title, "invalid totp settings")
	}
	period, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || period <= 0 {
		return nil, parseError(e.Title, "invalid totp settings")
	}
	digits, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || digits <= 0 {
		return nil, parseError(e.Title, "invalid totp settings")
	}
	d.Period = period
	d.Digits = digits
	return d, nil
}

// decodeSecret decodes a base32 secret, tolerating lower case, interior
// whitespace and missing padding.
func decodeSecret(s string) ([]byte, error) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if s == "" {
		return nil, errors.New("empty secret")
	}
	if n := len(s) % 8; n != 0 {
		s += strings.Repeat("=", 8-n)
	}
	return base32.StdEncoding.DecodeString(s)
}
