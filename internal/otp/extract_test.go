package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keepotp/internal/kdbx"
)

func entryWithAttr(title, key, value string) kdbx.Entry {
	return kdbx.Entry{
		UUID:  "11111111-2222-3333-4444-555555555555",
		Title: title,
		Attrs: []kdbx.Attr{{Key: key, Value: value}},
	}
}

func TestExtract_FullURI(t *testing.T) {
	e := entryWithAttr("GitHub", "otp",
		"otpauth://totp/GitHub:alice@example.com?secret=JBSWY3DPEHPK3PXP&period=60&digits=8")

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, "GitHub", d.EntryName)
	assert.Equal(t, "GitHub", d.Issuer)
	assert.Equal(t, "alice@example.com", d.Account)
	assert.Equal(t, 60, d.Period)
	assert.Equal(t, 8, d.Digits)
	assert.Equal(t, []byte("Hello!\xDE\xAD\xBE\xEF"), d.Secret)
}

func TestExtract_Defaults(t *testing.T) {
	e := entryWithAttr("Mail", "TOTP", "otpauth://totp/Mail?secret=JBSWY3DPEHPK3PXP")

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, 30, d.Period)
	assert.Equal(t, 6, d.Digits)
	assert.Empty(t, d.Issuer)
	assert.Equal(t, "Mail", d.Account)
}

func TestExtract_AccountFallsBackToUsername(t *testing.T) {
	e := kdbx.Entry{
		Title:    "VPN",
		Username: "grace",
		URL:      "https://vpn.example.com",
		Attrs:    []kdbx.Attr{{Key: "otp", Value: "otpauth://totp/?secret=JBSWY3DPEHPK3PXP&issuer=VPN"}},
	}

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, "grace", d.Account)
	assert.Equal(t, "VPN", d.Issuer)
	assert.Equal(t, "https://vpn.example.com", d.URL)
}

func TestExtract_IssuerParamOverridesLabel(t *testing.T) {
	e := entryWithAttr("X", "otp",
		"otpauth://totp/LabelIssuer:bob?secret=JBSWY3DPEHPK3PXP&issuer=ParamIssuer")

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, "ParamIssuer", d.Issuer)
	assert.Equal(t, "bob", d.Account)
}

func TestExtract_PercentEncodedLabel(t *testing.T) {
	e := entryWithAttr("X", "otp",
		"otpauth://totp/My%20Service:carol%40example.com?secret=JBSWY3DPEHPK3PXP")

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, "My Service", d.Issuer)
	assert.Equal(t, "carol@example.com", d.Account)
}

func TestExtract_HotpRejected(t *testing.T) {
	e := entryWithAttr("Legacy", "otp",
		"otpauth://hotp/Legacy?secret=JBSWY3DPEHPK3PXP&counter=0")

	_, err := Extract(e)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Legacy", perr.Entry)
	assert.Contains(t, perr.Error(), "unsupported otp type")
	assert.NotContains(t, perr.Error(), "JBSWY3DP")
}

func TestExtract_NonSHA1Rejected(t *testing.T) {
	e := entryWithAttr("X", "otp",
		"otpauth://totp/X?secret=JBSWY3DPEHPK3PXP&algorithm=SHA256")

	_, err := Extract(e)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "algorithm")
}

func TestExtract_LowercaseUnpaddedSecret(t *testing.T) {
	e := entryWithAttr("X", "otp", "otpauth://totp/X?secret=jbswy3dpehpk3pxp")

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello!\xDE\xAD\xBE\xEF"), d.Secret)
}

func TestExtract_MalformedSecret(t *testing.T) {
	e := entryWithAttr("Broken", "otp", "otpauth://totp/Broken?secret=NOTBASE32!!!")

	_, err := Extract(e)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Broken", perr.Entry)
	assert.NotContains(t, perr.Error(), "NOTBASE32")
}

func TestExtract_MissingSecret(t *testing.T) {
	e := entryWithAttr("Empty", "otp", "otpauth://totp/Empty?period=30")

	_, err := Extract(e)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestExtract_NamedAttributeWinsOverEmbeddedURI(t *testing.T) {
	e := kdbx.Entry{
		Title: "Both",
		Attrs: []kdbx.Attr{
			{Key: "notes-extra", Value: "see otpauth://totp/Wrong?secret=GEZDGNBVGY3TQOJQ"},
			{Key: "otp", Value: "otpauth://totp/Right?secret=JBSWY3DPEHPK3PXP"},
		},
	}

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, "Right", d.Account)
}

func TestExtract_NamedAttributeFailureDoesNotFallThrough(t *testing.T) {
	e := kdbx.Entry{
		Title: "Both",
		Attrs: []kdbx.Attr{
			{Key: "otp", Value: "not a uri at all"},
			{Key: "backup", Value: "otpauth://totp/Backup?secret=JBSWY3DPEHPK3PXP"},
		},
	}

	_, err := Extract(e)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestExtract_EmbeddedURISubstring(t *testing.T) {
	e := entryWithAttr("Notes", "recovery",
		"scan this: otpauth://totp/Svc:dan?secret=JBSWY3DPEHPK3PXP then store it")

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, "Svc", d.Issuer)
	assert.Equal(t, "dan", d.Account)
}

func TestExtract_StructuredSeedAndSettings(t *testing.T) {
	e := kdbx.Entry{
		Title:    "Bank",
		Username: "erin",
		Attrs: []kdbx.Attr{
			{Key: "TOTP Seed", Value: "jbsw y3dp ehpk 3pxp"},
			{Key: "TOTP Settings", Value: "60;8"},
		},
	}

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, 60, d.Period)
	assert.Equal(t, 8, d.Digits)
	assert.Equal(t, "erin", d.Account)
	assert.Equal(t, []byte("Hello!\xDE\xAD\xBE\xEF"), d.Secret)
}

func TestExtract_StructuredSeedDefaultSettings(t *testing.T) {
	e := kdbx.Entry{
		Title: "Bank",
		Attrs: []kdbx.Attr{{Key: "TOTP Seed", Value: "JBSWY3DPEHPK3PXP"}},
	}

	d, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, 30, d.Period)
	assert.Equal(t, 6, d.Digits)
}

func TestExtract_BadStructuredSettings(t *testing.T) {
	e := kdbx.Entry{
		Title: "Bank",
		Attrs: []kdbx.Attr{
			{Key: "TOTP Seed", Value: "JBSWY3DPEHPK3PXP"},
			{Key: "TOTP Settings", Value: "sixty;eight"},
		},
	}

	_, err := Extract(e)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestExtract_NoSource(t *testing.T) {
	e := kdbx.Entry{
		Title:    "Plain",
		Username: "frank",
		Attrs:    []kdbx.Attr{{Key: "pin", Value: "1234"}},
	}

	_, err := Extract(e)
	assert.ErrorIs(t, err, ErrNoOtpSource)
}

func TestExtract_FieldReferenceSkipped(t *testing.T) {
	e := entryWithAttr("Mirror", "otp", "{REF:O@I:46C9B1FFBB4B4F93A023BDEE96BAD063}")

	_, err := Extract(e)
	assert.ErrorIs(t, err, ErrNoOtpSource)
}

func TestExtract_Idempotent(t *testing.T) {
	e := entryWithAttr("GitHub", "otp",
		"otpauth://totp/GitHub:alice?secret=JBSWY3DPEHPK3PXP")

	d1, err := Extract(e)
	require.NoError(t, err)
	d2, err := Extract(e)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestFingerprint_StableAndSecretFree(t *testing.T) {
	d := &Descriptor{Secret: []byte("Hello!\xDE\xAD\xBE\xEF")}
	fp := d.Fingerprint()
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, d.Fingerprint())
	assert.NotContains(t, fp, "JBSWY3DP")
}
