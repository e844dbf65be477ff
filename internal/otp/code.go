package otp

import (
	"encoding/base32"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Code returns the descriptor's code for the time step containing t,
// zero-padded to the configured digit count.
func (d *Descriptor) Code(t time.Time) (string, error) {
	secret := base32.StdEncoding.EncodeToString(d.Secret)
	return totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    uint(d.Period),
		Digits:    otp.Digits(d.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
}

// Remaining returns how many seconds of validity the code for t has
// left within its time step.
func (d *Descriptor) Remaining(t time.Time) int {
	period := int64(d.Period)
	return int(period - t.Unix()%period)
}
