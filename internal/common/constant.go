// Package common contains shared constants and sentinel errors used across
// keepotp components.
package common

// AuthHeaderName is the HTTP header used to carry the bearer access token.
const AuthHeaderName = "Authorization"

// AuthQueryParam is the fallback query parameter for the access token,
// used by clients that cannot set headers (e.g. browser WebSocket dials).
const AuthQueryParam = "token"
