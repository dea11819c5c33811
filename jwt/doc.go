// Package jwt signs and verifies the bearer access tokens consumed by the
// authorization core. Tokens are thin: they carry the user id, the session
// identifier (jti) used to look up the distributed session record, and
// advisory branch/role hints. All authoritative state lives in the session
// store and the system of record, never in the token.
package jwt
