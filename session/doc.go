// Package session persists bearer session records in Redis with sliding
// expiration. Records are stored under an environment-configurable prefix
// plus "session:" and indexed per user so revocation can find every live
// session. The binary codec is versioned so records written by older
// releases keep decoding during rolling upgrades.
package session
