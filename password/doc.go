// Package password hashes and verifies credentials with argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// so every stored hash carries its own cost parameters. When stored
// parameters are weaker than the current configuration, [Hasher.NeedsRehash]
// reports it and the caller re-hashes on the next successful verification.
//
// The package owns hashing only. It never stores credentials, never logs
// plaintext, and imports nothing else from this module.
package password
