// Package password implements argon2id credential hashing with PHC-encoded
// digests. Verification is constant-time over the derived key and treats
// malformed digests as a mismatch rather than an error, so callers never
// branch on digest shape.
package password
