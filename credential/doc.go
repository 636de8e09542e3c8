// Package credential verifies login identifier/secret pairs against argon2id
// password hashes held by an external user directory.
//
// Unknown identifiers and wrong secrets both return [ErrInvalidCredentials]
// after the same amount of argon2 work: when no user matches, the secret is
// checked against a dummy hash derived with the live parameters.
package credential
