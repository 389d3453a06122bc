// Package crypto implements the two session ciphers accepted by
// Service.OpenSession: a plain pass-through and the Diffie-Hellman
// negotiated AES-128-CBC/PKCS7 envelope used to transfer secrets over the
// bus without sending them in the clear.
package crypto

import (
	"fmt"

	dbtypes "github.com/go-secrets/secretsd/internal/dbus"
)

// Session encrypts and decrypts secret values on behalf of one D-Bus
// session object. The owning service Session wraps each call in its own
// lock: Encrypt/Decrypt under a shared lock, Close under an exclusive one,
// so Close never runs concurrently with Encrypt or Decrypt.
type Session interface {
	// Algorithm returns the algorithm name used by this session.
	Algorithm() string

	// Encrypt encrypts a secret value, returning parameters (the IV, or
	// empty for plain) and ciphertext.
	Encrypt(plaintext []byte) (parameters, ciphertext []byte, err error)

	// Decrypt decrypts a secret value using parameters and ciphertext.
	Decrypt(parameters, ciphertext []byte) (plaintext []byte, err error)

	// Close releases any key material held by the session.
	Close() error
}

// NewSession creates a new crypto session for the given algorithm and
// the client's handshake input, returning the session and the output to
// send back to the client (the server's public key for dh, empty for
// plain).
func NewSession(algorithm string, clientInput []byte) (Session, []byte, error) {
	switch algorithm {
	case dbtypes.AlgorithmPlain:
		return NewPlainSession(clientInput)
	case dbtypes.AlgorithmDH:
		return NewDHSession(clientInput)
	default:
		return nil, nil, fmt.Errorf("unsupported algorithm: %s", algorithm)
	}
}

// SupportedAlgorithms returns the list of algorithm names OpenSession accepts.
func SupportedAlgorithms() []string {
	return []string{dbtypes.AlgorithmPlain, dbtypes.AlgorithmDH}
}
