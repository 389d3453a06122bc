package crypto

import (
	"fmt"

	dbtypes "github.com/go-secrets/secretsd/internal/dbus"
)

// PlainSession implements the "plain" algorithm (no encryption).
type PlainSession struct{}

// NewPlainSession creates a new plain text session. Per spec the client
// input must be empty for this algorithm.
func NewPlainSession(clientInput []byte) (*PlainSession, []byte, error) {
	if len(clientInput) != 0 {
		return nil, nil, fmt.Errorf("plain algorithm expects empty input, got %d bytes", len(clientInput))
	}
	return &PlainSession{}, []byte{}, nil
}

// Algorithm returns "plain".
func (s *PlainSession) Algorithm() string {
	return dbtypes.AlgorithmPlain
}

// Encrypt returns the plaintext as-is (no encryption).
func (s *PlainSession) Encrypt(plaintext []byte) (parameters, ciphertext []byte, err error) {
	return []byte{}, plaintext, nil
}

// Decrypt returns the ciphertext as-is (no decryption).
func (s *PlainSession) Decrypt(parameters, ciphertext []byte) (plaintext []byte, err error) {
	return ciphertext, nil
}

// Close is a no-op for plain sessions.
func (s *PlainSession) Close() error {
	return nil
}
