package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Key sizes for the negotiated AES-128-CBC/PKCS7 envelope. The algorithm
// is still advertised under its historical wire name
// (dh-ietf1024-sha256-aes128-cbc-pkcs7) but the handshake itself is
// ephemeral X25519 rather than the legacy 1024-bit MODP group: X25519
// public keys and curve scalars are both 32 bytes, so OpenSession's input
// is expected to be exactly that long.
const (
	X25519KeyBytes = 32
	AESKeyBytes    = 16
)

// DHSession implements the negotiated AES-128-CBC session keyed by an
// X25519 + HKDF-SHA256 handshake.
type DHSession struct {
	aesKey []byte
}

// NewDHSession performs the server side of the handshake: generate an
// ephemeral X25519 keypair, compute the shared secret with the client's
// public key, and derive the AES key via HKDF-SHA256 with an empty salt
// and empty info. It returns the session and the server's 32-byte public
// key to send back as OpenSession's output.
func NewDHSession(clientPublic []byte) (*DHSession, []byte, error) {
	if len(clientPublic) != X25519KeyBytes {
		return nil, nil, fmt.Errorf("invalid client public key size: expected %d, got %d", X25519KeyBytes, len(clientPublic))
	}

	var serverPrivate [X25519KeyBytes]byte
	if _, err := rand.Read(serverPrivate[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serverPublic, err := curve25519.X25519(serverPrivate[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	shared, err := curve25519.X25519(serverPrivate[:], clientPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid client public key: %w", err)
	}

	// Left-pad to 128 bytes before running HKDF, matching the width the
	// wire algorithm name implies (a 1024-bit MODP shared secret),
	// regardless of the curve actually used for the handshake.
	padded := make([]byte, 128)
	copy(padded[128-len(shared):], shared)

	hkdfReader := hkdf.New(sha256.New, padded, nil, nil)
	aesKey := make([]byte, AESKeyBytes)
	if _, err := hkdfReader.Read(aesKey); err != nil {
		return nil, nil, fmt.Errorf("HKDF failed: %w", err)
	}

	return &DHSession{aesKey: aesKey}, serverPublic, nil
}

// Algorithm returns the algorithm name under which this session was negotiated.
func (s *DHSession) Algorithm() string {
	return "dh-ietf1024-sha256-aes128-cbc-pkcs7"
}

// Encrypt encrypts plaintext using AES-128-CBC with PKCS7 padding and a
// fresh, cryptographically random IV per call. Earlier Secret Service
// implementations have shipped with a fixed IV; that is a known defect
// and is deliberately not reproduced here.
func (s *DHSession) Encrypt(plaintext []byte) (parameters, ciphertext []byte, err error) {
	block, err := aes.NewCipher(s.aesKey)
	if err != nil {
		return nil, nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, err
	}

	ciphertext = make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	return iv, ciphertext, nil
}

// Decrypt decrypts ciphertext using AES-128-CBC with PKCS7 padding.
// parameters holds the IV used for this ciphertext.
func (s *DHSession) Decrypt(parameters, ciphertext []byte) (plaintext []byte, err error) {
	if len(parameters) != aes.BlockSize {
		return nil, fmt.Errorf("invalid IV length: %d", len(parameters))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("invalid ciphertext length: %d", len(ciphertext))
	}

	block, err := aes.NewCipher(s.aesKey)
	if err != nil {
		return nil, err
	}

	decrypted := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, parameters)
	mode.CryptBlocks(decrypted, ciphertext)

	return pkcs7Unpad(decrypted, aes.BlockSize)
}

// Close zeroes the derived AES key.
func (s *DHSession) Close() error {
	for i := range s.aesKey {
		s.aesKey[i] = 0
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty decrypted data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding: padLen=%d", padLen)
	}
	for i := len(data) - padLen; i < len(data); i++ {
		if data[i] != byte(padLen) {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
