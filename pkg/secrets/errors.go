package secrets

import "errors"

var (
	// Key validation errors
	ErrInvalidKey = errors.New("secrets: master key must be 32 bytes")

	// Encryption/decryption errors
	ErrEncryptionFailed  = errors.New("secrets: encryption failed")
	ErrDecryptionFailed  = errors.New("secrets: decryption failed")
	ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext format")

	// Key derivation errors
	ErrKeyDerivationFailed = errors.New("secrets: key derivation failed")
)
