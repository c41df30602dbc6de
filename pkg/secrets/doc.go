// Package secrets seals the persisted session blob with AES-256-GCM.
//
// A Sealer derives its working key from a 32-byte master key with
// HKDF-SHA-256, using a purpose string for domain separation, so the same
// master key can protect unrelated blobs without key reuse. Each Seal call
// draws a fresh nonce and prepends it to the ciphertext; Open expects that
// layout.
//
// # Usage
//
//	key, _ := secrets.GenerateKey()
//	sealer, err := secrets.NewSealer(key, "sessions")
//	if err != nil {
//	    // wrong key size
//	}
//	ct, _ := sealer.Seal([]byte(`[...]`))
//	pt, err := sealer.Open(ct)
//
// String helpers wrap the ciphertext in standard base64 for backends that
// only store text (OS keychains, redis strings).
//
// # Error Handling
//
// Errors wrap a package sentinel (ErrInvalidKey, ErrEncryptionFailed,
// ErrDecryptionFailed, ErrInvalidCiphertext, ErrKeyDerivationFailed) via
// errors.Join; match them with errors.Is.
package secrets
