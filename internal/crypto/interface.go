package crypto

import "github.com/dkrasnove/lockbox/internal/models"

// Provider defines the interface for cryptographic operations.
type Provider interface {
	// DeriveKey derives a symmetric key from a password and salt using
	// iterated PBKDF2-HMAC-SHA256. Deterministic and CPU-bound; at the
	// default iteration count a call is deliberately slow and must be
	// kept off interaction-blocking paths.
	DeriveKey(password string, salt []byte, iterations uint32, keyLen int) []byte

	// KeyVerifier returns the value persisted to check a later login
	// against, without storing the key itself.
	KeyVerifier(key []byte) []byte

	// GenerateSalt returns a fresh random salt.
	GenerateSalt() ([]byte, error)

	// Encrypt seals plaintext under key into an authenticated blob.
	Encrypt(key, plaintext []byte) (models.EncryptedBlob, error)

	// Decrypt verifies the blob's tag and returns the plaintext. Tag
	// verification happens before any decryption work; a mismatch
	// yields an IntegrityError and no partial plaintext.
	Decrypt(key []byte, blob *models.EncryptedBlob) ([]byte, error)
}
