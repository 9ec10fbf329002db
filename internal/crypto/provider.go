package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/dkrasnove/lockbox/internal/models"
)

const (
	// Key sizes
	KeySize  = 32 // AES-256
	IVSize   = 16 // GCM nonce, widened to match the blob format
	TagSize  = 32 // HMAC-SHA256
	SaltSize = 16

	// PBKDF2 parameters
	DefaultIterations = 150_000

	// MaxPlaintextSize is the hard input ceiling, checked before any
	// key material is derived.
	MaxPlaintextSize = 10 * 1024 * 1024

	// hmacKeyInfo is the fixed label under which the integrity subkey
	// is derived from the session key.
	hmacKeyInfo = "hmac-key"
)

// Errors
var (
	ErrInvalidKey       = errors.New("invalid key size")
	ErrInvalidIV        = errors.New("invalid IV size")
	ErrPlaintextTooBig  = errors.New("plaintext exceeds size limit")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// CryptoProvider implements Provider with PBKDF2-HMAC-SHA256 key
// derivation and AES-256-GCM encryption. The blob carries a separate
// encrypt-then-MAC tag (HMAC-SHA256 over iv || ciphertext under a key
// derived from the session key) which is verified before the AEAD is
// ever opened, so tampering is detected without touching plaintext.
type CryptoProvider struct {
	iterations uint32
}

// NewProvider creates a crypto provider. Zero iterations selects the
// default count.
func NewProvider(iterations uint32) Provider {
	if iterations == 0 {
		iterations = DefaultIterations
	}
	return &CryptoProvider{iterations: iterations}
}

// Iterations returns the provider's default PBKDF2 iteration count.
func (p *CryptoProvider) Iterations() uint32 {
	return p.iterations
}

// DeriveKey derives a key via PBKDF2-HMAC-SHA256. The password is
// NFKC-normalized first so visually identical inputs derive the same
// key across platforms.
func (p *CryptoProvider) DeriveKey(password string, salt []byte, iterations uint32, keyLen int) []byte {
	if iterations == 0 {
		iterations = p.iterations
	}
	if keyLen == 0 {
		keyLen = KeySize
	}

	normalized := norm.NFKC.String(password)

	return pbkdf2.Key([]byte(normalized), salt, int(iterations), keyLen, sha256.New)
}

// KeyVerifier returns SHA-256 of the derived key. The persisted
// credential record stores this verifier, never the key itself.
func (p *CryptoProvider) KeyVerifier(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// GenerateSalt returns a fresh random salt.
func (p *CryptoProvider) GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt seals plaintext under key.
func (p *CryptoProvider) Encrypt(key, plaintext []byte) (models.EncryptedBlob, error) {
	// Size ceiling first, before any key material exists.
	if int64(len(plaintext)) > MaxPlaintextSize {
		return models.EncryptedBlob{}, ErrPlaintextTooBig
	}

	if len(key) != KeySize {
		return models.EncryptedBlob{}, ErrInvalidKey
	}

	aead, err := newAEAD(key)
	if err != nil {
		return models.EncryptedBlob{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return models.EncryptedBlob{}, fmt.Errorf("generate iv: %w", err)
	}

	ciphertext := aead.Seal(nil, iv, plaintext, nil)

	mac := p.computeTag(key, iv, ciphertext)

	return models.NewEncryptedBlob(ciphertext, iv, mac, time.Now().UnixMilli()), nil
}

// Decrypt verifies the blob's tag, then opens the ciphertext.
func (p *CryptoProvider) Decrypt(key []byte, blob *models.EncryptedBlob) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	if blob.NeedsMigration() {
		return nil, models.ErrMigrationRequired
	}

	ciphertext, iv, mac, err := blob.Decode()
	if err != nil {
		return nil, &models.IntegrityError{Err: err}
	}

	if len(iv) != IVSize {
		return nil, &models.IntegrityError{Err: ErrInvalidIV}
	}

	expected := p.computeTag(key, iv, ciphertext)
	defer Zero(expected)

	// Tag check happens before any decryption work.
	if !tagsEqual(expected, mac) {
		return nil, &models.IntegrityError{Err: ErrDecryptionFailed}
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, &models.IntegrityError{Err: ErrDecryptionFailed}
	}

	return plaintext, nil
}

// computeTag derives the integrity subkey and MACs iv || ciphertext.
// The subkey is wiped before return.
func (p *CryptoProvider) computeTag(key, iv, ciphertext []byte) []byte {
	sub := hmac.New(sha256.New, key)
	sub.Write([]byte(hmacKeyInfo))
	hmacKey := sub.Sum(nil)
	defer Zero(hmacKey)

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// newAEAD builds AES-256-GCM with a nonce widened to the blob IV size.
func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return aead, nil
}

// tagsEqual compares tags in constant time. Unequal lengths still run
// the full comparison up to the longer tag so the reject path does not
// leak length through timing.
func tagsEqual(a, b []byte) bool {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	var diff byte
	for i := 0; i < maxLen; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		diff |= av ^ bv
	}

	if len(a) != len(b) {
		diff |= 1
	}

	return diff == 0
}
