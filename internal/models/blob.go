package models

import (
	"encoding/base64"
	"fmt"
)

// MigrationNeeded is the sentinel stored in place of an integrity tag
// for items that predate the authenticated format. Such items cannot
// be decrypted and must be deleted and recreated.
const MigrationNeeded = "MIGRATION_NEEDED"

// EncryptedBlob is the wire shape of a single encrypted value:
// ciphertext, per-message IV, integrity tag, and advisory freshness
// timestamp. The timestamp is metadata only; it is not verified
// against any expiry window.
type EncryptedBlob struct {
	Ciphertext string `json:"ciphertext"` // Base64 encoded
	IV         string `json:"iv"`         // Base64 encoded
	HMAC       string `json:"hmac"`       // Base64 encoded, or MigrationNeeded
	Timestamp  int64  `json:"timestamp"`
}

// NewEncryptedBlob encodes raw cipher output into a blob.
func NewEncryptedBlob(ciphertext, iv, mac []byte, timestamp int64) EncryptedBlob {
	return EncryptedBlob{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		HMAC:       base64.StdEncoding.EncodeToString(mac),
		Timestamp:  timestamp,
	}
}

// NeedsMigration reports whether the blob carries the migration sentinel
// or predates the authenticated format entirely.
func (b *EncryptedBlob) NeedsMigration() bool {
	return b.HMAC == MigrationNeeded || b.HMAC == ""
}

// Decode returns the raw ciphertext, IV and tag bytes.
func (b *EncryptedBlob) Decode() (ciphertext, iv, mac []byte, err error) {
	if b.NeedsMigration() {
		return nil, nil, nil, ErrMigrationRequired
	}

	ciphertext, err = base64.StdEncoding.DecodeString(b.Ciphertext)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	iv, err = base64.StdEncoding.DecodeString(b.IV)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode iv: %w", err)
	}

	mac, err = base64.StdEncoding.DecodeString(b.HMAC)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode hmac: %w", err)
	}

	return ciphertext, iv, mac, nil
}
