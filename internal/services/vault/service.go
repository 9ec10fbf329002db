// Package vault implements CRUD over the encrypted item collection.
// Item names and contents are encrypted independently with the active
// session key; reads verify integrity before any plaintext is
// returned. Load-then-save on the whole envelope is not transactional;
// single-writer usage is assumed.
package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/crypto"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/keycache"
	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/store"
)

// ItemInfo is the metadata view of an item. List and Search return
// only this; decrypted content never appears in a listing.
type ItemInfo struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           models.ItemType `json:"type"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	NeedsMigration bool            `json:"needs_migration,omitempty"`
}

// MigrationReport summarizes a MigrateToSecureFormat pass.
type MigrationReport struct {
	Upgraded int // items whose name was re-encrypted in place
	Flagged  int // items marked unrecoverable
	Current  int // items already in the authenticated format
}

// Repository is the CRUD layer over the vault_data envelope.
type Repository struct {
	store  store.Store
	crypto crypto.Provider
	cache  *keycache.Cache
	cfg    config.VaultConfig
	logger *events.Logger

	now func() time.Time
}

// NewRepository creates a vault repository.
func NewRepository(st store.Store, provider crypto.Provider, cache *keycache.Cache, cfg config.VaultConfig, logger *events.Logger) *Repository {
	return &Repository{
		store:  st,
		crypto: provider,
		cache:  cache,
		cfg:    cfg,
		logger: logger.WithField("service", "vault"),
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// Create validates, encrypts and stores a new item.
func (r *Repository) Create(name, content string, typ models.ItemType) (*ItemInfo, error) {
	name, err := r.validateName(name)
	if err != nil {
		return nil, err
	}

	if err := r.validateContent(content); err != nil {
		return nil, err
	}

	key, err := r.sessionKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	nameBlob, err := r.crypto.Encrypt(key, []byte(name))
	if err != nil {
		return nil, err
	}

	contentBlob, err := r.crypto.Encrypt(key, []byte(content))
	if err != nil {
		return nil, err
	}

	now := r.now()
	item := models.VaultItem{
		ID:        uuid.NewString(),
		Type:      typ,
		Name:      nameBlob,
		Content:   contentBlob,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := r.load()
	if err != nil {
		return nil, err
	}

	data.Items = append(data.Items, item)

	if err := r.save(data); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"id":   item.ID,
		"type": string(typ),
	}).Info("Item created")

	return r.info(&item, name), nil
}

// Read decrypts and returns the content of an item. Items carrying the
// migration sentinel are permanently unreadable until recreated.
func (r *Repository) Read(id string) (string, error) {
	data, err := r.load()
	if err != nil {
		return "", err
	}

	idx := data.Find(id)
	if idx < 0 {
		return "", models.ErrItemNotFound
	}

	item := &data.Items[idx]
	if item.Content.NeedsMigration() {
		return "", &models.MigrationError{ItemID: id}
	}

	key, err := r.sessionKey()
	if err != nil {
		return "", err
	}
	defer crypto.Wipe(key)

	plaintext, err := r.crypto.Decrypt(key, &item.Content)
	if err != nil {
		var integrity *models.IntegrityError
		if errors.As(err, &integrity) {
			return "", &models.IntegrityError{ItemID: id, Field: "content", Err: integrity.Err}
		}
		return "", err
	}

	return string(plaintext), nil
}

// Update re-encrypts an item in place with a fresh IV and tag.
func (r *Repository) Update(id, name, content string) (*ItemInfo, error) {
	name, err := r.validateName(name)
	if err != nil {
		return nil, err
	}

	if err := r.validateContent(content); err != nil {
		return nil, err
	}

	key, err := r.sessionKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	data, err := r.load()
	if err != nil {
		return nil, err
	}

	idx := data.Find(id)
	if idx < 0 {
		return nil, models.ErrItemNotFound
	}

	item := &data.Items[idx]

	nameBlob, err := r.crypto.Encrypt(key, []byte(name))
	if err != nil {
		return nil, err
	}

	contentBlob, err := r.crypto.Encrypt(key, []byte(content))
	if err != nil {
		return nil, err
	}

	item.Name = nameBlob
	item.Content = contentBlob
	item.UpdatedAt = r.now()

	if err := r.save(data); err != nil {
		return nil, err
	}

	r.logger.WithField("id", id).Info("Item updated")
	return r.info(item, name), nil
}

// Delete removes an item.
func (r *Repository) Delete(id string) error {
	data, err := r.load()
	if err != nil {
		return err
	}

	idx := data.Find(id)
	if idx < 0 {
		return models.ErrItemNotFound
	}

	data.Items = append(data.Items[:idx], data.Items[idx+1:]...)

	if err := r.save(data); err != nil {
		return err
	}

	r.logger.WithField("id", id).Info("Item deleted")
	return nil
}

// List returns metadata for every item, names decrypted for display.
func (r *Repository) List() ([]ItemInfo, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	key, err := r.sessionKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	infos := make([]ItemInfo, 0, len(data.Items))
	for i := range data.Items {
		item := &data.Items[i]
		infos = append(infos, *r.info(item, r.displayName(key, item)))
	}

	return infos, nil
}

// Search returns metadata for items whose name contains query,
// case-insensitively.
func (r *Repository) Search(query string) ([]ItemInfo, error) {
	infos, err := r.List()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return infos, nil
	}

	matched := infos[:0]
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name), query) {
			matched = append(matched, info)
		}
	}

	return matched, nil
}

// MigrateToSecureFormat upgrades legacy items in place. Items missing
// only an encrypted name get one; items missing the content tag cannot
// be decrypted without their key material and are flagged with the
// migration sentinel instead, permanently blocking Read until they are
// deleted and recreated. The flagging is deliberate, lossy policy.
func (r *Repository) MigrateToSecureFormat() (*MigrationReport, error) {
	key, err := r.sessionKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	data, err := r.load()
	if err != nil {
		return nil, err
	}

	report := &MigrationReport{}
	changed := false

	for i := range data.Items {
		item := &data.Items[i]

		if item.Content.NeedsMigration() {
			if item.Content.HMAC != models.MigrationNeeded {
				item.Content.HMAC = models.MigrationNeeded
				changed = true
			}
			report.Flagged++
			continue
		}

		if item.Name.NeedsMigration() {
			// Legacy items carried their display name unencrypted.
			plain := legacyName(&item.Name)
			blob, err := r.crypto.Encrypt(key, []byte(plain))
			if err != nil {
				return nil, err
			}
			item.Name = blob
			item.UpdatedAt = r.now()
			changed = true
			report.Upgraded++
			continue
		}

		report.Current++
	}

	if changed {
		if err := r.save(data); err != nil {
			return nil, err
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"upgraded": report.Upgraded,
		"flagged":  report.Flagged,
	}).Info("Migration pass complete")

	return report, nil
}

// Reencrypt rewrites every readable item under newKey. Items flagged
// with the migration sentinel are carried over untouched.
func (r *Repository) Reencrypt(oldKey, newKey []byte) error {
	data, err := r.load()
	if err != nil {
		return err
	}

	now := r.now()
	for i := range data.Items {
		item := &data.Items[i]
		if item.Content.NeedsMigration() {
			continue
		}

		name, err := r.crypto.Decrypt(oldKey, &item.Name)
		if err != nil {
			return &models.IntegrityError{ItemID: item.ID, Field: "name", Err: err}
		}

		content, err := r.crypto.Decrypt(oldKey, &item.Content)
		if err != nil {
			crypto.Zero(name)
			return &models.IntegrityError{ItemID: item.ID, Field: "content", Err: err}
		}

		nameBlob, err := r.crypto.Encrypt(newKey, name)
		crypto.Zero(name)
		if err != nil {
			crypto.Zero(content)
			return err
		}

		contentBlob, err := r.crypto.Encrypt(newKey, content)
		crypto.Zero(content)
		if err != nil {
			return err
		}

		item.Name = nameBlob
		item.Content = contentBlob
		item.UpdatedAt = now
	}

	return r.save(data)
}

// sessionKey fetches a private copy of the active key.
func (r *Repository) sessionKey() ([]byte, error) {
	key := r.cache.Get(keycache.SessionKey)
	if key == nil {
		return nil, models.ErrNoKeyAvailable
	}
	return key, nil
}

// validateName trims, strips control characters, and bounds the name.
func (r *Repository) validateName(name string) (string, error) {
	name = strings.TrimSpace(name)

	name = strings.Map(func(ru rune) rune {
		if unicode.IsControl(ru) {
			return -1
		}
		return ru
	}, name)

	if name == "" {
		return "", &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	if len(name) > r.cfg.MaxNameLength {
		return "", &models.ValidationError{Field: "name", Reason: "exceeds maximum length"}
	}

	return name, nil
}

func (r *Repository) validateContent(content string) error {
	if int64(len(content)) > r.cfg.MaxContentSize {
		return &models.ValidationError{Field: "content", Reason: "exceeds maximum size"}
	}
	return nil
}

// displayName decrypts an item's name for listings, degrading to a
// placeholder rather than failing the whole listing.
func (r *Repository) displayName(key []byte, item *models.VaultItem) string {
	if item.Name.NeedsMigration() {
		return legacyName(&item.Name)
	}

	name, err := r.crypto.Decrypt(key, &item.Name)
	if err != nil {
		r.logger.WithField("id", item.ID).Warn("Undecryptable item name")
		return "(unreadable)"
	}

	return string(name)
}

// legacyName recovers the unencrypted display name a pre-migration
// item stored in its ciphertext field.
func legacyName(blob *models.EncryptedBlob) string {
	raw, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "(unreadable)"
	}
	return string(raw)
}

func (r *Repository) info(item *models.VaultItem, name string) *ItemInfo {
	return &ItemInfo{
		ID:             item.ID,
		Name:           name,
		Type:           item.Type,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
		NeedsMigration: item.Content.NeedsMigration(),
	}
}

// load reads the envelope, returning an empty one when none exists.
func (r *Repository) load() (*models.VaultData, error) {
	raw, err := r.store.Get(store.KeyVaultData)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewVaultData(), nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyVaultData, Err: err}
	}

	var data models.VaultData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &models.StorageError{Op: "get", Key: store.KeyVaultData, Err: err}
	}

	if data.Items == nil {
		data.Items = []models.VaultItem{}
	}

	return &data, nil
}

// save recomputes metadata and writes the envelope back.
func (r *Repository) save(data *models.VaultData) error {
	data.Touch(r.now())

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if err := r.store.Set(store.KeyVaultData, raw); err != nil {
		return &models.StorageError{Op: "set", Key: store.KeyVaultData, Err: err}
	}
	return nil
}
