package models

import (
	"fmt"
	"strings"
	"time"
)

// CurrentVaultVersion identifies the authenticated vault format.
const CurrentVaultVersion = 2

// ItemType classifies a vault item.
type ItemType string

const (
	TypePassword ItemType = "password"
	TypeNote     ItemType = "note"
	TypeCard     ItemType = "card"
	TypeIdentity ItemType = "identity"
	TypeOther    ItemType = "other"
)

// ParseItemType normalizes a type string, defaulting to TypeOther.
func ParseItemType(s string) ItemType {
	switch ItemType(strings.ToLower(strings.TrimSpace(s))) {
	case TypePassword:
		return TypePassword
	case TypeNote:
		return TypeNote
	case TypeCard:
		return TypeCard
	case TypeIdentity:
		return TypeIdentity
	default:
		return TypeOther
	}
}

// VaultItem is a single stored secret. Both the display name and the
// content are encrypted independently, each with its own IV and tag.
type VaultItem struct {
	ID        string        `json:"id"`
	Type      ItemType      `json:"type"`
	Name      EncryptedBlob `json:"name"`
	Content   EncryptedBlob `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Validate checks structural invariants of a persisted item.
func (i *VaultItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("item ID is required")
	}

	if i.CreatedAt.IsZero() {
		return fmt.Errorf("created_at timestamp is required")
	}

	if i.UpdatedAt.Before(i.CreatedAt) {
		return fmt.Errorf("updated_at cannot be before created_at")
	}

	return nil
}

// VaultMetadata summarizes the collection; recomputed on every save.
type VaultMetadata struct {
	ItemCount    int       `json:"item_count"`
	LastModified time.Time `json:"last_modified"`
	Version      int       `json:"version"`
}

// VaultData is the envelope persisted under the vault_data record.
type VaultData struct {
	Metadata VaultMetadata `json:"metadata"`
	Items    []VaultItem   `json:"items"`
}

// NewVaultData returns an empty envelope in the current format.
func NewVaultData() *VaultData {
	return &VaultData{
		Metadata: VaultMetadata{Version: CurrentVaultVersion},
		Items:    []VaultItem{},
	}
}

// Touch recomputes the envelope metadata before a save.
func (v *VaultData) Touch(now time.Time) {
	v.Metadata.ItemCount = len(v.Items)
	v.Metadata.LastModified = now
	v.Metadata.Version = CurrentVaultVersion
}

// Find returns the index of the item with the given ID, or -1.
func (v *VaultData) Find(id string) int {
	for i := range v.Items {
		if v.Items[i].ID == id {
			return i
		}
	}
	return -1
}
