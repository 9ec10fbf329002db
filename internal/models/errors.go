package models

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for structured error handling.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeIntegrity    = "INTEGRITY_ERROR"
	ErrCodeMigration    = "MIGRATION_REQUIRED"
	ErrCodeNoKey        = "NO_KEY_AVAILABLE"
	ErrCodeLockedOut    = "LOCKED_OUT"
	ErrCodeBackoff      = "BACKOFF_REQUIRED"
	ErrCodePlatformAuth = "PLATFORM_AUTH_FAILURE"
	ErrCodeStorage      = "STORAGE_ERROR"
	ErrCodeCrypto       = "CRYPTO_ERROR"
)

// Sentinel errors
var (
	ErrNoKeyAvailable    = errors.New("no session key available")
	ErrIntegrityCheck    = errors.New("integrity check failed")
	ErrMigrationRequired = errors.New("item requires migration")
	ErrItemNotFound      = errors.New("vault item not found")
	ErrAlreadySetUp      = errors.New("vault already set up")
	ErrNotSetUp          = errors.New("vault not set up")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrBiometricBusy     = errors.New("biometric operation already in progress")
	ErrBiometricDisabled = errors.New("biometric unlock not enabled")
	ErrContentTooLarge   = errors.New("content exceeds size limit")
)

// ValidationError reports malformed caller input. Always recoverable
// by correcting the input; raised before any crypto work begins.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IntegrityError reports a tag mismatch on decrypt. The operation is
// aborted and no partial plaintext is ever returned.
type IntegrityError struct {
	ItemID string
	Field  string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("integrity check failed for item %s (%s): %v", e.ItemID, e.Field, e.Err)
	}
	return fmt.Sprintf("integrity check failed: %v", e.Err)
}

func (e *IntegrityError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrIntegrityCheck
}

// Is lets errors.Is match any IntegrityError against ErrIntegrityCheck.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityCheck
}

// MigrationError marks an item that predates the authenticated format
// and cannot be decrypted. The item stays unreadable until it is
// deleted and recreated.
type MigrationError struct {
	ItemID string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("item %s predates the authenticated format and must be recreated", e.ItemID)
}

func (e *MigrationError) Is(target error) bool {
	return target == ErrMigrationRequired
}

// LockoutError reports a Brute-Force Guard denial. The caller must
// wait Remaining before retrying.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.Remaining.Round(time.Second))
}

// BackoffError reports a progressive-delay denial between attempts.
type BackoffError struct {
	Remaining time.Duration
}

func (e *BackoffError) Error() string {
	return fmt.Sprintf("retry too soon, wait %s", e.Remaining.Round(time.Millisecond))
}

// PlatformAuthError reports a failed or cancelled platform biometric
// challenge. Never counted against the Brute-Force Guard.
type PlatformAuthError struct {
	Reason string
	Err    error
}

func (e *PlatformAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("platform authentication failed: %s", e.Reason)
}

func (e *PlatformAuthError) Unwrap() error {
	return e.Err
}

// StorageError wraps a secure-store failure with the record key involved.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
