// Package common defines sentinel errors and constants shared by every
// StorageCrypt component. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// store errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")

	// remote backend errors
	ErrRemote              = errors.New("remote storage error")
	ErrFailedToGetMetadata = errors.New("failed to get metadata")

	// reconciliation errors
	ErrParentNotFound = errors.New("parent not found")
	ErrParentFailed   = errors.New("parent folder failed")
	ErrTypeConflict   = errors.New("type conflict")

	// crypto errors
	ErrMetadataDecryption = errors.New("metadata decryption error")
	ErrEncryption         = errors.New("encryption error")
	ErrDecryption         = errors.New("decryption error")
	ErrKeyNotFound        = errors.New("key not found")

	// local file errors
	ErrSourceFileOpen      = errors.New("source file open error")
	ErrDestinationFileOpen = errors.New("destination file open error")

	// process control
	ErrCanceled = errors.New("canceled")

	// key store errors
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotInitialized       = errors.New("key store not initialized")
	ErrAlreadyInitialized   = errors.New("key store already initialized")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// API token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
