package domain

import "errors"

var (
	ErrParse                = errors.New("malformed identifier")
	ErrInvalidIdentifier    = errors.New("invalid identifier")
	ErrInvalidMetadata      = errors.New("invalid metadata")
	ErrInvalidComposition   = errors.New("invalid composition")
	ErrTypeNotSet           = errors.New("asset type not set")
	ErrDuplicateIndex       = errors.New("duplicate service index")
	ErrTooManyServices      = errors.New("too many services")
	ErrInvalidService       = errors.New("invalid service")
	ErrMetadataMissing      = errors.New("metadata missing")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
	ErrIdentifierReassigned = errors.New("identifier already assigned")
	ErrDocumentSealed       = errors.New("document sealed")
	ErrInvalidDocument      = errors.New("invalid document")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrNoPermission         = errors.New("no permission")
	ErrVerificationFailed   = errors.New("service agreements not satisfied")
)
