package middleware

import (
	"errors"
	"path"
	"regexp"
	"strings"
	"unicode"
)

// Validation limits.
const (
	// MaxSectionLength is the maximum length for a section name.
	MaxSectionLength = 32

	// MaxFilenameLength is the maximum length for an uploaded filename.
	MaxFilenameLength = 255

	// MaxEmailLength is the maximum length for an email address.
	MaxEmailLength = 254

	// MaxNameLength is the maximum length for a display name.
	MaxNameLength = 128
)

// Validation errors.
var (
	ErrSectionInvalid     = errors.New("section contains invalid characters")
	ErrSectionTooLong     = errors.New("section exceeds maximum length")
	ErrSectionReserved    = errors.New("section name is reserved")
	ErrFilenameEmpty      = errors.New("filename is empty")
	ErrFilenameTooLong    = errors.New("filename exceeds maximum length")
	ErrFilenameTraversal  = errors.New("filename contains path traversal")
	ErrFilenameNonASCII   = errors.New("filename contains control or non-ascii characters")
	ErrEmailInvalid       = errors.New("email address is invalid")
	ErrEmailTooLong       = errors.New("email address exceeds maximum length")
)

// ReservedSections contains section names that cannot be used for uploads.
// These collide with system key prefixes in the bucket.
var ReservedSections = map[string]bool{
	"outputs":  true,
	"exports":  true,
	"tmp":      true,
	"system":   true,
	"internal": true,
}

// validSectionPattern matches valid section name characters.
// Allowed: a-z, 0-9, hyphen, underscore
var validSectionPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// emailPattern is a pragmatic email shape check; real validation happens
// when mail is actually sent.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateSection validates a section name used in upload keys and queries.
func ValidateSection(section string) error {
	if section == "" {
		return ErrSectionInvalid
	}

	if len(section) > MaxSectionLength {
		return ErrSectionTooLong
	}

	if !validSectionPattern.MatchString(section) {
		return ErrSectionInvalid
	}

	if ReservedSections[section] {
		return ErrSectionReserved
	}

	return nil
}

// ValidateFilename validates an uploaded file's original filename.
// Rejects path traversal and control characters; the stored key never
// contains the original name, but it is persisted as object metadata.
func ValidateFilename(name string) error {
	if name == "" {
		return ErrFilenameEmpty
	}

	if len(name) > MaxFilenameLength {
		return ErrFilenameTooLong
	}

	// The browser sends a bare name; anything with separators is suspect.
	if strings.ContainsAny(name, `/\`) || path.Clean(name) != name || strings.Contains(name, "..") {
		return ErrFilenameTraversal
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f || r > unicode.MaxASCII {
			return ErrFilenameNonASCII
		}
	}

	return nil
}

// ValidateEmail validates an email address shape.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !emailPattern.MatchString(email) {
		return ErrEmailInvalid
	}
	return nil
}
