package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrInvalidIdentityID = errors.New("identity_id must be a non-empty string of digits")
	ErrInvalidName       = errors.New("name must contain only letters and spaces")
	ErrIdentityNotFound  = errors.New("identity not found")
)

// Identity is a registered person. ID is immutable once created.
type Identity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
}

// ValidateIdentityID accepts ASCII digit strings only.
func ValidateIdentityID(id string) error {
	if id == "" {
		return ErrInvalidIdentityID
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidIdentityID, id)
		}
	}
	return nil
}

// NormalizeName returns name in NFC form with surrounding space trimmed and
// inner runs of whitespace collapsed to one space. Letters and single spaces
// are the only characters allowed.
func NormalizeName(name string) (string, error) {
	fields := strings.Fields(norm.NFC.String(name))
	if len(fields) == 0 {
		return "", ErrInvalidName
	}
	for _, f := range fields {
		for _, r := range f {
			if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) {
				return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
			}
		}
	}
	return strings.Join(fields, " "), nil
}

// ErrInvalidPassword is returned for empty admin passwords.
var ErrInvalidPassword = errors.New("password must not be empty")
