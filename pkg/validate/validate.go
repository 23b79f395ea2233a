// Package validate holds the field-level checks a command's Handle runs
// before it is allowed to produce an event: well-formed email addresses and
// minimum credential strength. It is deliberately thin — a handful of
// functions returning a plain error, using govalidator.IsEmail for
// addresses and a go-password-validator entropy check plus bcrypt hashing
// for credentials — so a command's Handle can return the result directly
// as an aggregate rejection instead of threading through a field-level
// validation-result framework.
package validate

import (
	"errors"
	"fmt"

	"github.com/asaskevich/govalidator"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

// MinEntropyBits is the minimum password entropy go-password-validator
// requires for a credential to pass.
const MinEntropyBits = 60

// BcryptCost is the bcrypt work factor used to hash a verified credential,
// raised from bcrypt.DefaultCost (10).
const BcryptCost = 12

// ErrEmptyEmail and ErrInvalidEmail are returned by Email.
var (
	ErrEmptyEmail   = errors.New("validate: email is required")
	ErrInvalidEmail = errors.New("validate: email is not well-formed")
)

// Email rejects an empty or malformed address.
func Email(value string) error {
	if value == "" {
		return ErrEmptyEmail
	}
	if !govalidator.IsEmail(value) {
		return ErrInvalidEmail
	}
	return nil
}

// ErrWeakCredential is returned by Credential when value's estimated
// entropy falls below MinEntropyBits.
var ErrWeakCredential = fmt.Errorf("validate: credential must have at least %d bits of entropy", MinEntropyBits)

// Credential checks that value (an account PIN, password, or similar secret)
// is strong enough to hash and store, without ever logging or returning the
// value itself.
func Credential(value string) error {
	if value == "" {
		return errors.New("validate: credential is required")
	}
	if err := passwordvalidator.Validate(value, MinEntropyBits); err != nil {
		return ErrWeakCredential
	}
	return nil
}

// HashCredential validates and bcrypt-hashes value in one step, the shape
// every command that accepts a new credential (open account, reset PIN)
// needs before it can emit an event carrying only the hash.
func HashCredential(value string) (string, error) {
	if err := Credential(value); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(value), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("validate: hash credential: %w", err)
	}
	return string(hash), nil
}

// CompareCredential reports whether value matches hash, in constant time.
func CompareCredential(hash, value string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(value))
}
