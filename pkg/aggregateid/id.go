// Package aggregateid implements the typed, prefixed identifier scheme used
// throughout the event-sourcing runtime: every aggregate, event, and command
// id is a ULID wrapped in a type tag so that an OrderID can never be passed
// where a UserID is expected, while the wire form stays a plain string.
package aggregateid

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrEmpty is returned when parsing an empty identifier string.
var ErrEmpty = errors.New("aggregateid: empty id")

// ErrInvalid is returned when the ulid portion of an identifier fails to parse.
var ErrInvalid = errors.New("aggregateid: invalid id")

// Tag binds an identifier to a type prefix, e.g. "order" or "user".
// Aggregates, commands, and events each declare their own Tag implementation
// so that one generic ID[T] type serves every aggregate family instead of a
// hand-rolled wrapper type per aggregate.
type Tag interface {
	Prefix() string
}

// ID is a prefixed, sortable identifier: "{prefix}-{ulid}". The zero value is
// not a valid id; use New or Parse.
type ID[T Tag] struct {
	value ulid.ULID
	set   bool
}

// entropy is a package-level monotonic ulid source, matching idgen's use of
// a seeded math/rand reader rather than crypto/rand (ids need to sort, not
// resist prediction).
var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// New generates a fresh, time-sortable identifier.
func New[T Tag]() ID[T] {
	return ID[T]{value: ulid.MustNew(ulid.Timestamp(time.Now()), entropy), set: true}
}

// FromULID wraps an already-generated ulid.ULID in a typed id.
func FromULID[T Tag](u ulid.ULID) ID[T] {
	return ID[T]{value: u, set: true}
}

// Parse accepts either the prefixed form ("order-01H...") or a bare ulid
// ("01H..."), stripping a matching prefix when present and falling back to
// parsing the whole string as a ulid otherwise.
func Parse[T Tag](s string) (ID[T], error) {
	var zero ID[T]
	if s == "" {
		return zero, ErrEmpty
	}

	var tag T
	prefix := tag.Prefix() + "-"
	trimmed := strings.TrimPrefix(s, prefix)

	u, err := ulid.ParseStrict(trimmed)
	if err != nil {
		return zero, ErrInvalid
	}
	return ID[T]{value: u, set: true}, nil
}

// String renders the prefixed wire form.
func (id ID[T]) String() string {
	if !id.set {
		return ""
	}
	var tag T
	return tag.Prefix() + "-" + id.value.String()
}

// IsZero reports whether this id was never assigned a value.
func (id ID[T]) IsZero() bool { return !id.set }

// ULID returns the underlying ulid value.
func (id ID[T]) ULID() ulid.ULID { return id.value }

// MarshalText implements encoding.TextMarshaler so IDs round-trip through
// JSON as their prefixed string form.
func (id ID[T]) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID[T]) UnmarshalText(text []byte) error {
	parsed, err := Parse[T](string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
