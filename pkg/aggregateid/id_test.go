package aggregateid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/aggregateid"
)

type orderTag struct{}

func (orderTag) Prefix() string { return "order" }

func TestNewAndString(t *testing.T) {
	id := aggregateid.New[orderTag]()
	require.False(t, id.IsZero())
	assert.Regexp(t, `^order-[0-9A-Z]{26}$`, id.String())
}

func TestParsePrefixed(t *testing.T) {
	original := aggregateid.New[orderTag]()
	parsed, err := aggregateid.Parse[orderTag](original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseBareULID(t *testing.T) {
	original := aggregateid.New[orderTag]()
	bare := original.ULID().String()

	parsed, err := aggregateid.Parse[orderTag](bare)
	require.NoError(t, err)
	assert.Equal(t, original.ULID(), parsed.ULID())
}

func TestParseEmpty(t *testing.T) {
	_, err := aggregateid.Parse[orderTag]("")
	assert.ErrorIs(t, err, aggregateid.ErrEmpty)
}

func TestParseInvalid(t *testing.T) {
	_, err := aggregateid.Parse[orderTag]("order-not-a-ulid")
	assert.ErrorIs(t, err, aggregateid.ErrInvalid)
}

func TestMarshalTextRoundTrip(t *testing.T) {
	original := aggregateid.New[orderTag]()

	text, err := original.MarshalText()
	require.NoError(t, err)

	var roundTripped aggregateid.ID[orderTag]
	require.NoError(t, roundTripped.UnmarshalText(text))
	assert.Equal(t, original, roundTripped)
}
