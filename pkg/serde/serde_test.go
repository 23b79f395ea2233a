package serde_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/serde"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestJsonRoundTrip(t *testing.T) {
	codec := serde.Json[point]{}

	data, err := codec.Marshal(point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":2}`, string(data))

	back, err := codec.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, point{X: 1, Y: 2}, back)
}

func TestJsonUnmarshalError(t *testing.T) {
	codec := serde.Json[point]{}
	_, err := codec.Unmarshal([]byte("not json"))
	require.Error(t, err)

	var serdeErr *serde.Error
	require.ErrorAs(t, err, &serdeErr)
	assert.Equal(t, "json", serdeErr.Codec)
}

// vector is the intermediate representation a domain "magnitude" type
// converts through before reaching the Json codec.
type vector struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

type magnitude int

func TestConvertRoundTrip(t *testing.T) {
	codec := serde.Convert[magnitude, vector, serde.Json[vector]]{
		Inner: serde.Json[vector]{},
		ToOut: func(m magnitude) (vector, error) { return vector{DX: int(m), DY: 0}, nil },
		ToIn:  func(v vector) (magnitude, error) { return magnitude(v.DX), nil },
	}

	data, err := codec.Marshal(magnitude(7))
	require.NoError(t, err)

	back, err := codec.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, magnitude(7), back)
}
