// Package serde provides the codec abstraction used to turn domain types
// into the bytes stored in the journal, outbox, and snapshot tables. A
// Codec is just a pair of Marshal/Unmarshal functions, and Convert lets a
// type be serialized via an intermediate representation when it has no
// direct encoding of its own.
package serde

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Error wraps a failure from a specific codec with that codec's name.
type Error struct {
	Codec string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("serde: %s: %v", e.Codec, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Codec serializes and deserializes values of type T to and from bytes.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// Json codes any value through encoding/json.
type Json[T any] struct{}

func (Json[T]) Marshal(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Codec: "json", Err: err}
	}
	return b, nil
}

func (Json[T]) Unmarshal(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, &Error{Codec: "json", Err: err}
	}
	return v, nil
}

// Protobuf codes a proto.Message through the binary wire format. T is any
// proto.Message; New allocates the empty value Unmarshal decodes into.
type Protobuf[T proto.Message] struct {
	New func() T
}

func (c Protobuf[T]) Marshal(v T) ([]byte, error) {
	b, err := proto.Marshal(v)
	if err != nil {
		return nil, &Error{Codec: "protobuf", Err: err}
	}
	return b, nil
}

func (c Protobuf[T]) Unmarshal(data []byte) (T, error) {
	v := c.New()
	if err := proto.Unmarshal(data, v); err != nil {
		return v, &Error{Codec: "protobuf", Err: err}
	}
	return v, nil
}

// ProtoJSON codes a proto.Message as JSON using protobuf's canonical field
// mapping instead of Go's struct-tag based encoding/json, matching the
// original's ProtoJson<T> bridge type.
type ProtoJSON[T proto.Message] struct {
	New func() T
}

func (c ProtoJSON[T]) Marshal(v T) ([]byte, error) {
	b, err := protojson.Marshal(v)
	if err != nil {
		return nil, &Error{Codec: "protojson", Err: err}
	}
	return b, nil
}

func (c ProtoJSON[T]) Unmarshal(data []byte) (T, error) {
	v := c.New()
	if err := protojson.Unmarshal(data, v); err != nil {
		return v, &Error{Codec: "protojson", Err: err}
	}
	return v, nil
}

// Convert adapts a codec over an intermediate representation Out to one
// over In, via caller-supplied lossless conversions. Used when In has no
// native encoding of its own (e.g. a domain type that round-trips through
// a plain struct before being protobuf-encoded).
type Convert[In, Out, S Codec[Out]] struct {
	Inner  S
	ToOut  func(In) (Out, error)
	ToIn   func(Out) (In, error)
}

func (c Convert[In, Out, S]) Marshal(v In) ([]byte, error) {
	out, err := c.ToOut(v)
	if err != nil {
		return nil, &Error{Codec: "convert", Err: err}
	}
	return c.Inner.Marshal(out)
}

func (c Convert[In, Out, S]) Unmarshal(data []byte) (In, error) {
	var zero In
	out, err := c.Inner.Unmarshal(data)
	if err != nil {
		return zero, err
	}
	v, err := c.ToIn(out)
	if err != nil {
		return zero, &Error{Codec: "convert", Err: err}
	}
	return v, nil
}
