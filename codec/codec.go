// Package codec encodes and decodes the payloads carried inside transport messages.
package codec

import "encoding/json"

// Encoder turns a value into payload bytes.
type Encoder[T any] interface {
	Encode(from T) ([]byte, error)
}

// Decoder fills into from payload bytes.
type Decoder[T any] interface {
	Decode(b []byte, into *T) error
}

// Codec is both an Encoder and a Decoder.
type Codec[T any] interface {
	Encoder[T]
	Decoder[T]
}

// JSON encodes T with encoding/json, honoring any Marshaler/Unmarshaler T implements.
type JSON[T any] struct{}

func (JSON[T]) Encode(from T) ([]byte, error) {
	return json.Marshal(from)
}

func (JSON[T]) Decode(b []byte, into *T) error {
	return json.Unmarshal(b, into)
}
