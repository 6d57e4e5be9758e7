// Package codec turns values into bytes for the byte-oriented stores behind
// the kv and nats adapters.
package codec

import "errors"

// ErrTooLarge is returned by Limit when a payload exceeds its bound.
var ErrTooLarge = errors.New("codec: payload too large")

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
