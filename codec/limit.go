package codec

import "fmt"

// Limit bounds the payload size accepted by Decode. Encode is not limited;
// a store that holds oversized values rejects them itself.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

// WithLimit wraps c when max is positive and returns c unchanged otherwise.
func WithLimit[V any](c Codec[V], max int) Codec[V] {
	if max <= 0 {
		return c
	}
	return Limit[V]{Inner: c, Max: max}
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), c.Max)
	}
	return c.Inner.Decode(b)
}
