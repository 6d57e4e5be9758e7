package kv

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/rescache/adapter"
	"github.com/unkn0wn-root/rescache/codec"
)

// Codec ids written into every frame. A frame whose id does not match the
// adapter's codec is treated as corrupt.
const (
	codecJSON     byte = 1
	codecMsgpack  byte = 2
	codecCBOR     byte = 3
	codecProtobuf byte = 4
)

func contentCodec(name string) (codec.Codec[adapter.Content], byte, error) {
	switch name {
	case "", "json":
		return codec.JSON[adapter.Content]{}, codecJSON, nil
	case "msgpack":
		return codec.Msgpack[adapter.Content]{}, codecMsgpack, nil
	case "cbor":
		c, err := codec.NewCBOR[adapter.Content](false)
		if err != nil {
			return nil, 0, err
		}
		return c, codecCBOR, nil
	case "protobuf":
		return protoContent{pb: codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}, codecProtobuf, nil
	default:
		return nil, 0, fmt.Errorf("kv: unknown codec %q", name)
	}
}

// protoContent carries Content as a google.protobuf.Struct.
type protoContent struct {
	pb codec.Protobuf[*structpb.Struct]
}

func (p protoContent) Encode(c adapter.Content) ([]byte, error) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"data":     structpb.NewStringValue(c.Data),
		"type":     structpb.NewStringValue(c.Type),
		"version":  structpb.NewStringValue(c.Version),
		"lastmod":  structpb.NewStringValue(c.LastMod),
		"lifetime": structpb.NewNumberValue(float64(c.Lifetime)),
		"storedAt": structpb.NewNumberValue(float64(c.StoredAt)),
	}}
	return p.pb.Encode(s)
}

func (p protoContent) Decode(b []byte) (adapter.Content, error) {
	s, err := p.pb.Decode(b)
	if err != nil {
		return adapter.Content{}, err
	}
	f := s.GetFields()
	return adapter.Content{
		Data:     f["data"].GetStringValue(),
		Type:     f["type"].GetStringValue(),
		Version:  f["version"].GetStringValue(),
		LastMod:  f["lastmod"].GetStringValue(),
		Lifetime: int64(f["lifetime"].GetNumberValue()),
		StoredAt: int64(f["storedAt"].GetNumberValue()),
	}, nil
}
