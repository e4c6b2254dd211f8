package cache

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts values to and from stored payloads.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Unmarshal must return an error for payloads it cannot decode into v,
// never a silently zeroed value.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec stores values as JSON. It is the default codec.
type JSONCodec struct{}

func (JSONCodec) Name() string                       { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MsgpackCodec stores values as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string                       { return "msgpack" }
func (MsgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// CBORCodec stores values as CBOR. Time values are encoded as RFC3339Nano.
// Construct with NewCBORCodec.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a CBOR codec. Deterministic encoding uses the RFC 8949
// core deterministic options and yields byte-stable payloads.
func NewCBORCodec(deterministic bool) (*CBORCodec, error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cache: cbor encoder: %w", err)
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return nil, fmt.Errorf("cache: cbor decoder: %w", err)
	}
	return &CBORCodec{enc: em, dec: dm}, nil
}

func (c *CBORCodec) Name() string                       { return "cbor" }
func (c *CBORCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c *CBORCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// CodecByName returns the codec registered under name. An empty name selects
// JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	case "cbor":
		return NewCBORCodec(true)
	default:
		return nil, fmt.Errorf("cache: unknown codec %q", name)
	}
}

var (
	_ Codec = JSONCodec{}
	_ Codec = MsgpackCodec{}
	_ Codec = (*CBORCodec)(nil)
)
