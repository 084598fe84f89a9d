package protocol

import (
	"fmt"
	"strings"

	"lanhop/pkg/protocol/codec"
)

// Format marks how a stored body was encoded. It is written as the first
// byte of the encoded body.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatCBOR
	FormatProto
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	case FormatProto:
		return "proto"
	default:
		return "unknown"
	}
}

// ParseFormat accepts json, cbor or proto (protobuf).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	case "proto", "protobuf":
		return FormatProto, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format %q", s)
	}
}

func (f Format) contentType() string {
	switch f {
	case FormatJSON:
		return codec.ContentJSON
	case FormatCBOR:
		return codec.ContentCBOR
	case FormatProto:
		return codec.ContentProto
	}
	return ""
}

// CodecFor returns the registry's codec for f.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
	if c := r.Get(f.contentType()); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("no codec for format %s", f)
}

// EncodeBody serializes v with the codec for f and prefixes the format byte.
func EncodeBody(r *codec.Registry, f Format, v any) ([]byte, error) {
	c, err := CodecFor(r, f)
	if err != nil {
		return nil, err
	}
	b, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(b))
	out[0] = byte(f)
	copy(out[1:], b)
	return out, nil
}

// DecodeBody reverses EncodeBody and reports the format found.
func DecodeBody(r *codec.Registry, body []byte, v any) (Format, error) {
	if len(body) == 0 {
		return FormatUnknown, fmt.Errorf("empty body")
	}
	f := Format(body[0])
	c, err := CodecFor(r, f)
	if err != nil {
		return f, err
	}
	return f, c.Unmarshal(body[1:], v)
}
