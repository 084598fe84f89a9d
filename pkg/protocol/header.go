package protocol

import (
	"errors"
	"fmt"

	"lanhop/pkg/protocol/codec"
)

// Header is the JSON block that opens every transfer.
type Header struct {
	Kind            Kind   `json:"kind"`
	Name            string `json:"name"`
	FileName        string `json:"fileName,omitempty"`
	FileSize        int64  `json:"fileSize"`
	SenderAddress   string `json:"senderAddress"`
	Obfuscated      bool   `json:"obfuscated"`
	ObfuscationCode string `json:"obfuscationCode,omitempty"`
	StreamID        string `json:"streamId,omitempty"`
	SequenceNumber  int64  `json:"sequenceNumber,omitempty"`
	CollectionID    string `json:"collectionId,omitempty"`
}

var headerCodec = codec.JSON()

// Validate checks the fields a receiver depends on.
func (h *Header) Validate() error {
	if h.Kind == "" {
		return errors.New("missing kind")
	}
	if !h.Kind.Known() {
		return fmt.Errorf("unknown kind %q", h.Kind)
	}
	if h.FileSize < 0 {
		return fmt.Errorf("negative fileSize %d", h.FileSize)
	}
	if h.Kind == KindStreamFrame && h.StreamID == "" {
		return errors.New("stream frame without streamId")
	}
	return nil
}

// MarshalHeader encodes h as wire JSON.
func MarshalHeader(h *Header) ([]byte, error) { return headerCodec.Marshal(h) }

// UnmarshalHeader decodes and validates a wire header.
func UnmarshalHeader(b []byte) (Header, error) {
	var h Header
	if err := headerCodec.Unmarshal(b, &h); err != nil {
		return Header{}, err
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}
