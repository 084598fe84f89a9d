// Package history keeps a bounded, expiring log of received items.
package history

import (
	"fmt"
	"sync/atomic"
	"time"

	"lanhop/pkg/memkv"
	"lanhop/pkg/protocol"
	"lanhop/pkg/protocol/codec"
)

const keyPrefix = "hist/"

// Record is the metadata kept for one received envelope. Payloads are not
// stored.
type Record struct {
	Seq            uint64    `json:"seq" cbor:"1,keyasint"`
	Kind           string    `json:"kind" cbor:"2,keyasint"`
	Name           string    `json:"name" cbor:"3,keyasint"`
	FileName       string    `json:"fileName,omitempty" cbor:"4,keyasint,omitempty"`
	Size           int64     `json:"size" cbor:"5,keyasint"`
	Sender         string    `json:"sender" cbor:"6,keyasint"`
	Remote         string    `json:"remote,omitempty" cbor:"7,keyasint,omitempty"`
	Obfuscated     bool      `json:"obfuscated" cbor:"8,keyasint"`
	Undecryptable  bool      `json:"undecryptable" cbor:"9,keyasint"`
	Truncated      bool      `json:"truncated" cbor:"10,keyasint"`
	StreamID       string    `json:"streamId,omitempty" cbor:"11,keyasint,omitempty"`
	SequenceNumber int64     `json:"sequenceNumber,omitempty" cbor:"12,keyasint,omitempty"`
	CollectionID   string    `json:"collectionId,omitempty" cbor:"13,keyasint,omitempty"`
	ReceivedAt     time.Time `json:"receivedAt" cbor:"14,keyasint"`
}

// FromEnvelope extracts the stored metadata of env.
func FromEnvelope(env *protocol.Envelope) Record {
	at := env.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Record{
		Kind:           string(env.Kind),
		Name:           env.Name,
		FileName:       env.FileName,
		Size:           env.FileSize,
		Sender:         env.SenderAddress,
		Remote:         env.Remote,
		Obfuscated:     env.Obfuscated,
		Undecryptable:  env.Undecryptable,
		Truncated:      env.Truncated,
		StreamID:       env.StreamID,
		SequenceNumber: env.SequenceNumber,
		CollectionID:   env.CollectionID,
		ReceivedAt:     at.UTC(),
	}
}

// Store appends records to a memkv store in the configured format.
type Store struct {
	kv     *memkv.Store
	reg    *codec.Registry
	format protocol.Format
	ttl    time.Duration
	seq    atomic.Uint64
}

// New returns a Store writing records encoded as format ("json", "cbor" or
// "proto") that expire after ttl (0 keeps them).
func New(kv *memkv.Store, format string, ttl time.Duration) (*Store, error) {
	f, err := protocol.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return &Store{kv: kv, reg: codec.NewRegistry(), format: f, ttl: ttl}, nil
}

// Add records env and returns its sequence number.
func (s *Store) Add(env *protocol.Envelope) (uint64, error) {
	r := FromEnvelope(env)
	r.Seq = s.seq.Add(1)
	var v any = &r
	if s.format == protocol.FormatProto {
		v = r.toMap()
	}
	b, err := protocol.EncodeBody(s.reg, s.format, v)
	if err != nil {
		return 0, fmt.Errorf("history: encode: %w", err)
	}
	if _, stored := s.kv.Upsert(key(r.Seq), s.ttl, func([]byte, bool) []byte { return b }); !stored {
		return 0, fmt.Errorf("history: store full")
	}
	return r.Seq, nil
}

// List returns live records oldest first.
func (s *Store) List() []Record {
	var out []Record
	s.kv.Range(keyPrefix, func(_ string, b []byte) bool {
		if r, err := s.decode(b); err == nil {
			out = append(out, r)
		}
		return true
	})
	return out
}

func (s *Store) decode(b []byte) (Record, error) {
	if len(b) > 0 && protocol.Format(b[0]) == protocol.FormatProto {
		var m map[string]any
		if _, err := protocol.DecodeBody(s.reg, b, &m); err != nil {
			return Record{}, err
		}
		return fromMap(m)
	}
	var r Record
	_, err := protocol.DecodeBody(s.reg, b, &r)
	return r, err
}

func key(seq uint64) string { return fmt.Sprintf("%s%020d", keyPrefix, seq) }

// toMap renders r for the protobuf Struct encoding, which only knows
// strings, float64 numbers and bools.
func (r *Record) toMap() map[string]any {
	return map[string]any{
		"seq":            float64(r.Seq),
		"kind":           r.Kind,
		"name":           r.Name,
		"fileName":       r.FileName,
		"size":           float64(r.Size),
		"sender":         r.Sender,
		"remote":         r.Remote,
		"obfuscated":     r.Obfuscated,
		"undecryptable":  r.Undecryptable,
		"truncated":      r.Truncated,
		"streamId":       r.StreamID,
		"sequenceNumber": float64(r.SequenceNumber),
		"collectionId":   r.CollectionID,
		"receivedAt":     r.ReceivedAt.Format(time.RFC3339Nano),
	}
}

func fromMap(m map[string]any) (Record, error) {
	str := func(k string) string { s, _ := m[k].(string); return s }
	num := func(k string) float64 { f, _ := m[k].(float64); return f }
	flag := func(k string) bool { b, _ := m[k].(bool); return b }
	at, err := time.Parse(time.RFC3339Nano, str("receivedAt"))
	if err != nil {
		return Record{}, fmt.Errorf("history: receivedAt: %w", err)
	}
	return Record{
		Seq:            uint64(num("seq")),
		Kind:           str("kind"),
		Name:           str("name"),
		FileName:       str("fileName"),
		Size:           int64(num("size")),
		Sender:         str("sender"),
		Remote:         str("remote"),
		Obfuscated:     flag("obfuscated"),
		Undecryptable:  flag("undecryptable"),
		Truncated:      flag("truncated"),
		StreamID:       str("streamId"),
		SequenceNumber: int64(num("sequenceNumber")),
		CollectionID:   str("collectionId"),
		ReceivedAt:     at,
	}, nil
}
