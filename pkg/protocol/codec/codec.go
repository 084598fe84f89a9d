// Package codec holds the marshalers used on the wire and in local stores.
package codec

import "sync"

// Content types understood by the registry.
const (
	ContentJSON  = "application/json"
	ContentCBOR  = "application/cbor"
	ContentProto = "application/x-protobuf"
)

// Codec marshals values of one content type.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Codec
}

// NewRegistry returns a registry preloaded with JSON, Protobuf and, when its
// encoder options build, CBOR.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	if c, err := CBOR(); err == nil {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	r.byType[c.ContentType()] = c
	r.mu.Unlock()
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[contentType]
}
