package protocol

import "fmt"

// Kind is the type of a transfer. Binary kinds carry an int64-prefixed
// payload, the others an int32-prefixed UTF-8 text.
type Kind string

const (
	KindFile           Kind = "file"
	KindText           Kind = "text"
	KindLink           Kind = "link"
	KindScreenshot     Kind = "screenshot"
	KindImage          Kind = "image"
	KindStreamFrame    Kind = "stream-frame"
	KindCollectionFile Kind = "collection-file"
)

var kinds = map[Kind]bool{
	KindFile:           true,
	KindText:           false,
	KindLink:           false,
	KindScreenshot:     true,
	KindImage:          true,
	KindStreamFrame:    true,
	KindCollectionFile: true,
}

// Known reports whether k is a recognised kind.
func (k Kind) Known() bool {
	_, ok := kinds[k]
	return ok
}

// Binary reports whether k carries a byte payload rather than text.
func (k Kind) Binary() bool { return kinds[k] }

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Known() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// Wire defaults.
const (
	PrimaryPort  = 16741
	FallbackPort = 6741

	DefaultChunkSize      = 8 * 1024
	DefaultMaxHeaderBytes = 1 << 20
	maxTextBytes          = 64 << 20
)
