package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Envelope is one transfer: the header plus either a byte payload (binary
// kinds) or a text (text and link). The receiver-side fields are never put
// on the wire.
type Envelope struct {
	Header

	Payload []byte
	Text    string

	// Truncated is set when the connection closed before the declared
	// payload length arrived; FileSize then holds the bytes received.
	Truncated bool
	// Undecryptable is set when the payload is obfuscated with a code that
	// does not match the local one. The content is left as received.
	Undecryptable bool
	Remote        string
	ReceivedAt    time.Time
}

// NewFile builds a file envelope.
func NewFile(name string, data []byte) Envelope {
	return Envelope{Header: Header{Kind: KindFile, Name: name, FileName: name, FileSize: int64(len(data))}, Payload: data}
}

// NewText builds a text envelope.
func NewText(text string) Envelope {
	return Envelope{Header: Header{Kind: KindText, Name: "Text", FileSize: int64(len(text))}, Text: text}
}

// NewLink builds a link envelope.
func NewLink(url string) Envelope {
	return Envelope{Header: Header{Kind: KindLink, Name: "Link", FileSize: int64(len(url))}, Text: url}
}

// NewImage builds an image envelope.
func NewImage(name string, data []byte) Envelope {
	return Envelope{Header: Header{Kind: KindImage, Name: name, FileName: name, FileSize: int64(len(data))}, Payload: data}
}

// NewScreenshot builds a screenshot envelope.
func NewScreenshot(data []byte) Envelope {
	name := "Screenshot " + time.Now().Format("2006-01-02 15.04.05") + ".png"
	return Envelope{Header: Header{Kind: KindScreenshot, Name: name, FileName: name, FileSize: int64(len(data))}, Payload: data}
}

// NewStreamFrame builds one frame of a stream.
func NewStreamFrame(streamID string, seq int64, data []byte) Envelope {
	name := fmt.Sprintf("frame-%06d.png", seq)
	return Envelope{Header: Header{
		Kind:           KindStreamFrame,
		Name:           name,
		FileName:       name,
		FileSize:       int64(len(data)),
		StreamID:       streamID,
		SequenceNumber: seq,
	}, Payload: data}
}

// NewCollectionFile builds a file that belongs to a collection.
func NewCollectionFile(collectionID, name string, data []byte) Envelope {
	return Envelope{Header: Header{
		Kind:         KindCollectionFile,
		Name:         name,
		FileName:     name,
		FileSize:     int64(len(data)),
		CollectionID: collectionID,
	}, Payload: data}
}

// Size returns the content length in bytes.
func (e *Envelope) Size() int64 {
	if e.Kind.Binary() {
		return int64(len(e.Payload))
	}
	return int64(len(e.Text))
}

// Frame is a fully prepared wire image of an envelope. Building it up front
// lets a sender fail before any byte reaches a socket.
type Frame struct {
	prefix []byte
	body   []byte
}

// Frame encodes the header and length prefixes.
func (e *Envelope) Frame() (*Frame, error) {
	h := e.Header
	h.FileSize = e.Size()
	if err := h.Validate(); err != nil {
		return nil, err
	}
	hb, err := MarshalHeader(&h)
	if err != nil {
		return nil, err
	}
	f := &Frame{}
	if h.Kind.Binary() {
		f.prefix = make([]byte, 4+len(hb)+8)
		binary.LittleEndian.PutUint32(f.prefix[0:4], uint32(len(hb)))
		copy(f.prefix[4:], hb)
		binary.LittleEndian.PutUint64(f.prefix[4+len(hb):], uint64(len(e.Payload)))
		f.body = e.Payload
	} else {
		f.prefix = make([]byte, 4+len(hb)+4)
		binary.LittleEndian.PutUint32(f.prefix[0:4], uint32(len(hb)))
		copy(f.prefix[4:], hb)
		binary.LittleEndian.PutUint32(f.prefix[4+len(hb):], uint32(len(e.Text)))
		f.body = []byte(e.Text)
	}
	return f, nil
}

// Len is the total number of bytes WriteTo will write.
func (f *Frame) Len() int64 { return int64(len(f.prefix) + len(f.body)) }

// WriteTo writes the frame to w.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n1, err := w.Write(f.prefix)
	if err != nil {
		return int64(n1), err
	}
	n2, err := w.Write(f.body)
	return int64(n1 + n2), err
}

// Bytes returns the frame as a single slice.
func (f *Frame) Bytes() []byte {
	out := make([]byte, 0, f.Len())
	out = append(out, f.prefix...)
	return append(out, f.body...)
}

// WriteTo frames e and writes it to w.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	f, err := e.Frame()
	if err != nil {
		return 0, err
	}
	return f.WriteTo(w)
}
