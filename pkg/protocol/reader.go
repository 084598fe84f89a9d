package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// FrameError reports a malformed or short frame. Only the connection that
// produced it is affected.
type FrameError struct {
	Stage string
	Err   error
}

func (e *FrameError) Error() string { return "frame " + e.Stage + ": " + e.Err.Error() }
func (e *FrameError) Unwrap() error { return e.Err }

func frameErr(stage string, err error) error { return &FrameError{Stage: stage, Err: err} }

// ReadOptions bounds what ReadEnvelope accepts. Zero values pick defaults.
type ReadOptions struct {
	ChunkSize      int
	MaxHeaderBytes int
	// MaxPayloadBytes rejects larger declared payloads; 0 means no limit.
	MaxPayloadBytes int64
}

func (o ReadOptions) withDefaults() ReadOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxHeaderBytes <= 0 {
		o.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	return o
}

// initial buffer reservation; forged sizes must not allocate up front
const maxPrealloc = 1 << 20

// ReadEnvelope reads exactly one envelope from r. A payload cut short by the
// peer is returned with Truncated set rather than as an error. ctx is
// checked between chunks; callers unblock a pending read by closing r.
func ReadEnvelope(ctx context.Context, r io.Reader, opts ReadOptions) (*Envelope, error) {
	opts = opts.withDefaults()

	var lenbuf [8]byte
	if _, err := io.ReadFull(r, lenbuf[:4]); err != nil {
		return nil, frameErr("header length", err)
	}
	hl := int32(binary.LittleEndian.Uint32(lenbuf[:4]))
	if hl <= 0 || int(hl) > opts.MaxHeaderBytes {
		return nil, frameErr("header length", fmt.Errorf("invalid length %d", hl))
	}
	hb := make([]byte, hl)
	if _, err := io.ReadFull(r, hb); err != nil {
		return nil, frameErr("header", err)
	}
	h, err := UnmarshalHeader(hb)
	if err != nil {
		return nil, frameErr("header", err)
	}
	env := &Envelope{Header: h, ReceivedAt: time.Now()}

	if !h.Kind.Binary() {
		if _, err := io.ReadFull(r, lenbuf[:4]); err != nil {
			return nil, frameErr("text length", err)
		}
		tl := int32(binary.LittleEndian.Uint32(lenbuf[:4]))
		if tl < 0 || tl > maxTextBytes {
			return nil, frameErr("text length", fmt.Errorf("invalid length %d", tl))
		}
		tb := make([]byte, tl)
		if _, err := io.ReadFull(r, tb); err != nil {
			return nil, frameErr("text", err)
		}
		env.Text = string(tb)
		env.FileSize = int64(tl)
		return env, nil
	}

	if _, err := io.ReadFull(r, lenbuf[:8]); err != nil {
		return nil, frameErr("payload length", err)
	}
	n := int64(binary.LittleEndian.Uint64(lenbuf[:8]))
	if n < 0 {
		return nil, frameErr("payload length", fmt.Errorf("invalid length %d", n))
	}
	if opts.MaxPayloadBytes > 0 && n > opts.MaxPayloadBytes {
		return nil, frameErr("payload length", fmt.Errorf("length %d exceeds limit %d", n, opts.MaxPayloadBytes))
	}

	var buf bytes.Buffer
	buf.Grow(int(min(n, maxPrealloc)))
	chunk := make([]byte, opts.ChunkSize)
	for remaining := n; remaining > 0; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := int64(len(chunk))
		if remaining < want {
			want = remaining
		}
		got, rerr := io.ReadFull(r, chunk[:want])
		buf.Write(chunk[:got])
		remaining -= int64(got)
		if rerr != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			env.Truncated = true
			break
		}
	}
	env.Payload = buf.Bytes()
	env.FileSize = int64(len(env.Payload))
	return env, nil
}
