// Package ipc implements the length-prefixed framed duplex channel between
// a worker process and its job-executor children (spec §6.1). The wire
// encoding (4-byte big-endian length + JSON body) is this module's own
// choice — no example in the reference pack offers a drop-in framer for a
// bespoke parent/child protocol, and generating protobuf bindings would
// require invoking protoc, which is out of scope here.
package ipc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxFrameBytes bounds a single frame to guard against a corrupt length
// prefix turning into an unbounded allocation.
const MaxFrameBytes = 32 << 20

// Codec reads and writes length-prefixed JSON frames over a single
// io.ReadWriter. Writes are serialized; reads are expected to happen from
// a single goroutine (the channel's owning reader, per spec §3's "all
// streams are owned by the reader" rule).
type Codec struct {
	r       *bufio.Reader
	w       io.Writer
	writeMu sync.Mutex
}

// NewCodec wraps rw (typically a child process's stdin/stdout pipes).
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReaderSize(rw, 64*1024), w: rw}
}

// WriteEnvelope marshals env as JSON and writes it as one length-prefixed
// frame. Safe for concurrent callers.
func (c *Codec) WriteEnvelope(env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ipc: marshal envelope: %w", err)
	}
	if len(body) > MaxFrameBytes {
		return fmt.Errorf("ipc: frame too large (%d bytes)", len(body))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := c.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if _, err := c.w.Write(body); err != nil {
		return fmt.Errorf("ipc: write frame body: %w", err)
	}
	return nil
}

// ReadEnvelope blocks until the next full frame arrives, or returns an
// error (including io.EOF when the peer closed its side).
func (c *Codec) ReadEnvelope() (Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameBytes {
		return Envelope{}, fmt.Errorf("ipc: incoming frame too large (%d bytes)", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return Envelope{}, fmt.Errorf("ipc: read frame body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("ipc: unmarshal envelope: %w", err)
	}
	return env, nil
}
