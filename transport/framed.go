package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"post-rpc/codec"
	"post-rpc/wire"
)

// Frame format for stream media (two processes over a socket or pipe).
// A fixed 8-byte header precedes a variable-length body; the reader reads
// the header first to learn the body length, then reads exactly that many
// bytes:
//
//	0      3  4       8
//	┌──────┬──┬────────┬──────────────┐
//	│magic │v │ bodyLen│   body ...   │
//	│ prc  │01│ uint32 │ bodyLen bytes│
//	└──────┴──┴────────┴──────────────┘
//
// The magic bytes reject non-protocol peers early; the version byte leaves
// room for upgrades.
const (
	frameMagic0     byte = 'p'
	frameMagic1     byte = 'r'
	frameMagic2     byte = 'c'
	frameVersion    byte = 0x01
	frameHeaderSize      = 8
	frameMaxBody         = 16 << 20
)

// frame is the serialized body: payload plus whatever metadata survives a
// byte boundary. Port handles do not; a framed medium is envelope-only.
type frame struct {
	Origin string          `json:"origin,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Framed wraps a byte stream as a Port. Writes are serialized so frames
// from concurrent senders never interleave; a single read loop preserves
// frame boundaries. Transferring a Port through Send is rejected with
// ErrTransferUnsupported.
func Framed(rw io.ReadWriter, origin string) Port {
	p := &framedPort{rw: rw, origin: origin, cdc: codec.Default, in: newInbox()}
	go p.readLoop()
	return p
}

type framedPort struct {
	rw      io.ReadWriter
	origin  string
	cdc     codec.Codec
	in      *inbox
	writeMu sync.Mutex
	closed  atomic.Bool
}

func (p *framedPort) Send(m Message) error {
	if p.closed.Load() {
		return wire.ErrClosed
	}
	if m.Port != nil {
		return ErrTransferUnsupported
	}
	body, err := p.cdc.Encode(&frame{Origin: p.origin, Data: m.Data})
	if err != nil {
		return err
	}

	header := make([]byte, frameHeaderSize)
	header[0], header[1], header[2] = frameMagic0, frameMagic1, frameMagic2
	header[3] = frameVersion
	binary.BigEndian.PutUint32(header[4:8], uint32(len(body)))

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.rw.Write(header); err != nil {
		return err
	}
	if _, err := p.rw.Write(body); err != nil {
		return err
	}
	return nil
}

func (p *framedPort) Listen(h Handler) (cancel func()) {
	return p.in.listen(h)
}

func (p *framedPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.in.close()
	if c, ok := p.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *framedPort) readLoop() {
	for {
		body, err := p.readFrame()
		if err != nil {
			p.Close()
			return
		}
		var f frame
		if err := p.cdc.Decode(body, &f); err != nil {
			// Framing held but the body is garbage; skip the frame rather
			// than kill the stream.
			continue
		}
		_ = p.in.push(Message{Data: f.Data, Origin: f.Origin, Source: p})
	}
}

func (p *framedPort) readFrame() ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(p.rw, header); err != nil {
		return nil, err
	}
	if header[0] != frameMagic0 || header[1] != frameMagic1 || header[2] != frameMagic2 {
		return nil, fmt.Errorf("invalid magic number: %x", header[0:3])
	}
	if header[3] != frameVersion {
		return nil, fmt.Errorf("unsupported version: %d", header[3])
	}
	bodyLen := binary.BigEndian.Uint32(header[4:8])
	if bodyLen > frameMaxBody {
		return nil, fmt.Errorf("frame body too large: %d", bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(p.rw, body); err != nil {
		return nil, err
	}
	return body, nil
}
