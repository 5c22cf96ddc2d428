package rfc6242

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/pkg/errors"
)

// RFC6242 message framing. A stream starts out using End-of-Message
// framing and switches to Chunked framing once Upgrade has been called,
// which happens after the hello exchange has negotiated base:1.1.

const (
	// Terminator is the End-of-Message delimiter used by base:1.0 framing.
	Terminator = "]]>]]>"

	// maximumAllowedChunkSize is defined by RFC6242 section 4.2.
	maximumAllowedChunkSize = 4294967295

	readBufferSize = 256
)

// MalformedChunkError describes an unexpected byte found while parsing a
// chunk header.
type MalformedChunkError struct {
	Expected byte
	Actual   byte
}

func (e *MalformedChunkError) Error() string {
	return fmt.Sprintf("malformed message chunk (expected %q, actual %q)", e.Expected, e.Actual)
}

// Framer delimits NETCONF messages on a duplex byte stream.
//
// The upgraded flag is a one-way transition flipped between a write and the
// corresponding read; relaxed atomic visibility is all that is needed since
// the I/O completion supplies the happens-before.
type Framer struct {
	channel io.ReadWriter

	// Read accumulator. Bytes delivered by the channel beyond the current
	// message boundary are retained for the next read.
	buf []byte

	upgraded atomic.Bool
}

// NewFramer delivers a Framer for the supplied duplex stream, initially
// using End-of-Message framing.
func NewFramer(channel io.ReadWriter) *Framer {
	return &Framer{channel: channel}
}

// Upgrade switches the framer from End-of-Message to Chunked framing.
// The transition is one-way and idempotent; reads and writes issued after
// Upgrade returns observe chunked mode.
func (f *Framer) Upgrade() {
	f.upgraded.Store(true)
}

// Upgraded reports whether chunked framing is in effect.
func (f *Framer) Upgraded() bool {
	return f.upgraded.Load()
}

// WriteMessage frames msg and writes it to the channel.
func (f *Framer) WriteMessage(msg string) error {
	payload := []byte(msg)
	if f.upgraded.Load() {
		if len(payload) > 0 {
			if err := f.writeAll([]byte(fmt.Sprintf("\n#%d\n", len(payload)))); err != nil {
				return err
			}
			if err := f.writeAll(payload); err != nil {
				return err
			}
		}
		return f.writeAll([]byte("\n##\n"))
	}

	if err := f.writeAll(payload); err != nil {
		return err
	}
	return f.writeAll([]byte(Terminator))
}

// ReadMessage reads one framed message from the channel, returning it as a
// UTF-8 string (invalid sequences replaced) trimmed of trailing whitespace.
func (f *Framer) ReadMessage() (string, error) {
	if f.upgraded.Load() {
		return f.readChunked()
	}
	return f.readEndOfMessage()
}

func (f *Framer) readEndOfMessage() (string, error) {
	terminator := []byte(Terminator)
	for {
		if pos := bytes.Index(f.buf, terminator); pos >= 0 {
			msg := toText(f.buf[:pos])
			f.buf = append(f.buf[:0], f.buf[pos+len(terminator):]...)
			return msg, nil
		}

		chunk := make([]byte, readBufferSize)
		n, err := f.channel.Read(chunk)
		if n > 0 {
			f.buf = append(f.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.WithStack(io.ErrUnexpectedEOF)
			}
			return "", err
		}
	}
}

func (f *Framer) readChunked() (string, error) {
	var acc []byte
	for {
		size, err := f.readHeader()
		if err != nil {
			return "", err
		}
		if size == 0 {
			return toText(acc), nil
		}

		chunk := make([]byte, size)
		if err := f.readFull(chunk); err != nil {
			return "", err
		}
		acc = append(acc, chunk...)
	}
}

// readHeader parses a chunk header, returning the chunk length or zero for
// the end-of-chunks marker.
func (f *Framer) readHeader() (uint32, error) {
	var preamble [2]byte
	if err := f.readFull(preamble[:]); err != nil {
		return 0, err
	}
	if preamble[0] != '\n' {
		return 0, &MalformedChunkError{Expected: '\n', Actual: preamble[0]}
	}
	if preamble[1] != '#' {
		return 0, &MalformedChunkError{Expected: '#', Actual: preamble[1]}
	}

	var size uint32
	digits := 0
	for {
		b, err := f.readByte()
		if err != nil {
			return 0, err
		}
		switch {
		case b == '#' && digits == 0:
			// End-of-chunks marker "\n##\n".
			if b, err = f.readByte(); err != nil {
				return 0, err
			}
			if b != '\n' {
				return 0, &MalformedChunkError{Expected: '\n', Actual: b}
			}
			return 0, nil
		case b == '\n':
			return size, nil
		case b < '0' || b > '9':
			return 0, &MalformedChunkError{Expected: '0', Actual: b}
		}
		d := uint32(b - '0')
		if size > (maximumAllowedChunkSize-d)/10 {
			return 0, errors.Errorf("chunk size exceeds RFC6242 maximum %d", uint32(maximumAllowedChunkSize))
		}
		size = size*10 + d
		digits++
	}
}

// readFull fills p, consuming retained buffer bytes before the channel.
func (f *Framer) readFull(p []byte) error {
	n := copy(p, f.buf)
	f.buf = append(f.buf[:0], f.buf[n:]...)
	if n == len(p) {
		return nil
	}
	if _, err := io.ReadFull(f.channel, p[n:]); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.WithStack(io.ErrUnexpectedEOF)
		}
		return err
	}
	return nil
}

func (f *Framer) readByte() (byte, error) {
	var b [1]byte
	if err := f.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// writeAll writes the whole of p or fails.
func (f *Framer) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := f.channel.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func toText(b []byte) string {
	return strings.TrimRightFunc(strings.ToValidUTF8(string(b), "�"), unicode.IsSpace)
}
