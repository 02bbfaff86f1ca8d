// Package wire implements the deterministic, canonical binary codec used
// both to hash/sign message prefixes (§3, §6) and to frame messages on the
// network. Field order and integer width are fixed so that
// deserialize(serialize(m)) == m and digests are stable across processes.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tolelom/bftcore/crypto"
)

// Writer builds a canonical byte sequence.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated, encoded byte sequence.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteDigest(d crypto.Digest) {
	w.buf.Write(d[:])
}

// WriteBytes writes a 4-byte big-endian length prefix followed by b.
func (w *Writer) WriteBytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(b)
}

func (w *Writer) WritePublicKey(pk crypto.PublicKey) {
	w.WriteBytes(pk)
}

func (w *Writer) WriteSignature(sig crypto.Signature) {
	w.WriteBytes(sig)
}

// WriteDigests writes a count-prefixed list of digests, in the given order
// (callers that need order-independence, e.g. payload digest sets, must sort
// before calling).
func (w *Writer) WriteDigests(ds []crypto.Digest) {
	w.WriteUint64(uint64(len(ds)))
	for _, d := range ds {
		w.WriteDigest(d)
	}
}

// Reader consumes a canonical byte sequence produced by Writer.
type Reader struct {
	r   *bytes.Reader
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{r: bytes.NewReader(b)}
}

// Err returns the first error encountered by any Read* call, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) ReadUint64() uint64 {
	if r.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.fail(fmt.Errorf("wire: read uint64: %w", err))
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

func (r *Reader) ReadBool() bool {
	if r.err != nil {
		return false
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(fmt.Errorf("wire: read bool: %w", err))
		return false
	}
	return b != 0
}

func (r *Reader) ReadDigest() crypto.Digest {
	var d crypto.Digest
	if r.err != nil {
		return d
	}
	if _, err := io.ReadFull(r.r, d[:]); err != nil {
		r.fail(fmt.Errorf("wire: read digest: %w", err))
	}
	return d
}

const maxFieldLen = 32 * 1024 * 1024

func (r *Reader) ReadBytes() []byte {
	if r.err != nil {
		return nil
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		r.fail(fmt.Errorf("wire: read length prefix: %w", err))
		return nil
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFieldLen {
		r.fail(fmt.Errorf("wire: field length %d exceeds limit", n))
		return nil
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r.r, b); err != nil {
			r.fail(fmt.Errorf("wire: read field body: %w", err))
			return nil
		}
	}
	return b
}

func (r *Reader) ReadPublicKey() crypto.PublicKey {
	return crypto.PublicKey(r.ReadBytes())
}

func (r *Reader) ReadSignature() crypto.Signature {
	return crypto.Signature(r.ReadBytes())
}

func (r *Reader) ReadDigests() []crypto.Digest {
	n := r.ReadUint64()
	if r.err != nil || n == 0 {
		return nil
	}
	ds := make([]crypto.Digest, n)
	for i := range ds {
		ds[i] = r.ReadDigest()
	}
	return ds
}
