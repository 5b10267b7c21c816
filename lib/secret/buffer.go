// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrTooLarge is returned by NewFromReader when the source exceeds the
// caller's limit.
var ErrTooLarge = errors.New("secret: source exceeds size limit")

// Buffer is locked, dump-excluded memory holding secret bytes. It must
// not be copied. After Close every accessor except Len and Close panics.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	length int
	closed bool
}

// New allocates a zero-filled buffer of size bytes. The caller must
// Close it.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap failed: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock failed: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP) failed: %w", err)
	}

	return &Buffer{data: data, length: size}, nil
}

// NewFromBytes copies source into a new buffer and zeroes source.
//
// Empty secrets are legal (an empty file is a valid secret), so an
// empty source yields a one-byte backing region with Len 0.
func NewFromBytes(source []byte) (*Buffer, error) {
	size := len(source)
	if size == 0 {
		size = 1
	}
	buffer, err := New(size)
	if err != nil {
		Zero(source)
		return nil, err
	}
	copy(buffer.data, source)
	buffer.length = len(source)
	Zero(source)
	return buffer, nil
}

// NewFromReader reads all of r into a new buffer. At most limit bytes
// are accepted; a longer source returns ErrTooLarge. The intermediate
// heap copy is zeroed before returning.
func NewFromReader(r io.Reader, limit int) (*Buffer, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		Zero(data)
		return nil, fmt.Errorf("secret: reading source: %w", err)
	}
	if len(data) > limit {
		Zero(data)
		return nil, ErrTooLarge
	}
	return NewFromBytes(data)
}

// Bytes returns the secret bytes. The slice aliases the locked region
// and must not be retained past Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.data[:b.length]
}

// String returns a heap copy of the secret. Use it only where an API
// demands a string (age identity parsing).
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic("secret: read from closed buffer")
	}
	return string(b.data[:b.length])
}

// Len returns the number of secret bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// WriteTo writes the secret to w without an intermediate heap copy.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic("secret: read from closed buffer")
	}
	n, err := w.Write(b.data[:b.length])
	return int64(n), err
}

// Close zeroes the buffer and releases the mapping. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	Zero(b.data)

	var firstError error
	if err := unix.Munlock(b.data); err != nil {
		firstError = fmt.Errorf("secret: munlock failed: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: munmap failed: %w", err)
	}
	b.data = nil
	return firstError
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	clear(data)
}
