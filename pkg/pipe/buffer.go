// Package pipe provides the flow-controlled byte buffer that connects the
// interpreter stages, and the queue describing token boundaries inside it.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrClosed          = errors.New("pipe: buffer closed")
	ErrInvalidCapacity = errors.New("pipe: invalid capacity")
)

type bufState uint8

const (
	stateEmpty bufState = iota
	stateNormal
	stateFull
)

func (s bufState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateNormal:
		return "normal"
	case stateFull:
		return "full"
	}
	return "unknown"
}

// handshake keeps producer and consumer in lockstep after one of them has
// woken the other.
//
//	Idle          -- ReleaseWrite(n>0), reader asleep --> ReaderPending
//	ReaderPending -- reader resumes in AcquireRead    --> Idle
//	Idle          -- ReleaseRead(n>0), writer asleep  --> WriterPending
//	WriterPending -- writer resumes in AcquireWrite   --> Idle
type handshake uint8

const (
	handshakeIdle handshake = iota
	handshakeReaderPending
	handshakeWriterPending
)

// Buffer is a fixed-capacity circular byte buffer shared by exactly one
// producer and one consumer.
//
// A side acquires a contiguous span, works on it without holding the lock,
// then releases the number of bytes it wrote or read. The producer only ever
// touches free bytes and the consumer only filled bytes, and cursors move
// under the lock, so both sides run concurrently.
type Buffer struct {
	mu        sync.Mutex
	readCond  *sync.Cond
	writeCond *sync.Cond

	data  []byte
	rd    int
	wr    int
	state bufState
	hs    handshake

	sleepingReaders int
	sleepingWriters int

	closed bool
}

// NewBuffer creates an empty buffer of the given capacity.
func NewBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, size)
	}
	b := &Buffer{
		data:  make([]byte, size),
		state: stateEmpty,
		hs:    handshakeIdle,
	}
	b.readCond = sync.NewCond(&b.mu)
	b.writeCond = sync.NewCond(&b.mu)
	return b, nil
}

// Cap returns the capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of bytes written and not yet read.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateEmpty:
		return 0
	case stateFull:
		return len(b.data)
	}
	if b.wr > b.rd {
		return b.wr - b.rd
	}
	return len(b.data) - b.rd + b.wr
}

// Close marks the producer side as finished. Readers drain what is left and
// then receive io.EOF.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.hs = handshakeIdle
	b.readCond.Broadcast()
	b.writeCond.Broadcast()
	b.mu.Unlock()
}

func (b *Buffer) wake(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.readCond.Broadcast()
		b.writeCond.Broadcast()
		b.mu.Unlock()
	})
}

// AcquireWrite blocks until there is free space and returns the contiguous
// writable span starting at the write cursor.
func (b *Buffer) AcquireWrite(ctx context.Context) ([]byte, error) {
	stop := b.wake(ctx)
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.state == stateFull && !b.closed && ctx.Err() == nil {
		b.sleepingWriters++
		b.writeCond.Wait()
		b.sleepingWriters--
	}
	for b.hs == handshakeReaderPending && !b.closed && ctx.Err() == nil {
		b.writeCond.Wait()
	}
	if b.hs == handshakeWriterPending {
		b.hs = handshakeIdle
		b.readCond.Signal()
	}

	if b.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if b.wr < b.rd {
		return b.data[b.wr:b.rd], nil
	}
	return b.data[b.wr:], nil
}

// ReleaseWrite publishes n bytes of the span returned by AcquireWrite.
func (b *Buffer) ReleaseWrite(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 {
		return
	}
	b.wr += n
	if b.wr >= len(b.data) {
		b.wr = 0
	}
	if b.wr == b.rd {
		b.state = stateFull
	} else {
		b.state = stateNormal
	}
	if b.sleepingReaders > 0 {
		b.hs = handshakeReaderPending
		b.readCond.Signal()
	}
}

// AcquireRead blocks until data is available and returns the contiguous
// readable span starting at the read cursor. Once the buffer is closed and
// drained it returns io.EOF.
func (b *Buffer) AcquireRead(ctx context.Context) ([]byte, error) {
	stop := b.wake(ctx)
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.state == stateEmpty && !b.closed && ctx.Err() == nil {
		b.sleepingReaders++
		b.readCond.Wait()
		b.sleepingReaders--
	}
	for b.hs == handshakeWriterPending && !b.closed && ctx.Err() == nil {
		b.readCond.Wait()
	}
	if b.hs == handshakeReaderPending {
		b.hs = handshakeIdle
		b.writeCond.Signal()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.state == stateEmpty {
		return nil, io.EOF
	}

	if b.rd < b.wr {
		return b.data[b.rd:b.wr], nil
	}
	return b.data[b.rd:], nil
}

// ReleaseRead frees n bytes of the span returned by AcquireRead.
func (b *Buffer) ReleaseRead(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 {
		return
	}
	b.rd += n
	if b.rd >= len(b.data) {
		b.rd = 0
	}
	if b.rd == b.wr {
		b.state = stateEmpty
	} else {
		b.state = stateNormal
	}
	if b.sleepingWriters > 0 {
		b.hs = handshakeWriterPending
		b.writeCond.Signal()
	}
}
