package stream

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/nova-lang/nova/pkg/pipe"
	"go.uber.org/zap"
)

// Sink drains the result buffer into an io.Writer, flushing after every
// read so results appear as soon as they are produced.
type Sink struct {
	in  *pipe.Buffer
	w   *bufio.Writer
	log *zap.Logger
}

func NewSink(in *pipe.Buffer, w io.Writer, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{in: in, w: bufio.NewWriter(w), log: log}
}

func (s *Sink) Run(ctx context.Context) error {
	for {
		span, err := s.in.AcquireRead(ctx)
		if errors.Is(err, io.EOF) {
			return s.w.Flush()
		}
		if err != nil {
			return err
		}

		n, err := s.w.Write(span)
		s.in.ReleaseRead(n)
		if err == nil {
			err = s.w.Flush()
		}
		if err != nil {
			s.log.Error("sink write failed", zap.Error(err))
			return err
		}
	}
}

// BufferWriter is an io.Writer that blocks until the buffer has room for
// every byte.
type BufferWriter struct {
	ctx context.Context
	buf *pipe.Buffer
}

func NewBufferWriter(ctx context.Context, buf *pipe.Buffer) *BufferWriter {
	return &BufferWriter{ctx: ctx, buf: buf}
}

func (w *BufferWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		span, err := w.buf.AcquireWrite(w.ctx)
		if err != nil {
			return written, err
		}
		k := copy(span, p[written:])
		w.buf.ReleaseWrite(k)
		written += k
	}
	return written, nil
}
