// Package stream connects the pipeline buffers to the outside world: the
// source adapter feeds program text in, the sink drains encoded results out.
package stream

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/nova-lang/nova/pkg/pipe"
	"go.uber.org/zap"
)

// Source copies an io.Reader into the source buffer. Line ends become NUL
// statement terminators and carriage returns are dropped.
type Source struct {
	r   *bufio.Reader
	out *pipe.Buffer
	log *zap.Logger

	open bool
}

func NewSource(r io.Reader, out *pipe.Buffer, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{r: bufio.NewReader(r), out: out, log: log}
}

// Run reads until EOF, then closes the source buffer.
func (s *Source) Run(ctx context.Context) error {
	defer s.out.Close()

	for {
		span, err := s.out.AcquireWrite(ctx)
		if err != nil {
			return err
		}

		n, err := s.fill(span)
		s.out.ReleaseWrite(n)

		if errors.Is(err, io.EOF) {
			return s.terminate(ctx)
		}
		if err != nil {
			s.log.Error("source read failed", zap.Error(err))
			return err
		}
	}
}

// fill copies bytes into span. It returns early at a line end, or when the
// reader has nothing buffered, so the lexer sees each line without waiting
// for more input.
func (s *Source) fill(span []byte) (int, error) {
	n := 0
	for n < len(span) {
		c, err := s.r.ReadByte()
		if err != nil {
			return n, err
		}
		switch c {
		case '\r':
			continue
		case '\n':
			span[n] = 0
			n++
			s.open = false
			return n, nil
		}
		span[n] = c
		n++
		s.open = c != ';'
		if s.r.Buffered() == 0 {
			return n, nil
		}
	}
	return n, nil
}

// terminate ends an unterminated last line.
func (s *Source) terminate(ctx context.Context) error {
	if !s.open {
		return nil
	}
	span, err := s.out.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	span[0] = 0
	s.out.ReleaseWrite(1)
	s.open = false
	return nil
}
