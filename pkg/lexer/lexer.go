// Package lexer runs the first interpreter stage: it validates source bytes
// against the grammar table, forwards accepted bytes to the token buffer and
// records where every token starts and ends.
package lexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/nova-lang/nova/pkg/grammar"
	"github.com/nova-lang/nova/pkg/pipe"
	"go.uber.org/zap"
)

type Stats struct {
	Statements uint64
	Tokens     uint64
	Bytes      uint64
	Rejects    uint64
}

// Lexer reads the source buffer and writes the token buffer. A token's
// bytes reach the token buffer only after its boundary record is closed, so
// the classifier always sees final token lengths.
type Lexer struct {
	in    *pipe.Buffer
	out   *pipe.Buffer
	queue *pipe.BoundaryQueue
	table *grammar.Table
	log   *zap.Logger

	state grammar.State
	// cur is a source byte still waiting for its lookahead.
	cur    byte
	hasCur bool
	offset int64

	tok     []byte
	ready   []byte
	stmtLen int

	// skipping is set after a reject until the statement ends.
	skipping bool
	reject   error

	statements uint64
	tokens     uint64
	bytes      uint64
	rejects    uint64
}

func New(in, out *pipe.Buffer, queue *pipe.BoundaryQueue, table *grammar.Table, log *zap.Logger) *Lexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lexer{
		in:    in,
		out:   out,
		queue: queue,
		table: table,
		log:   log,
		state: grammar.StateStart,
	}
}

func (l *Lexer) Stats() Stats {
	return Stats{
		Statements: atomic.LoadUint64(&l.statements),
		Tokens:     atomic.LoadUint64(&l.tokens),
		Bytes:      atomic.LoadUint64(&l.bytes),
		Rejects:    atomic.LoadUint64(&l.rejects),
	}
}

// Run lexes until the source buffer is closed and drained, then closes the
// token buffer.
func (l *Lexer) Run(ctx context.Context) error {
	defer l.out.Close()

	for {
		src, err := l.in.AcquireRead(ctx)
		if errors.Is(err, io.EOF) {
			l.finish()
			return l.flush(ctx)
		}
		if err != nil {
			return err
		}

		n := l.lex(src)
		l.in.ReleaseRead(n)

		if err := l.flush(ctx); err != nil {
			return err
		}
	}
}

// finish ends a statement left open at end of input as if a terminator
// followed it.
func (l *Lexer) finish() {
	if l.hasCur || l.stmtLen > 0 || l.skipping {
		l.lex([]byte{0})
	}
}

// flush writes every byte of closed tokens to the token buffer.
func (l *Lexer) flush(ctx context.Context) error {
	for len(l.ready) > 0 {
		dst, err := l.out.AcquireWrite(ctx)
		if err != nil {
			return err
		}
		k := copy(dst, l.ready)
		l.out.ReleaseWrite(k)
		l.ready = l.ready[k:]
	}
	l.ready = l.ready[:0]
	return nil
}

// lex consumes src and returns how many bytes it used. A trailing byte
// without lookahead is kept for the next call.
func (l *Lexer) lex(src []byte) int {
	n := 0
	for {
		var c byte
		if l.hasCur {
			c = l.cur
		} else {
			if n >= len(src) {
				return n
			}
			c = src[n]
			n++
			l.offset++
		}

		if grammar.IsEnd(c) {
			l.hasCur = false
			l.endStatement(c)
			continue
		}
		if l.skipping {
			l.hasCur = false
			continue
		}
		if n >= len(src) {
			l.cur, l.hasCur = c, true
			return n
		}
		l.hasCur = false

		la := src[n]
		next, ok := l.table.Step(l.state, c, la)
		if !ok {
			l.rejectAt(c, la)
			continue
		}

		l.tok = append(l.tok, c)
		l.stmtLen++
		if ctxNow := l.table.Context(next); l.table.NextContext(next, la) != ctxNow {
			l.closeToken(ctxNow)
		}
		l.state = next
	}
}

func (l *Lexer) closeToken(c grammar.Context) {
	if len(l.tok) == 0 {
		return
	}
	l.queue.Extend(len(l.tok))
	l.queue.CloseAndAppend(tagOf(c))
	l.ready = append(l.ready, l.tok...)
	atomic.AddUint64(&l.tokens, 1)
	atomic.AddUint64(&l.bytes, uint64(len(l.tok)))
	l.tok = l.tok[:0]
}

func (l *Lexer) rejectAt(c, la byte) {
	bad, col := c, l.stmtLen+1
	if !grammar.IsEnd(la) && l.table.Index(la) == grammar.Empty {
		bad, col = la, col+1
	}
	stmt := atomic.LoadUint64(&l.statements) + 1

	l.skipping = true
	l.tok = l.tok[:0]
	l.reject = fmt.Errorf("%w: statement %d, column %d: unexpected %q",
		grammar.ErrLexicalReject, stmt, col, bad)
	atomic.AddUint64(&l.rejects, 1)
	l.log.Warn("lexical reject",
		zap.Uint64("statement", stmt),
		zap.Int("column", col),
		zap.Int64("offset", l.offset),
		zap.String("char", string(bad)),
		zap.String("state", l.state.String()),
	)
}

// endStatement closes the current token and appends the terminator record.
// Empty statements leave no trace.
func (l *Lexer) endStatement(c byte) {
	defer func() {
		l.state = grammar.StateStart
		l.stmtLen = 0
		l.skipping = false
		l.reject = nil
	}()

	if l.stmtLen == 0 && !l.skipping {
		return
	}
	if !l.skipping && !l.table.Accepts(l.state) {
		l.rejectAt(c, c)
	}
	if !l.skipping {
		l.closeToken(l.table.Context(l.state))
	}

	l.queue.Extend(1)
	if l.skipping {
		l.queue.Fail(l.reject)
	} else {
		l.queue.CloseAndAppend(pipe.TagTerminator)
	}
	l.ready = append(l.ready, c)
	atomic.AddUint64(&l.tokens, 1)
	atomic.AddUint64(&l.bytes, 1)
	atomic.AddUint64(&l.statements, 1)
}

func tagOf(c grammar.Context) pipe.Tag {
	switch c {
	case grammar.ContextNumber:
		return pipe.TagNumber
	case grammar.ContextOperator:
		return pipe.TagOperator
	case grammar.ContextTerminator:
		return pipe.TagTerminator
	}
	return pipe.TagNone
}
