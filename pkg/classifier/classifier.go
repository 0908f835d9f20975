// Package classifier turns lexed tokens into stack elements and hands each
// finished statement to the evaluator.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/nova-lang/nova/pkg/grammar"
	"github.com/nova-lang/nova/pkg/pipe"
	"github.com/nova-lang/nova/pkg/stack"
	"github.com/nova-lang/nova/pkg/util/math"
	"go.uber.org/zap"
)

var ErrMissingRecord = errors.New("classifier: token byte without boundary record")

type Stats struct {
	Statements uint64
	Elements   uint64
	Bytes      uint64
}

// Classifier reads the token buffer one byte at a time, guided by the
// boundary queue. Numbers collect on a private work stack, operators on a
// private pending stack; a terminator reorders both into evaluation order
// and moves the statement onto the shared stack in one step.
type Classifier struct {
	in      *pipe.Buffer
	queue   *pipe.BoundaryQueue
	out     *stack.Stack
	work    *stack.Stack
	pending *stack.Stack
	log     *zap.Logger

	el      stack.Element
	started bool
	negate  bool
	// failure poisons the statement under construction.
	failure error

	statements uint64
	elements   uint64
	bytes      uint64
}

func New(in *pipe.Buffer, queue *pipe.BoundaryQueue, out *stack.Stack, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		in:      in,
		queue:   queue,
		out:     out,
		work:    stack.New(),
		pending: stack.New(),
		log:     log,
	}
}

func (c *Classifier) Stats() Stats {
	return Stats{
		Statements: atomic.LoadUint64(&c.statements),
		Elements:   atomic.LoadUint64(&c.elements),
		Bytes:      atomic.LoadUint64(&c.bytes),
	}
}

// Run classifies until the token buffer is closed and drained, then closes
// the shared stack.
func (c *Classifier) Run(ctx context.Context) error {
	defer c.out.Close()

	for {
		span, err := c.in.AcquireRead(ctx)
		if errors.Is(err, io.EOF) {
			if n := c.work.Len() + c.pending.Len(); n > 0 {
				c.log.Warn("unterminated statement dropped", zap.Int("elements", n))
			}
			return nil
		}
		if err != nil {
			return err
		}

		n, err := c.consume(ctx, span)
		c.in.ReleaseRead(n)
		if err != nil {
			return err
		}
	}
}

func (c *Classifier) consume(ctx context.Context, span []byte) (int, error) {
	for i, b := range span {
		r, ok := c.queue.Oldest()
		if !ok || !r.Complete || r.Consumed >= r.Length {
			return i, fmt.Errorf("%w at byte %q", ErrMissingRecord, b)
		}

		if !c.started {
			c.begin(r)
		}
		c.classify(r, b)
		c.queue.AdvanceConsumed(1)
		atomic.AddUint64(&c.bytes, 1)

		if r.Consumed+1 == r.Length {
			if err := c.end(ctx, r); err != nil {
				return i + 1, err
			}
			c.queue.TryRemoveOldest()
		}
	}
	return len(span), nil
}

func (c *Classifier) begin(r pipe.Record) {
	c.started = true
	switch r.Type {
	case pipe.TagNumber:
		c.el = stack.Number(0)
		c.negate = false
	case pipe.TagOperator:
		// earlier operators give way so chains stay left-associative
		c.pending.MoveAll(c.work)
		c.el = stack.Op(stack.OpAdd)
	case pipe.TagTerminator, pipe.TagAbort:
		c.work.MoveAll(c.pending)
		c.el = stack.Terminator(nil)
	}
}

func (c *Classifier) classify(r pipe.Record, b byte) {
	switch r.Type {
	case pipe.TagNumber:
		switch {
		case b == '-':
			c.negate = true
		case grammar.IsDigit(b):
			if c.failure != nil {
				return
			}
			w, err := math.DigitWeight(b-'0', r.Length-r.Consumed-1)
			if err == nil {
				if c.negate {
					c.el.Value, err = math.SubInt32Overflow(c.el.Value, w)
				} else {
					c.el.Value, err = math.AddInt32Overflow(c.el.Value, w)
				}
			}
			if err != nil {
				c.failure = err
			}
		}
	case pipe.TagOperator:
		if b == '-' {
			c.el.Op = stack.OpSub
		}
	}
}

func (c *Classifier) end(ctx context.Context, r pipe.Record) error {
	c.started = false

	switch r.Type {
	case pipe.TagNumber:
		c.work.Push(c.el)
	case pipe.TagOperator:
		c.pending.Push(c.el)
	case pipe.TagTerminator, pipe.TagAbort:
		failure := c.failure
		if r.Type == pipe.TagAbort {
			failure = r.Err
		}
		c.failure = nil
		return c.handOff(ctx, failure)
	default:
		return nil
	}
	atomic.AddUint64(&c.elements, 1)
	return nil
}

// handOff publishes the statement once the evaluator has drained the
// previous one.
func (c *Classifier) handOff(ctx context.Context, failure error) error {
	if failure != nil {
		dropped := c.work.Clear() + c.pending.Clear()
		c.work.Push(stack.Terminator(failure))
		c.log.Debug("statement failed", zap.Error(failure), zap.Int("dropped", dropped))
	} else {
		c.work.Push(stack.Terminator(nil))
		c.pending.MoveAll(c.work)
	}

	if err := c.out.WaitEmpty(ctx); err != nil {
		return err
	}
	n := c.work.Splice(c.out)
	atomic.AddUint64(&c.elements, 1)
	atomic.AddUint64(&c.statements, 1)
	c.log.Debug("statement handed off", zap.Int("elements", n))
	return nil
}
