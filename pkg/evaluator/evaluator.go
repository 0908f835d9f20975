// Package evaluator reduces classified statements to integer results.
package evaluator

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/nova-lang/nova/pkg/stack"
	"go.uber.org/zap"
)

var ErrUnreduced = errors.New("evaluator: statement did not reduce to a single value")

// Result is the outcome of one statement. Seq counts statements from 1.
type Result struct {
	Seq   uint64
	Value int32
	Err   error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Handler receives every result in statement order.
type Handler interface {
	HandleResult(Result) error
}

type HandlerFunc func(Result) error

func (f HandlerFunc) HandleResult(r Result) error {
	return f(r)
}

type Stats struct {
	Statements uint64
	Failures   uint64
}

type Evaluator struct {
	main     *stack.Stack
	pending  *stack.Stack
	handlers []Handler
	log      *zap.Logger

	seq      uint64
	failures uint64
}

func New(main *stack.Stack, log *zap.Logger, handlers ...Handler) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{
		main:     main,
		pending:  stack.New(),
		handlers: handlers,
		log:      log,
	}
}

func (e *Evaluator) Stats() Stats {
	return Stats{
		Statements: atomic.LoadUint64(&e.seq),
		Failures:   atomic.LoadUint64(&e.failures),
	}
}

// Run evaluates statements as they arrive until the shared stack is closed.
func (e *Evaluator) Run(ctx context.Context) error {
	for {
		if err := e.main.WaitTerminator(ctx); err != nil {
			if errors.Is(err, stack.ErrClosed) {
				return nil
			}
			return err
		}
		if err := e.statement(); err != nil {
			return err
		}
	}
}

func (e *Evaluator) emit(r Result) error {
	if r.Err != nil {
		atomic.AddUint64(&e.failures, 1)
	}
	for _, h := range e.handlers {
		if err := h.HandleResult(r); err != nil {
			return err
		}
	}
	return nil
}

// statement drains the shared stack down to the next terminator.
func (e *Evaluator) statement() error {
	seq := atomic.AddUint64(&e.seq, 1)
	var failure error
	var results []Result

	for {
		el, ok := e.main.Pop()
		if !ok {
			break
		}

		switch el.Kind {
		case stack.KindOperator:
			e.pending.Push(el)
			continue
		case stack.KindNumber:
			if failure != nil {
				continue
			}
			if e.pending.Len() == 0 {
				results = append(results, Result{Seq: seq, Value: el.Value})
				continue
			}
			failure = e.reduce(el)
			continue
		}

		// terminator
		if el.Err != nil {
			failure = el.Err
		}
		break
	}

	if left := e.pending.Clear(); left > 0 && failure == nil {
		e.log.Warn("statement left unreduced elements", zap.Uint64("seq", seq), zap.Int("pending", left))
		failure = ErrUnreduced
	}
	if failure != nil {
		e.log.Debug("statement failed", zap.Uint64("seq", seq), zap.Error(failure))
		return e.emit(Result{Seq: seq, Err: failure})
	}
	if len(results) > 1 {
		e.log.Warn("statement produced several values", zap.Uint64("seq", seq), zap.Int("values", len(results)))
	}
	for _, r := range results {
		if err := e.emit(r); err != nil {
			return err
		}
	}
	return nil
}

// reduce pushes n onto the pending stack and, when the two numbers on top
// of pending sit right above an operator, applies it and returns the value
// to the main stack.
func (e *Evaluator) reduce(n stack.Element) error {
	prev, _ := e.pending.Peek()
	e.pending.Push(n)

	k := 0
	if prev.Kind == stack.KindNumber {
		for {
			top, ok := e.pending.Peek()
			if !ok || top.Kind != stack.KindNumber {
				break
			}
			e.pending.Pop()
			e.main.Push(top)
			k++
		}
	}

	top, ok := e.pending.Peek()
	if ok && top.Kind == stack.KindOperator && k == 2 {
		e.pending.Pop()
		first, _ := e.main.Pop()
		second, _ := e.main.Pop()
		v, err := top.Op.Apply(first.Value, second.Value)
		if err != nil {
			return err
		}
		e.main.Push(stack.Number(v))
		return nil
	}

	for ; k > 0; k-- {
		back, _ := e.main.Pop()
		e.pending.Push(back)
	}
	return nil
}
