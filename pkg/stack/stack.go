// Package stack implements the thread-safe LIFO of values, operators and
// terminators that carries classified statements to the evaluator.
package stack

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("stack: closed")

type Stack struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []Element
	terminators int
	closed      bool
}

func New() *Stack {
	s := &Stack{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Stack) push(e Element) {
	s.items = append(s.items, e)
	if e.Kind == KindTerminator {
		s.terminators++
	}
}

func (s *Stack) pop() Element {
	n := len(s.items) - 1
	e := s.items[n]
	s.items[n] = Element{}
	s.items = s.items[:n]
	if e.Kind == KindTerminator {
		s.terminators--
	}
	return e
}

func (s *Stack) Push(e Element) {
	s.mu.Lock()
	s.push(e)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Pop removes the top element. ok is false on an empty stack.
func (s *Stack) Pop() (e Element, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return Element{}, false
	}
	e = s.pop()
	if len(s.items) == 0 {
		s.cond.Broadcast()
	}
	return e, true
}

func (s *Stack) Peek() (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return Element{}, false
	}
	return s.items[len(s.items)-1], true
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// Clear drops every element and returns how many there were.
func (s *Stack) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = s.items[:0]
	s.terminators = 0
	s.cond.Broadcast()
	return n
}

func (s *Stack) take() []Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.items
	s.items = nil
	s.terminators = 0
	s.cond.Broadcast()
	return items
}

// MoveAll pops every element and pushes it onto dst, reversing their order.
func (s *Stack) MoveAll(dst *Stack) int {
	items := s.take()

	dst.mu.Lock()
	for i := len(items) - 1; i >= 0; i-- {
		dst.push(items[i])
	}
	dst.cond.Broadcast()
	dst.mu.Unlock()
	return len(items)
}

// Splice moves every element onto dst in one step, keeping their order: the
// top of s becomes the top of dst.
func (s *Stack) Splice(dst *Stack) int {
	items := s.take()

	dst.mu.Lock()
	for _, e := range items {
		dst.push(e)
	}
	dst.cond.Broadcast()
	dst.mu.Unlock()
	return len(items)
}

func (s *Stack) wait(ctx context.Context, ready func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for !ready() {
		if s.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// WaitTerminator blocks until at least one terminator is on the stack. It
// returns ErrClosed once the stack is closed and holds no terminator.
func (s *Stack) WaitTerminator(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wait(ctx, func() bool { return s.terminators > 0 })
}

// WaitEmpty blocks until the stack holds no elements.
func (s *Stack) WaitEmpty(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wait(ctx, func() bool { return len(s.items) == 0 })
}

// Close wakes every waiter; nothing more will be pushed.
func (s *Stack) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
