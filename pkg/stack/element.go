package stack

import (
	"fmt"

	"github.com/nova-lang/nova/pkg/util/math"
)

type Kind uint8

const (
	KindNumber Kind = iota
	KindOperator
	KindTerminator
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindOperator:
		return "operator"
	case KindTerminator:
		return "terminator"
	}
	return "unknown"
}

// Operator is the closed set of binary operations.
type Operator uint8

const (
	OpAdd Operator = iota
	OpSub
)

func (op Operator) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	}
	return "?"
}

// Apply combines the operand popped first (the right-hand side) with the
// operand popped second (the left-hand side).
func (op Operator) Apply(first, second int32) (int32, error) {
	switch op {
	case OpAdd:
		return math.AddInt32Overflow(second, first)
	case OpSub:
		return math.SubInt32Overflow(second, first)
	}
	return 0, fmt.Errorf("unknown operator %d", op)
}

// Element is one entry of a value stack.
type Element struct {
	Kind  Kind
	Value int32
	Op    Operator
	// Err is set on a terminator whose statement failed before evaluation.
	Err error
}

func Number(v int32) Element {
	return Element{Kind: KindNumber, Value: v}
}

func Op(op Operator) Element {
	return Element{Kind: KindOperator, Op: op}
}

func Terminator(err error) Element {
	return Element{Kind: KindTerminator, Err: err}
}

func (e Element) String() string {
	switch e.Kind {
	case KindNumber:
		return fmt.Sprintf("%d", e.Value)
	case KindOperator:
		return e.Op.String()
	}
	return ";"
}
