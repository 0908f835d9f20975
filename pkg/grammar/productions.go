package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

type State uint8

const (
	StateStart State = iota
	// StateLast is the final digit of the statement's last operand.
	StateLast
	StateSign
	// StateDigits is a digit with more digits of the same number after it.
	StateDigits
	// StateOperand is the final digit of an operand followed by an operator.
	StateOperand
	StateOperator
	StateEnd

	numStates
)

var stateNames = [numStates]string{
	StateStart:    "start",
	StateLast:     "last",
	StateSign:     "sign",
	StateDigits:   "digits",
	StateOperand:  "operand",
	StateOperator: "operator",
	StateEnd:      "end",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

func parseState(s string) (State, error) {
	s = strings.TrimSpace(s)
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown state %q", s)
	}
	return State(n), nil
}

type Context uint8

const (
	ContextNone Context = iota
	ContextNumber
	ContextOperator
	ContextTerminator
)

func (c Context) String() string {
	switch c {
	case ContextNone:
		return "none"
	case ContextNumber:
		return "number"
	case ContextOperator:
		return "operator"
	case ContextTerminator:
		return "terminator"
	}
	return "unknown"
}

// Production is a single rule "From -> Symbol, To".
type Production struct {
	From   State
	Symbol byte
	To     State
}

func (p Production) String() string {
	return fmt.Sprintf("%s -> %c, %s", p.From, p.Symbol, p.To)
}

// ParseProduction parses the "L -> s, R" form. States may be given by name
// or by number.
func ParseProduction(line string) (Production, error) {
	lhs, rhs, ok := strings.Cut(line, "->")
	if !ok {
		return Production{}, fmt.Errorf("production %q: missing ->", line)
	}
	sym, to, ok := strings.Cut(rhs, ",")
	if !ok {
		return Production{}, fmt.Errorf("production %q: missing ,", line)
	}
	sym = strings.TrimSpace(sym)
	if len(sym) != 1 {
		return Production{}, fmt.Errorf("production %q: symbol must be one character", line)
	}

	from, err := parseState(lhs)
	if err != nil {
		return Production{}, fmt.Errorf("production %q: %w", line, err)
	}
	next, err := parseState(to)
	if err != nil {
		return Production{}, fmt.Errorf("production %q: %w", line, err)
	}
	return Production{From: from, Symbol: sym[0], To: next}, nil
}

const (
	Alphabet = "+-0123456789;"

	digits = "0123456789"
	signs  = "+-"
)

// rule is a production over a set of symbols.
type rule struct {
	from    State
	symbols string
	to      State
}

// Candidate order matters: the lexer takes the first candidate that the
// lookahead agrees with.
var novaRules = []rule{
	{StateStart, digits, StateLast},
	{StateStart, digits, StateDigits},
	{StateStart, digits, StateOperand},
	{StateStart, signs, StateSign},

	{StateSign, digits, StateLast},
	{StateSign, digits, StateDigits},
	{StateSign, digits, StateOperand},

	{StateDigits, digits, StateLast},
	{StateDigits, digits, StateDigits},
	{StateDigits, digits, StateOperand},

	{StateOperand, signs, StateOperator},

	{StateOperator, digits, StateLast},
	{StateOperator, digits, StateDigits},
	{StateOperator, digits, StateOperand},
	{StateOperator, signs, StateSign},

	{StateLast, ";", StateEnd},
}

var novaContexts = []Context{
	StateStart:    ContextNone,
	StateLast:     ContextNumber,
	StateSign:     ContextNumber,
	StateDigits:   ContextNumber,
	StateOperand:  ContextNumber,
	StateOperator: ContextOperator,
	StateEnd:      ContextTerminator,
}

// Productions expands the language rules into single-symbol productions.
func Productions() []Production {
	var ps []Production
	for _, r := range novaRules {
		for i := 0; i < len(r.symbols); i++ {
			ps = append(ps, Production{From: r.from, Symbol: r.symbols[i], To: r.to})
		}
	}
	return ps
}
