// Package grammar holds the frozen language of signed integer statements as
// a state transition table driven by one character of lookahead.
package grammar

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Empty is the index of any byte outside the alphabet.
const Empty = -1

var ErrLexicalReject = errors.New("lexical reject")

// Table maps a state and an input symbol to the ordered list of candidate
// next states. It is immutable once built.
type Table struct {
	alphabet []byte
	cells    [][][]State
	contexts []Context
	end      int
}

// Build compiles productions over alphabet. contexts gives the context tag
// of every state and fixes the number of states.
func Build(alphabet string, productions []Production, contexts []Context) (*Table, error) {
	if len(alphabet) == 0 {
		return nil, errors.New("grammar: empty alphabet")
	}
	for i := 1; i < len(alphabet); i++ {
		if alphabet[i-1] >= alphabet[i] {
			return nil, fmt.Errorf("grammar: alphabet not sorted at %q", alphabet[i])
		}
	}

	t := &Table{
		alphabet: []byte(alphabet),
		cells:    make([][][]State, len(contexts)),
		contexts: append([]Context(nil), contexts...),
	}
	for s := range t.cells {
		t.cells[s] = make([][]State, len(alphabet))
	}
	t.end = t.Index(';')

	for _, p := range productions {
		if int(p.From) >= len(contexts) || int(p.To) >= len(contexts) {
			return nil, fmt.Errorf("grammar: production %s: state out of range", p)
		}
		i := t.Index(p.Symbol)
		if i == Empty {
			return nil, fmt.Errorf("grammar: production %s: symbol not in alphabet", p)
		}
		t.cells[p.From][i] = append(t.cells[p.From][i], p.To)
	}
	return t, nil
}

var (
	novaOnce  sync.Once
	novaTable *Table
)

// Nova returns the process-wide table of the statement language.
func Nova() *Table {
	novaOnce.Do(func() {
		t, err := Build(Alphabet, Productions(), novaContexts)
		if err != nil {
			panic(err)
		}
		novaTable = t
	})
	return novaTable
}

// Index returns the position of c in the alphabet, or Empty.
func (t *Table) Index(c byte) int {
	i := sort.Search(len(t.alphabet), func(i int) bool { return t.alphabet[i] >= c })
	if i < len(t.alphabet) && t.alphabet[i] == c {
		return i
	}
	return Empty
}

// Symbol is the inverse of Index.
func (t *Table) Symbol(i int) byte {
	return t.alphabet[i]
}

func (t *Table) Alphabet() string {
	return string(t.alphabet)
}

func (t *Table) States() int {
	return len(t.cells)
}

func (t *Table) lookahead(c byte) int {
	if IsEnd(c) {
		return t.end
	}
	return t.Index(c)
}

// Candidates returns the next states for c in state s, in production order.
func (t *Table) Candidates(s State, c byte) []State {
	i := t.Index(c)
	if i == Empty || int(s) >= len(t.cells) {
		return nil
	}
	return t.cells[s][i]
}

func (t *Table) Context(s State) Context {
	if int(s) >= len(t.contexts) {
		return ContextNone
	}
	return t.contexts[s]
}

// Accepts reports whether a statement may end in state s.
func (t *Table) Accepts(s State) bool {
	return t.end != Empty && int(s) < len(t.cells) && len(t.cells[s][t.end]) > 0
}

// Step picks the transition for cur in state s: the first candidate from
// which the lookahead byte can continue.
func (t *Table) Step(s State, cur, lookahead byte) (State, bool) {
	la := t.lookahead(lookahead)
	if la == Empty {
		return s, false
	}
	for _, c := range t.Candidates(s, cur) {
		if len(t.cells[c][la]) > 0 {
			return c, true
		}
	}
	return s, false
}

// NextContext returns the context the lookahead byte will be lexed in when
// the lexer is in state s.
func (t *Table) NextContext(s State, lookahead byte) Context {
	if IsEnd(lookahead) {
		return ContextTerminator
	}
	cs := t.Candidates(s, lookahead)
	if len(cs) == 0 {
		return ContextNone
	}
	return t.Context(cs[0])
}
