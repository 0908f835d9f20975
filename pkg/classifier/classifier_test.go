package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nova-lang/nova/pkg/grammar"
	"github.com/nova-lang/nova/pkg/pipe"
	"github.com/nova-lang/nova/pkg/stack"
	"github.com/nova-lang/nova/pkg/util/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type token struct {
	text string
	tag  pipe.Tag
	err  error
}

func num(s string) token { return token{text: s, tag: pipe.TagNumber} }
func op(s string) token  { return token{text: s, tag: pipe.TagOperator} }
func term() token        { return token{text: ";", tag: pipe.TagTerminator} }

// classify feeds pre-lexed tokens to a classifier and returns each handed-off
// statement in pop order.
func classify(t *testing.T, tokens ...token) ([][]stack.Element, Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in, err := pipe.NewBuffer(256)
	require.NoError(t, err)
	q := pipe.NewBoundaryQueue()
	for _, tk := range tokens {
		span, err := in.AcquireWrite(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(span), len(tk.text))
		in.ReleaseWrite(copy(span, tk.text))

		q.Extend(len(tk.text))
		if tk.tag == pipe.TagAbort {
			q.Fail(tk.err)
		} else {
			q.CloseAndAppend(tk.tag)
		}
	}
	in.Close()

	out := stack.New()
	c := New(in, q, out, nil)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var statements [][]stack.Element
	for {
		if err := out.WaitTerminator(ctx); err != nil {
			require.ErrorIs(t, err, stack.ErrClosed)
			break
		}
		var st []stack.Element
		for {
			e, ok := out.Pop()
			if !ok {
				break
			}
			st = append(st, e)
		}
		statements = append(statements, st)
	}
	require.NoError(t, <-done)
	return statements, c.Stats()
}

func TestClassifyLayout(t *testing.T) {
	assert := assert.New(t)

	sts, stats := classify(t,
		num("5"), term(),
		num("10"), op("-"), num("4"), op("-"), num("1"), term(),
		num("-7"), op("+"), num("2"), term(),
		num("007"), term(),
	)
	assert.Equal([][]stack.Element{
		{stack.Number(5), stack.Terminator(nil)},
		{stack.Op(stack.OpSub), stack.Number(1), stack.Op(stack.OpSub), stack.Number(4), stack.Number(10), stack.Terminator(nil)},
		{stack.Op(stack.OpAdd), stack.Number(2), stack.Number(-7), stack.Terminator(nil)},
		{stack.Number(7), stack.Terminator(nil)},
	}, sts)
	assert.Equal(uint64(4), stats.Statements)
	assert.Equal(uint64(len("5;10-4-1;-7+2;007;")), stats.Bytes)
}

func TestClassifySignedOperand(t *testing.T) {
	sts, _ := classify(t, num("5"), op("+"), num("-3"), term())
	assert.Equal(t, [][]stack.Element{
		{stack.Op(stack.OpAdd), stack.Number(-3), stack.Number(5), stack.Terminator(nil)},
	}, sts)
}

func TestClassifyExtremes(t *testing.T) {
	assert := assert.New(t)

	sts, _ := classify(t,
		num("2147483647"), term(),
		num("-2147483648"), term(),
		num("2147483648"), term(),
		num("1"), term(),
	)
	require.Len(t, sts, 4)
	assert.Equal([]stack.Element{stack.Number(math.MAXINT32), stack.Terminator(nil)}, sts[0])
	assert.Equal([]stack.Element{stack.Number(math.MININT32), stack.Terminator(nil)}, sts[1])

	// the failed statement collapses to its terminator
	if assert.Len(sts[2], 1) {
		assert.Equal(stack.KindTerminator, sts[2][0].Kind)
		assert.ErrorIs(sts[2][0].Err, math.ErrNumericOverflow)
	}
	assert.Equal([]stack.Element{stack.Number(1), stack.Terminator(nil)}, sts[3])
}

func TestClassifyAbort(t *testing.T) {
	assert := assert.New(t)

	reject := errors.New("statement 1, column 3: unexpected '+'")
	sts, stats := classify(t,
		num("1"), op("+"), token{text: ";", tag: pipe.TagAbort, err: reject},
		num("3"), term(),
	)
	require.Len(t, sts, 2)
	if assert.Len(sts[0], 1) {
		assert.Equal(stack.KindTerminator, sts[0][0].Kind)
		assert.Equal(reject, sts[0][0].Err)
	}
	assert.Equal([]stack.Element{stack.Number(3), stack.Terminator(nil)}, sts[1])
	assert.Equal(uint64(2), stats.Statements)
}

func TestClassifyEmptyInput(t *testing.T) {
	sts, stats := classify(t)
	assert.Empty(t, sts)
	assert.Zero(t, stats.Statements)
}

func TestClassifyMissingRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in, err := pipe.NewBuffer(8)
	require.NoError(t, err)
	span, err := in.AcquireWrite(ctx)
	require.NoError(t, err)
	in.ReleaseWrite(copy(span, "7"))
	in.Close()

	out := stack.New()
	err = New(in, pipe.NewBoundaryQueue(), out, nil).Run(ctx)
	assert.ErrorIs(t, err, ErrMissingRecord)
	assert.ErrorIs(t, out.WaitTerminator(ctx), stack.ErrClosed)
}

func TestClassifyMatchesGrammarDigits(t *testing.T) {
	// every digit byte of the alphabet contributes its face value
	for _, b := range []byte(grammar.Alphabet) {
		if !grammar.IsDigit(b) {
			continue
		}
		sts, _ := classify(t, num(string(b)), term())
		assert.Equal(t, [][]stack.Element{{stack.Number(int32(b - '0')), stack.Terminator(nil)}}, sts)
	}
}
