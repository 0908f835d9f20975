package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nova-lang/nova/pkg/evaluator"
	"github.com/nova-lang/nova/pkg/grammar"
	"github.com/nova-lang/nova/pkg/pipe"
	"github.com/nova-lang/nova/pkg/util/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, size int, program string) []evaluator.Result {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.BufferSize = size
	results, err := Eval(ctx, cfg, program)
	require.NoError(t, err)
	return results
}

func values(results []evaluator.Result) []int32 {
	var vs []int32
	for _, r := range results {
		if r.Err == nil {
			vs = append(vs, r.Value)
		}
	}
	return vs
}

func TestEvalArithmetic(t *testing.T) {
	cases := []struct {
		program string
		want    int32
	}{
		{"5;", 5},
		{"5+3;", 8},
		{"10-4-1;", 5},
		{"-7+2;", -5},
		{"007;", 7},
		{"+7;", 7},
		{"5+-3;", 2},
		{"5--3;", 8},
		{"1+2+3-4;", 2},
		{"100-1+10;", 109},
		{"-2147483648;", math.MININT32},
		{"2147483647;", math.MAXINT32},
		{"0000000000001;", 1},
		{"42", 42},
	}

	for _, c := range cases {
		for _, size := range []int{1, 2, 1024} {
			got := eval(t, size, c.program)
			if assert.Len(t, got, 1, "%q cap %d", c.program, size) {
				assert.NoError(t, got[0].Err, c.program)
				assert.Equal(t, c.want, got[0].Value, "%q cap %d", c.program, size)
				assert.Equal(t, uint64(1), got[0].Seq)
			}
		}
	}
}

func TestEvalEmptyInput(t *testing.T) {
	assert := assert.New(t)

	assert.Empty(eval(t, 1024, ""))
	assert.Empty(eval(t, 1024, ";;\n\n"))
}

func TestEvalStatementsInOrder(t *testing.T) {
	assert := assert.New(t)

	got := eval(t, 3, "5;5+3;10-4-1\n-7+2\n007;")
	assert.Equal([]int32{5, 8, 5, -5, 7}, values(got))
	for i, r := range got {
		assert.Equal(uint64(i+1), r.Seq)
	}
}

func TestEvalIdempotent(t *testing.T) {
	assert := assert.New(t)

	program := strings.Repeat("12-3+4;", 50)
	first := eval(t, 7, program)
	assert.Len(first, 50)
	for _, r := range first {
		assert.Equal(int32(13), r.Value)
	}

	second := eval(t, 1024, program)
	assert.Equal(values(first), values(second))
}

func TestEvalOverflow(t *testing.T) {
	assert := assert.New(t)

	got := eval(t, 1024, "2147483647+1;2147483648;-2147483649;99999999999;1;")
	if assert.Len(got, 5) {
		for _, r := range got[:4] {
			assert.True(errors.Is(r.Err, math.ErrNumericOverflow), "seq %d: %v", r.Seq, r.Err)
		}
		assert.Equal(evaluator.Result{Seq: 5, Value: 1}, got[4])
	}
}

func TestEvalLexicalRecovery(t *testing.T) {
	assert := assert.New(t)

	got := eval(t, 4, "1+;2 3;x\n4;5++6;7")
	if assert.Len(got, 6) {
		assert.True(errors.Is(got[0].Err, grammar.ErrLexicalReject))
		assert.True(errors.Is(got[1].Err, grammar.ErrLexicalReject))
		assert.True(errors.Is(got[2].Err, grammar.ErrLexicalReject))
		assert.Equal(evaluator.Result{Seq: 4, Value: 4}, got[3])
		assert.Equal(evaluator.Result{Seq: 5, Value: 11}, got[4])
		assert.Equal(evaluator.Result{Seq: 6, Value: 7}, got[5])
	}
}

func TestRunWritesText(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := New(Config{BufferSize: 2, Format: "text"})
	require.NoError(t, err)

	var out bytes.Buffer
	assert.NoError(p.Run(ctx, strings.NewReader("5+3\n1-;\n-7+2\n"), &out))
	assert.Equal("8\nerror: lexical reject: statement 2, column 2: unexpected '-'\n-5\n", out.String())

	stats := p.Stats()
	assert.Equal(uint64(3), stats.Lexer.Statements)
	assert.Equal(uint64(1), stats.Lexer.Rejects)
	assert.Equal(uint64(3), stats.Evaluator.Statements)
	assert.Equal(uint64(1), stats.Evaluator.Failures)
}

func TestRunJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := New(Config{Format: "json"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, p.Run(ctx, strings.NewReader("1+1;"), &out))
	assert.Equal(t, "{\"seq\":1,\"value\":2}\n", out.String())
}

func TestLexerAndClassifierAgree(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := New(Config{BufferSize: 5})
	require.NoError(t, err)
	require.NoError(t, p.Run(ctx, strings.NewReader("123+45-6;7;x1;-0-0\n"), &bytes.Buffer{}))

	stats := p.Stats()
	assert.Equal(stats.Lexer.Bytes, stats.Classifier.Bytes)
	assert.Equal(stats.Lexer.Statements, stats.Classifier.Statements)
	assert.Equal(stats.Lexer.Tokens, stats.Classifier.Elements)

	// every record was consumed and removed; only the open one is left
	assert.Equal(1, p.queue.Len())
	r, _ := p.queue.Oldest()
	assert.Equal(pipe.Record{Offset: int64(stats.Lexer.Bytes)}, r)
}

func TestNewFailsAtomically(t *testing.T) {
	assert := assert.New(t)

	_, err := New(Config{BufferSize: -1})
	assert.True(errors.Is(err, pipe.ErrInvalidCapacity))

	_, err = New(Config{Format: "xml"})
	assert.Error(err)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p, err := New(DefaultConfig())
	require.NoError(t, err)

	r, w := io.Pipe()
	defer w.Close()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, r, &bytes.Buffer{}) }()

	_, err = w.Write([]byte("1+1\n"))
	require.NoError(t, err)
	cancel()
	// the source blocks in Read until the writer goes away
	w.Close()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}

func TestBanner(t *testing.T) {
	assert.Equal(t, "Nova 0.0.0", Banner())
}
