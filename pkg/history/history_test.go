package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/nova-lang/nova/pkg/evaluator"
	"github.com/nova-lang/nova/pkg/pipeline"
	"github.com/nova-lang/nova/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordsResults(t *testing.T) {
	assert := assert.New(t)

	h, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer h.Close()

	id := uuid.Must(uuid.NewV4())
	j, err := h.Begin(id, "test")
	require.NoError(t, err)

	assert.NoError(j.HandleResult(evaluator.Result{Seq: 1, Value: 8}))
	assert.NoError(j.HandleResult(evaluator.Result{Seq: 2, Err: errors.New("numeric overflow")}))
	assert.NoError(j.HandleResult(evaluator.Result{Seq: 300, Value: -5}))

	rs, err := h.Results(id)
	assert.NoError(err)
	assert.Equal([]stream.Record{
		{Seq: 1, Value: 8},
		{Seq: 2, Error: "numeric overflow"},
		{Seq: 300, Value: -5},
	}, rs)

	ss, err := h.Sessions()
	assert.NoError(err)
	if assert.Len(ss, 1) {
		assert.Equal(id, ss[0].ID)
		assert.Equal("test", ss[0].Source)
		assert.WithinDuration(time.Now(), ss[0].Started, time.Minute)
	}
}

func TestJournalSessionsAreSeparate(t *testing.T) {
	assert := assert.New(t)

	h, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer h.Close()

	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	ja, err := h.Begin(a, "a")
	require.NoError(t, err)
	jb, err := h.Begin(b, "b")
	require.NoError(t, err)

	assert.NoError(ja.HandleResult(evaluator.Result{Seq: 1, Value: 1}))
	assert.NoError(jb.HandleResult(evaluator.Result{Seq: 1, Value: 2}))

	ra, err := h.Results(a)
	assert.NoError(err)
	assert.Equal([]stream.Record{{Seq: 1, Value: 1}}, ra)

	ss, err := h.Sessions()
	assert.NoError(err)
	assert.Len(ss, 2)

	none, err := h.Results(uuid.Must(uuid.NewV4()))
	assert.NoError(err)
	assert.Empty(none)
}

func TestJournalAsPipelineHandler(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer h.Close()

	id := uuid.Must(uuid.NewV4())
	j, err := h.Begin(id, "eval")
	require.NoError(t, err)

	cfg := pipeline.DefaultConfig()
	cfg.Handlers = append(cfg.Handlers, j)
	_, err = pipeline.Eval(ctx, cfg, "5+3;10-4-1;x;")
	require.NoError(t, err)

	rs, err := h.Results(id)
	assert.NoError(err)
	if assert.Len(rs, 3) {
		assert.Equal(stream.Record{Seq: 1, Value: 8}, rs[0])
		assert.Equal(stream.Record{Seq: 2, Value: 5}, rs[1])
		assert.Contains(rs[2].Error, "lexical reject")
	}
}
