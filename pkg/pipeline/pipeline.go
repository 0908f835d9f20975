// Package pipeline wires the interpreter stages together: source adapter,
// lexer, classifier, evaluator and sink, connected by flow buffers, the
// boundary queue and the shared value stack.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/nova-lang/nova/pkg/classifier"
	"github.com/nova-lang/nova/pkg/evaluator"
	"github.com/nova-lang/nova/pkg/grammar"
	"github.com/nova-lang/nova/pkg/lexer"
	"github.com/nova-lang/nova/pkg/pipe"
	"github.com/nova-lang/nova/pkg/stack"
	"github.com/nova-lang/nova/pkg/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	Version       = "0.0.0"
	DefaultBuffer = 1024
)

// Banner is printed by the binary before the first prompt.
func Banner() string {
	return "Nova " + Version
}

type Config struct {
	// ID names the session in logs; a random one is used when zero.
	ID         uuid.UUID
	BufferSize int
	// Format selects the sink encoding: text, json or cbor.
	Format   string
	Logger   *zap.Logger
	Handlers []evaluator.Handler
}

func DefaultConfig() Config {
	return Config{BufferSize: DefaultBuffer, Format: stream.FormatText}
}

type Stats struct {
	Lexer      lexer.Stats
	Classifier classifier.Stats
	Evaluator  evaluator.Stats
}

// Pipeline owns every structure shared between stages. It runs once.
type Pipeline struct {
	id  uuid.UUID
	cfg Config
	log *zap.Logger

	source  *pipe.Buffer
	tokens  *pipe.Buffer
	results *pipe.Buffer
	queue   *pipe.BoundaryQueue
	handoff *stack.Stack

	lexer      *lexer.Lexer
	classifier *classifier.Classifier
	evaluator  *evaluator.Evaluator
	enc        stream.Encoder
}

// New builds every shared structure up front; if any of them cannot be
// created nothing is returned and no stage has started.
func New(cfg Config) (*Pipeline, error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if _, err := stream.NewEncoder(cfg.Format, io.Discard); err != nil {
		return nil, err
	}

	id := cfg.ID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV4(); err != nil {
			return nil, fmt.Errorf("pipeline id: %w", err)
		}
	}

	p := &Pipeline{
		id:      id,
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("session", id.String())),
		queue:   pipe.NewBoundaryQueue(),
		handoff: stack.New(),
	}
	var err error
	for _, b := range []**pipe.Buffer{&p.source, &p.tokens, &p.results} {
		if *b, err = pipe.NewBuffer(cfg.BufferSize); err != nil {
			return nil, err
		}
	}

	p.lexer = lexer.New(p.source, p.tokens, p.queue, grammar.Nova(), p.log.Named("lexer"))
	p.classifier = classifier.New(p.tokens, p.queue, p.handoff, p.log.Named("classifier"))

	handlers := append([]evaluator.Handler{evaluator.HandlerFunc(p.encode)}, cfg.Handlers...)
	p.evaluator = evaluator.New(p.handoff, p.log.Named("evaluator"), handlers...)
	return p, nil
}

func (p *Pipeline) ID() uuid.UUID {
	return p.id
}

// Run feeds r through the stages and writes encoded results to w. It
// returns when the input is exhausted and every result has been written,
// or when ctx is cancelled or a stage fails.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)

	enc, err := stream.NewEncoder(p.cfg.Format, stream.NewBufferWriter(ctx, p.results))
	if err != nil {
		return err
	}
	p.enc = enc

	source := stream.NewSource(r, p.source, p.log.Named("source"))
	sink := stream.NewSink(p.results, w, p.log.Named("sink"))

	p.log.Debug("pipeline started", zap.Int("buffer", p.cfg.BufferSize), zap.String("format", p.cfg.Format))

	g.Go(func() error { return source.Run(ctx) })
	g.Go(func() error { return p.lexer.Run(ctx) })
	g.Go(func() error { return p.classifier.Run(ctx) })
	g.Go(func() error {
		defer p.results.Close()
		return p.evaluator.Run(ctx)
	})
	g.Go(func() error { return sink.Run(ctx) })

	err = g.Wait()
	p.log.Debug("pipeline stopped", zap.Error(err), zap.Any("stats", p.Stats()))
	return err
}

func (p *Pipeline) encode(r evaluator.Result) error {
	return p.enc.Encode(r)
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Lexer:      p.lexer.Stats(),
		Classifier: p.classifier.Stats(),
		Evaluator:  p.evaluator.Stats(),
	}
}

// Eval runs program on a fresh pipeline and returns its results in order.
func Eval(ctx context.Context, cfg Config, program string) ([]evaluator.Result, error) {
	var results []evaluator.Result
	cfg.Handlers = append(cfg.Handlers[:len(cfg.Handlers):len(cfg.Handlers)], evaluator.HandlerFunc(func(r evaluator.Result) error {
		results = append(results, r)
		return nil
	}))

	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx, strings.NewReader(program), io.Discard); err != nil {
		return nil, err
	}
	return results, nil
}
