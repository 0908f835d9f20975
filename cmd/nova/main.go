package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid"
	"github.com/nova-lang/nova/pkg/config"
	"github.com/nova-lang/nova/pkg/evaluator"
	"github.com/nova-lang/nova/pkg/history"
	"github.com/nova-lang/nova/pkg/logger"
	"github.com/nova-lang/nova/pkg/pipeline"
	"github.com/nova-lang/nova/pkg/server/evalserver"
	"github.com/nova-lang/nova/pkg/server/lineserver"
	"go.uber.org/zap"
)

const usage = `usage:
  nova [flags]                    evaluate statements from stdin
  nova [flags] serve              run the HTTP API (and the TCP line server if configured)
  nova [flags] history [session]  list journaled sessions or the results of one

flags:
`

func main() {
	cfgPath := flag.String("config", "", "path to nova.yaml (default: ./config/nova.yaml or ./nova.yaml)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(pipeline.Banner())
		return
	}

	if err := run(*cfgPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "nova: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, args []string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hist *history.History
	if cfg.History.Dir != "" {
		if hist, err = history.Open(cfg.History.Dir, logger.Named("history")); err != nil {
			return err
		}
		defer hist.Close()
	}

	if len(args) == 0 {
		return repl(ctx, cfg, hist)
	}
	switch args[0] {
	case "serve":
		return serve(ctx, cfg, hist)
	case "history":
		if hist == nil {
			return errors.New("history.dir is not configured")
		}
		return listHistory(hist, args[1:])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// repl evaluates stdin until EOF or an interrupt.
func repl(ctx context.Context, cfg *config.CfgInfo, hist *history.History) error {
	pcfg := pipeline.Config{
		BufferSize: cfg.Pipeline.BufferSize,
		Format:     cfg.Output.Format,
		Logger:     logger.Named("pipeline"),
	}
	if hist != nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		j, err := hist.Begin(id, "stdin")
		if err != nil {
			return err
		}
		pcfg.ID = id
		pcfg.Handlers = []evaluator.Handler{j}
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}
	if cfg.Pipeline.Banner {
		fmt.Println(pipeline.Banner())
	}

	// stdin reads ignore ctx
	unblock := context.AfterFunc(ctx, func() { os.Stdin.Close() })
	defer unblock()

	err = p.Run(ctx, os.Stdin, os.Stdout)
	logger.Info("session finished", zap.Stringer("session", p.ID()), zap.Any("stats", p.Stats()))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func serve(ctx context.Context, cfg *config.CfgInfo, hist *history.History) error {
	errc := make(chan error, 2)

	hs := evalserver.NewServer(cfg, hist)
	go func() { errc <- hs.RunServer() }()

	var ls *lineserver.Server
	if cfg.Server.LineAddress != "" {
		var err error
		if ls, err = lineserver.New(cfg.Server.LineAddress, cfg, hist); err != nil {
			hs.Shutdown()
			return err
		}
		go func() { errc <- ls.Run() }()
	}
	fmt.Fprintf(os.Stderr, "%s serving on %s\n", pipeline.Banner(), cfg.Server.Address)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	logger.Info("shutting down")
	done := make(chan struct{})
	go func() {
		defer close(done)
		hs.Shutdown()
		if ls != nil {
			ls.Stop()
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}
	return err
}

func listHistory(hist *history.History, args []string) error {
	if len(args) == 0 {
		ss, err := hist.Sessions()
		if err != nil {
			return err
		}
		for _, s := range ss {
			fmt.Printf("%s  %s  %s\n", s.ID, s.Started.Local().Format(time.RFC3339), s.Source)
		}
		return nil
	}

	id, err := uuid.FromString(args[0])
	if err != nil {
		return fmt.Errorf("session id %q: %w", args[0], err)
	}
	rs, err := hist.Results(id)
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.Error != "" {
			fmt.Printf("%d  error: %s\n", r.Seq, r.Error)
		} else {
			fmt.Printf("%d  %d\n", r.Seq, r.Value)
		}
	}
	return nil
}
