package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/evaluation"
	"docqa/internal/loader"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/service"
	"docqa/internal/tui"
)

const usage = `Usage:
  docqa ask    [--config=config.yaml] [--no-decompose] file1.txt [file2.md ...]
  docqa eval   [--config=config.yaml] --cases=cases.json file1.txt [...]
  docqa health [--config=config.yaml]`

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "ask":
		err = runAsk(ctx, os.Args[2:])
	case "eval":
		err = runEval(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx, os.Args[2:])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// setup loads the configuration and builds logging, metrics and the service.
func setup(cfgPath string, interactive bool) (*config.AppConfig, *app, *zap.Logger, error) {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if interactive {
		// the TUI owns the terminal, so logs go to a file
		redirectStderrLogs(&cfg.Logging)
	}
	logger := logging.New(cfg.Logging)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer, cfg.Metrics.Namespace, logger)
		serveMetrics(cfg.Metrics.Listen, logger)
	}

	a, err := buildApp(cfg, collector, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, a, logger, nil
}

func redirectStderrLogs(cfg *config.LoggingConfig) {
	dir, err := config.UserDir()
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	paths := make([]string, 0, len(cfg.OutputPaths))
	for _, p := range cfg.OutputPaths {
		if p == "stderr" || p == "stdout" {
			p = filepath.Join(dir, "docqa.log")
		}
		paths = append(paths, p)
	}
	cfg.OutputPaths = paths
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}

func loadInputs(ctx context.Context, svc *service.QAService, inputs []string) (domain.LoadResult, error) {
	docs, err := loader.LoadPaths(inputs)
	if err != nil {
		return domain.LoadResult{}, err
	}
	res := svc.LoadDocuments(ctx, docs)
	if !res.Success {
		return res, fmt.Errorf("load failed: %s", res.Error)
	}
	return res, nil
}

func runAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file (optional; uses ~/.config/docqa/config.yaml if not provided)")
	noDecompose := fs.Bool("no-decompose", false, "Answer without splitting the question into sub-questions")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New(usage)
	}

	cfg, a, logger, err := setup(*cfgPath, true)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { _ = logger.Sync() }()

	res, err := loadInputs(ctx, a.svc, fs.Args())
	if err != nil {
		return err
	}
	opts := askOptions(cfg.Pipeline)
	if *noDecompose {
		opts.UseDecomposition = false
	}
	m := tui.New(ctx, a.svc, opts, res.Summary)
	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	casesPath := fs.String("cases", "", "JSON file with test cases")
	out := fs.String("out", "", "Where to write results (default <evaluation.output_dir>/evaluation_results.json)")
	_ = fs.Parse(args)
	if *casesPath == "" || fs.NArg() == 0 {
		return errors.New(usage)
	}

	cfg, a, logger, err := setup(*cfgPath, false)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { _ = logger.Sync() }()

	cases, err := evaluation.LoadTestCases(*casesPath)
	if err != nil {
		return err
	}
	if _, err := loadInputs(ctx, a.svc, fs.Args()); err != nil {
		return err
	}

	opts := askOptions(cfg.Pipeline)
	opts.UseDecomposition = true
	answerer := evaluation.AnswererFunc(func(ctx context.Context, query string) (*domain.Answer, error) {
		return a.svc.AnswerQuestion(ctx, query, opts)
	})
	ev := evaluation.New(answerer, logger,
		evaluation.WithConcurrency(cfg.Evaluation.Concurrency),
		evaluation.WithAnswerScorer(buildScorer(cfg.Evaluation, a.embedder)),
	)
	if _, err := ev.EvaluateBatch(ctx, cases); err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Join(cfg.Evaluation.OutputDir, "evaluation_results.json")
	}
	if err := ev.SaveResults(path); err != nil {
		return err
	}
	summary, err := ev.Summary()
	if err != nil {
		return err
	}
	logger.Info("evaluation results saved", zap.String("path", path))
	return printJSON(summary)
}

func runHealth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	_ = fs.Parse(args)

	_, a, logger, err := setup(*cfgPath, false)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	h := a.svc.HealthCheck(ctx)
	if err := printJSON(h); err != nil {
		return err
	}
	if h.Status != domain.StatusOperational {
		return fmt.Errorf("system status %s", h.Status)
	}
	return nil
}

func askOptions(p config.PipelineConfig) service.AskOptions {
	return service.AskOptions{
		UseDecomposition: p.UseDecomposition,
		Adaptive:         p.Adaptive,
		NumSubQuestions:  p.NumSubQuestions,
		TopK:             p.TopK,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
