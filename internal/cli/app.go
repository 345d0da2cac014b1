package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/lyra-agent/lyra/internal/agent"
	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/infra"
	syslogger "github.com/lyra-agent/lyra/internal/system/logger"
	"github.com/lyra-agent/lyra/internal/system/tasklog"
)

// loadConfig opens the config selected by --config or the default lookup.
func loadConfig() (*config.Store, error) {
	path := strings.TrimSpace(configFlag)
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrNotFound) {
		return nil, fmt.Errorf("brak pliku konfiguracji %s (uruchom `lyra init`)", path)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openLogs starts the file logger in the configured logs_dir.
func openLogs(cfg *config.Store) (*syslogger.Manager, error) {
	verbose := verboseFlag || infra.IsTruthyEnv("LYRA_DEBUG")
	lc := syslogger.DefaultConfig()
	lc.Dir = cfg.LogsDir()
	lc.StderrEnabled = verbose
	if verbose {
		lc.Level = slog.LevelDebug
	}
	mgr, err := syslogger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return mgr, nil
}

func openAudit(cfg *config.Store) (*tasklog.Store, error) {
	store, err := tasklog.Open(tasklog.DefaultConfig(cfg.LogsDir()))
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return store, nil
}

type appOptions struct {
	interactive bool
	in          io.Reader
	out         io.Writer
}

// app holds everything one lyra invocation needs.
type app struct {
	cfg      *config.Store
	logs     *syslogger.Manager
	audit    *tasklog.Store
	logger   *slog.Logger
	pipeline *agent.Pipeline
	lines    *lineReader
	out      io.Writer
	cancel   context.CancelFunc
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	if opts.in == nil {
		opts.in = os.Stdin
	}
	if opts.out == nil {
		opts.out = os.Stdout
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logs, err := openLogs(cfg)
	if err != nil {
		return nil, err
	}
	logger := logs.NewLogger()

	a := &app{cfg: cfg, logs: logs, logger: logger, out: opts.out}
	a.audit, err = openAudit(cfg)
	if err != nil {
		// The agent works without an audit trail.
		logger.Warn("audit log unavailable", "error", err)
		a.audit = nil
	}

	var prompter agent.Prompter
	if opts.interactive || canPrompt(opts.in) {
		var readCtx context.Context
		readCtx, a.cancel = context.WithCancel(ctx)
		a.lines = newLineReader(readCtx, opts.in)
		prompter = a.prompter()
	}
	a.pipeline = agent.Build(cfg, prompter, a.audit, logger)
	a.pipeline.Start()
	return a, nil
}

// canPrompt reports whether r is a terminal the user can answer from.
func canPrompt(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// prompter asks questions on the same input stream the REPL reads.
func (a *app) prompter() agent.Prompter {
	return agent.PrompterFunc(func(ctx context.Context, question string) (string, error) {
		fmt.Fprint(a.out, question)
		return a.lines.Next(ctx)
	})
}

func (a *app) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("close audit log", "error", err)
		}
	}
	_ = a.logs.Close()
}

// lineReader turns a blocking reader into lines that can be awaited with
// a context.
type lineReader struct {
	lines chan string
	err   error
}

func newLineReader(ctx context.Context, r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string)}
	go func() {
		defer close(lr.lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lr.lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		lr.err = sc.Err()
	}()
	return lr
}

// Next returns the next line, io.EOF at the end of input or the context
// error when ctx is done first.
func (lr *lineReader) Next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-lr.lines:
		if !ok {
			if lr.err != nil {
				return "", lr.err
			}
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
