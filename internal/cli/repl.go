package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lyra-agent/lyra/internal/agent"
	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/tui"
)

const bannerWidth = 60

func printReply(out io.Writer, r agent.Reply) {
	if r.Text == "" {
		return
	}
	fmt.Fprintln(out, tui.Reply(string(r.Kind), r.Text))
}

// runOnce handles a single command given on the command line.
func runOnce(ctx context.Context, a *app, line string, out io.Writer) error {
	printReply(out, a.pipeline.Handle(ctx, line))
	return nil
}

// runREPL reads lines until exit, EOF or interrupt. Config edits made on
// disk while it runs are picked up by the watcher.
func runREPL(ctx context.Context, a *app, out io.Writer) error {
	w := config.NewWatcher(a.cfg, a.logger, func(config.Config) {
		a.pipeline.Reconfigure()
	})
	if err := w.Start(ctx); err != nil {
		a.logger.Warn("config watcher not started", "error", err)
	}
	defer w.Stop()

	cfg := a.cfg.Snapshot()
	fmt.Fprint(out, tui.Banner(bannerWidth, fmt.Sprintf("model: %s · poziom: %d · sesja: %.8s",
		cfg.LocalModelName(), cfg.ExecLevel, a.pipeline.Session().ID)))
	fmt.Fprintln(out, tui.Muted("Wpisz polecenie albo pytanie. exit kończy sesję."))

	for {
		fmt.Fprint(out, tui.Prompt(a.cfg.Snapshot().UserName))
		line, err := a.lines.Next(ctx)
		if err != nil {
			fmt.Fprintln(out)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				a.logger.Info("session ended", "session", a.pipeline.Session().ID, "handled", a.pipeline.Session().Handled)
				return nil
			}
			return err
		}
		reply := a.pipeline.Handle(ctx, line)
		printReply(out, reply)
		if reply.Exit {
			a.logger.Info("session ended", "session", a.pipeline.Session().ID, "handled", a.pipeline.Session().Handled)
			return nil
		}
	}
}
