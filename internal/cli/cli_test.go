package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lyra-agent/lyra/internal/config"
	"github.com/lyra-agent/lyra/internal/store"
)

func newConfigFile(t *testing.T, values map[string]any) string {
	t.Helper()
	t.Setenv("LYRA_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LYRA_LOGS_DIR", "")
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := config.Create(path, values, false); err != nil {
		t.Fatalf("create config: %v", err)
	}
	return path
}

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	t.Cleanup(func() {
		configFlag = ""
		initDefaults, initForce = false, false
		configShowYAML, configShowReveal = false, false
		auditAction, auditName, auditStatus, auditSession, auditSince = "", "", "", "", ""
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMissingConfigMentionsInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.json")
	_, err := runCLI(t, "", "--config", path, "status")
	if err == nil || !strings.Contains(err.Error(), "lyra init") {
		t.Fatalf("expected a hint to run lyra init, got %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	path := newConfigFile(t, map[string]any{"openai_api_key": "sk-secret-value"})

	out, err := runCLI(t, "", "--config", path, "config", "set", "exec_level", "3")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !strings.Contains(out, "exec_level = 3") {
		t.Fatalf("set output = %q", out)
	}

	out, err = runCLI(t, "", "--config", path, "config", "get", "exec_level")
	if err != nil || strings.TrimSpace(out) != "3" {
		t.Fatalf("get = %q, %v", out, err)
	}

	if _, err := runCLI(t, "", "--config", path, "config", "set", "exec_level", "7"); err == nil {
		t.Fatal("out of range level accepted")
	}
	if _, err := runCLI(t, "", "--config", path, "config", "get", "no_such_key"); err == nil {
		t.Fatal("unknown key accepted")
	}

	out, err = runCLI(t, "", "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(out, "sk-secret-value") {
		t.Fatal("api key printed in clear")
	}
	if !strings.Contains(out, `"exec_level": 3`) {
		t.Fatalf("show output missing exec_level:\n%s", out)
	}
}

func TestOneShotCommand(t *testing.T) {
	path := newConfigFile(t, nil)
	out, err := runCLI(t, "", "--config", path, "lyra", "status")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Status Lyry") || !strings.Contains(out, "Poziom wykonania: 1") {
		t.Fatalf("status output = %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	mem := store.NewMemoryLog(cfg.Resolve(cfg.Snapshot().MemoryFile), store.MemoryOptions{}, discardLogger())
	entries, err := mem.All()
	if err != nil || len(entries) != 1 || entries[0].Backend != "lyra" {
		t.Fatalf("memory after one command = %+v, %v", entries, err)
	}

	out, err = runCLI(t, "", "--config", path, "audit", "list", "--action", "control")
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if !strings.Contains(out, "status") {
		t.Fatalf("audit list = %q", out)
	}
}

func TestREPLSession(t *testing.T) {
	path := newConfigFile(t, nil)
	out, err := runCLI(t, "lyra\npoziom\nexit\nstatus\n", "--config", path)
	if err != nil {
		t.Fatalf("repl: %v", err)
	}
	if !strings.Contains(out, "Słucham") || !strings.Contains(out, "Poziom wykonania: 1") {
		t.Fatalf("repl output = %q", out)
	}
	if !strings.Contains(out, "Do zobaczenia") {
		t.Fatal("exit not acknowledged")
	}
	if strings.Contains(out, "Status Lyry") {
		t.Fatal("input after exit was handled")
	}

	out, err = runCLI(t, "", "--config", path, "memory", "tail", "-n", "5")
	if err != nil {
		t.Fatalf("memory tail: %v", err)
	}
	if got := strings.Count(out, store.EntryText); got != 2 {
		t.Fatalf("memory tail shows %d TEXT entries, want 2:\n%s", got, out)
	}
}

func TestREPLEndsAtEOF(t *testing.T) {
	path := newConfigFile(t, nil)
	out, err := runCLI(t, "status\n", "--config", path)
	if err != nil {
		t.Fatalf("repl: %v", err)
	}
	if !strings.Contains(out, "Status Lyry") {
		t.Fatalf("repl output = %q", out)
	}
}

func TestStateCommands(t *testing.T) {
	path := newConfigFile(t, nil)
	if _, err := runCLI(t, "", "--config", path, "status"); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "", "--config", path, "state", "show")
	if err != nil || !strings.Contains(out, store.KeyKernel) {
		t.Fatalf("state show = %q, %v", out, err)
	}
	if _, err := runCLI(t, "", "--config", path, "state", "clear"); err != nil {
		t.Fatal(err)
	}
	out, _ = runCLI(t, "", "--config", path, "state", "show")
	if strings.TrimSpace(out) != "{}" {
		t.Fatalf("state after clear = %q", out)
	}
}

func TestToolsListMarksBlocked(t *testing.T) {
	path := newConfigFile(t, nil)
	out, err := runCLI(t, "", "--config", path, "tools")
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "NET_FIX") && !strings.Contains(line, "✗") {
			t.Fatalf("NET_FIX should be blocked at level 1: %q", line)
		}
		if strings.Contains(line, "DISK_DIAG") && !strings.Contains(line, "✓") {
			t.Fatalf("DISK_DIAG should be allowed: %q", line)
		}
	}
}

func TestInitDefaults(t *testing.T) {
	t.Setenv("LYRA_CONFIG", "")
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if _, err := runCLI(t, "", "--config", path, "init", "--defaults"); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Snapshot().ExecLevel != 1 {
		t.Fatalf("defaults not written: %+v", cfg.Snapshot())
	}
	if _, err := runCLI(t, "", "--config", path, "init", "--defaults"); err == nil {
		t.Fatal("init overwrote an existing config")
	}
}

func TestLineReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lr := newLineReader(ctx, strings.NewReader("jeden\ndwa\n"))
	for _, want := range []string{"jeden", "dwa"} {
		got, err := lr.Next(ctx)
		if err != nil || got != want {
			t.Fatalf("Next = %q, %v; want %q", got, err, want)
		}
	}
	if _, err := lr.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}

	pr, pw := io.Pipe()
	defer pw.Close()
	blocked := newLineReader(ctx, pr)
	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	if _, err := blocked.Next(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
