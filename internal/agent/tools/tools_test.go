package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lyra-agent/lyra/internal/system/ratelimit"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeShell struct {
	commands []string
	outputs  map[string]string
}

func (f *fakeShell) Run(_ context.Context, command string) string {
	f.commands = append(f.commands, command)
	return f.outputs[command]
}

func TestExecutorRun(t *testing.T) {
	e := NewExecutor(5*time.Second, discard)
	ctx := context.Background()

	if got := e.Run(ctx, "echo hello"); got != "hello" {
		t.Fatalf("echo = %q", got)
	}
	if got := e.Run(ctx, "echo boom; exit 3"); got != "boom\n[exit 3]" {
		t.Fatalf("exit 3 = %q", got)
	}
	if got := e.Run(ctx, "true"); got != "✅ Wykonano pomyślnie: true" {
		t.Fatalf("empty output = %q", got)
	}
	if got := e.Run(ctx, "   "); !strings.HasPrefix(got, "[ERROR]") {
		t.Fatalf("blank command = %q", got)
	}
}

func TestExecutorTimeout(t *testing.T) {
	e := NewExecutor(100*time.Millisecond, discard)
	var seen Result
	e.OnRun = func(r Result) { seen = r }

	got := e.Run(context.Background(), "sleep 5")
	if got != "[TIMEOUT] sleep 5" {
		t.Fatalf("timeout = %q", got)
	}
	if !seen.TimedOut {
		t.Fatal("OnRun did not observe the timeout")
	}
	if seen.Duration > 3*time.Second {
		t.Fatalf("timeout took %v", seen.Duration)
	}
}

func TestBuiltinIsSortedAndComplete(t *testing.T) {
	specs := Builtin(Options{})
	if len(specs) != 21 {
		t.Fatalf("got %d tools, want 21", len(specs))
	}
	seen := map[string]bool{}
	for i, s := range specs {
		if i > 0 && specs[i-1].Name >= s.Name {
			t.Fatalf("not sorted at %s", s.Name)
		}
		if s.Handler == nil {
			t.Fatalf("%s has no handler", s.Name)
		}
		seen[s.Name] = true
	}
	for _, name := range []string{"NET_FIX", "SYSTEM_DIAG", "FILE_READ_SUMMARY_SHORT", "INTERNET_SEARCH", "COMMAND_LIST"} {
		if !seen[name] {
			t.Fatalf("missing %s", name)
		}
	}
}

func TestCapabilityReadOnly(t *testing.T) {
	if !Diagnose.ReadOnly() || !Info.ReadOnly() {
		t.Fatal("diagnose and info are read-only")
	}
	if Fix.ReadOnly() || Action.ReadOnly() {
		t.Fatal("fix and action change the machine")
	}
}

func TestDiskDiagRunsEveryStep(t *testing.T) {
	sh := &fakeShell{outputs: map[string]string{"df -h": "/dev/sda1  50G"}}
	out, err := diskDiag(context.Background(), "", sh, discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(sh.commands) != 3 {
		t.Fatalf("commands = %v", sh.commands)
	}
	if !strings.Contains(out, "=== DISK_DIAG") || !strings.Contains(out, "    /dev/sda1  50G") {
		t.Fatalf("report:\n%s", out)
	}
	if !strings.Contains(out, "(brak danych)") {
		t.Fatalf("empty step not marked:\n%s", out)
	}
}

func TestProposalTools(t *testing.T) {
	ctx := context.Background()
	out, _ := netFix(ctx, "", nil, discard)
	if !strings.HasPrefix(out, "SYSTEM: nmcli networking off") {
		t.Fatalf("NET_FIX = %q", out)
	}
	out, _ = appGuard(ctx, "firefox", nil, discard)
	if out != "SYSTEM: ps -ef | grep -i firefox | grep -v grep" {
		t.Fatalf("APP_GUARD = %q", out)
	}
	out, _ = appControl(ctx, "firefox; rm -rf /", nil, discard)
	if strings.HasPrefix(out, SystemPrefix) {
		t.Fatalf("unsafe app name produced a proposal: %q", out)
	}
	out, _ = appControl(ctx, "  ", nil, discard)
	if !strings.HasPrefix(out, "Podaj nazwę aplikacji") {
		t.Fatalf("empty APP_CONTROL = %q", out)
	}
}

func TestSystemFixPicksPackageManager(t *testing.T) {
	only := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		}
	}
	ctx := context.Background()

	out, err := systemTools{lookPath: only("apt")}.systemFix(ctx, "", nil, discard)
	if err != nil || out != "SYSTEM: sudo apt update && sudo apt upgrade -y" {
		t.Fatalf("apt: %q %v", out, err)
	}
	out, err = systemTools{lookPath: only("dnf")}.systemFix(ctx, "", nil, discard)
	if err != nil || out != "SYSTEM: sudo dnf upgrade -y" {
		t.Fatalf("dnf: %q %v", out, err)
	}
	if _, err := (systemTools{lookPath: only()}).systemFix(ctx, "", nil, discard); err == nil {
		t.Fatal("expected error without a package manager")
	}
	out, _ = systemTools{lookPath: only("pipewire")}.audioFix(ctx, "", nil, discard)
	if !strings.Contains(out, "pipewire-pulse") {
		t.Fatalf("audio fix = %q", out)
	}
}

func TestSystemDiagTime(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 9, 5, 0, 0, time.UTC) // Wednesday
	s := systemTools{now: func() time.Time { return fixed }}
	sh := &fakeShell{}
	out, err := s.systemDiag(context.Background(), "time", sh, discard)
	if err != nil {
		t.Fatal(err)
	}
	if out != "🕒 Jest 09:05, środa 04.03.2026." {
		t.Fatalf("time = %q", out)
	}
	if len(sh.commands) != 0 {
		t.Fatal("time must not run shell commands")
	}

	if _, err := s.systemDiag(context.Background(), "sterowniki", sh, discard); err != nil {
		t.Fatal(err)
	}
	if len(sh.commands) != 2 || sh.commands[0] != "lspci -k" {
		t.Fatalf("driver commands = %v", sh.commands)
	}
}

func TestFileReadAndLastSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	text := "# nagłówek\nPierwsze zdanie. Drugie zdanie! Trzecie zdanie?\nCzwarte zdanie.\n"
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	tracker := &memTracker{}
	f := fileTools{files: tracker}
	ctx := context.Background()

	out, err := f.read(ctx, path, nil, discard)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "📄 "+path+"\n") || !strings.Contains(out, "Czwarte zdanie.") {
		t.Fatalf("read = %q", out)
	}
	if tracker.LastFile() != path {
		t.Fatalf("last file = %q", tracker.LastFile())
	}

	out, err = f.summary(2)(ctx, path+" i podsumuj krótko", nil, discard)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "📝 Podsumowanie:\nPierwsze zdanie. Drugie zdanie!") {
		t.Fatalf("summary = %q", out)
	}

	out, err = f.lastSummary(ctx, "", nil, discard)
	if err != nil || !strings.Contains(out, "Czwarte zdanie.") {
		t.Fatalf("last summary = %q %v", out, err)
	}
}

func TestFileReadErrors(t *testing.T) {
	f := fileTools{files: &memTracker{}}
	ctx := context.Background()
	if _, err := f.read(ctx, "", nil, discard); err == nil {
		t.Fatal("empty path accepted")
	}
	if _, err := f.read(ctx, filepath.Join(t.TempDir(), "missing.txt"), nil, discard); err == nil || !strings.Contains(err.Error(), "nie znaleziono") {
		t.Fatalf("missing file err = %v", err)
	}
	if _, err := f.read(ctx, t.TempDir(), nil, discard); err == nil || !strings.Contains(err.Error(), "katalog") {
		t.Fatalf("dir err = %v", err)
	}
	out, err := f.lastSummary(ctx, "", nil, discard)
	if err != nil || !strings.HasPrefix(out, "Nie czytałam") {
		t.Fatalf("no last file = %q %v", out, err)
	}
}

func TestFileReadTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("a", MaxFileBytes+100)), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := fileTools{files: &memTracker{}}.read(context.Background(), path, nil, discard)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[ucięto do 65536 bajtów]") {
		t.Fatalf("missing truncation marker: %q", out[:80])
	}
}

func TestCleanPathArg(t *testing.T) {
	home, _ := os.UserHomeDir()
	cases := map[string]string{
		"  /etc/hosts ":                    "/etc/hosts",
		`"/tmp/a b.txt"`:                   "/tmp/a b.txt",
		"/tmp/x.md i podsumuj":             "/tmp/x.md",
		"/tmp/x.md i podsumuj krótko":      "/tmp/x.md",
		"/tmp/x.md krótko":                 "/tmp/x.md",
		"/tmp/x.md i streść w 3 zdaniach":  "/tmp/x.md",
		": /tmp/y.txt":                     "/tmp/y.txt",
		"~/notatki.txt":                    filepath.Join(home, "notatki.txt"),
	}
	for in, want := range cases {
		if got := cleanPathArg(in); got != want {
			t.Errorf("cleanPathArg(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize("", 3); got != "(brak treści do podsumowania)" {
		t.Fatalf("empty = %q", got)
	}
	if got := Summarize("Ala ma kota. Kot ma Alę. Koniec.", 2); got != "Ala ma kota. Kot ma Alę." {
		t.Fatalf("two = %q", got)
	}
	if got := Summarize("wersja 1.2 jest gotowa. tak", 5); got != "wersja 1.2 jest gotowa. tak" {
		t.Fatalf("decimal split = %q", got)
	}
	long := strings.Repeat("x", 400)
	if got := []rune(Summarize(long, 1)); len(got) != 301 {
		t.Fatalf("tail cap = %d runes", len(got))
	}
}

func TestCatalogParses(t *testing.T) {
	groups, err := LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 4 {
		t.Fatalf("groups = %d", len(groups))
	}
	out, err := commandList(context.Background(), "", nil, discard)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Dostępne komendy Lyry:", "Sesja:", "`zgoda gpt zawsze|raz|nie|pytaj`", "wyszukaj w internecie"} {
		if !strings.Contains(out, want) {
			t.Fatalf("catalog missing %q:\n%s", want, out)
		}
	}
}

func TestInternetSearch(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		var b strings.Builder
		for i := 1; i <= 7; i++ {
			fmt.Fprintf(&b, `<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%%3A%%2F%%2Fexample.com%%2F%d&amp;rut=x">Wynik <b>%d</b></a>`, i, i)
		}
		fmt.Fprint(w, b.String())
	}))
	defer srv.Close()

	s := searchTool{baseURL: srv.URL + "/html/", client: srv.Client()}
	out, err := s.run(context.Background(), "kernel 6.12", nil, discard)
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "kernel 6.12" || gotUA == "" {
		t.Fatalf("query %q ua %q", gotQuery, gotUA)
	}
	if !strings.HasPrefix(out, "🔎 Wyniki dla: kernel 6.12\n1. Wynik 1\n   https://example.com/1") {
		t.Fatalf("out = %q", out)
	}
	if strings.Contains(out, "6. ") {
		t.Fatalf("more than five results:\n%s", out)
	}
}

func TestInternetSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "pusto" {
			fmt.Fprint(w, "<html></html>")
			return
		}
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	s := searchTool{baseURL: srv.URL, client: srv.Client()}

	if _, err := s.run(context.Background(), "cokolwiek", nil, discard); err == nil {
		t.Fatal("expected error on 503")
	}
	out, err := s.run(context.Background(), "pusto", nil, discard)
	if err != nil || out != "🔎 Brak wyników dla: pusto" {
		t.Fatalf("empty = %q %v", out, err)
	}
	out, _ = s.run(context.Background(), " ", nil, discard)
	if !strings.HasPrefix(out, "Podaj, czego mam szukać") {
		t.Fatalf("blank = %q", out)
	}
}

func TestInternetSearchThrottled(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()
	s := searchTool{baseURL: srv.URL, client: srv.Client(), limiter: ratelimit.New(1, time.Hour)}

	if _, err := s.run(context.Background(), "raz", nil, discard); err != nil {
		t.Fatal(err)
	}
	out, err := s.run(context.Background(), "dwa", nil, discard)
	if err != nil || !strings.HasPrefix(out, "⏳") {
		t.Fatalf("second search = %q, %v", out, err)
	}
	if calls != 1 {
		t.Fatalf("server hit %d times", calls)
	}
}

func TestParseSearchResultsMarkup(t *testing.T) {
	page := `<div class="result results_links"><h2>
<a href='https://example.org/a' data-x="1" class="result__a js-link"><span>Pierwszy</span>
 <b>wynik</b></a></h2>
<a class="result__snippet" href="https://example.org/snippet">opis</a></div>
<a class="result__a" href="">bez adresu</a>
<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Fb&amp;rut=1">Drugi &amp; ostatni</a>`

	got, err := parseSearchResults(strings.NewReader(page), 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []SearchResult{
		{Title: "Pierwszy wynik", URL: "https://example.org/a"},
		{Title: "Drugi & ostatni", URL: "https://example.org/b"},
	}
	if len(got) != len(want) {
		t.Fatalf("results = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if one, _ := parseSearchResults(strings.NewReader(page), 1); len(one) != 1 {
		t.Fatalf("limit ignored: %+v", one)
	}
}
