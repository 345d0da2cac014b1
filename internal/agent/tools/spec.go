package tools

import (
	"context"
	"log/slog"
	"net/http"
	"os/exec"
	"sort"
	"time"

	"github.com/lyra-agent/lyra/internal/system/ratelimit"
)

// Capability tags which exec levels may run a tool.
type Capability string

const (
	Diagnose Capability = "diagnose"
	Fix      Capability = "fix"
	Info     Capability = "info"
	Action   Capability = "action"
)

// ReadOnly reports whether the capability never changes the machine.
func (c Capability) ReadOnly() bool {
	return c == Diagnose || c == Info
}

// Handler is a tool body. A returned string starting with "SYSTEM:" is a
// command proposal, not output.
type Handler func(ctx context.Context, arg string, sh Shell, log *slog.Logger) (string, error)

// Spec describes one tool.
type Spec struct {
	Name        string
	Capability  Capability
	Description string
	Handler     Handler
}

// FileTracker remembers the last file read by FILE_READ.
type FileTracker interface {
	LastFile() string
	SetLastFile(path string)
}

// Limiter throttles outbound requests per host.
type Limiter interface {
	Allow(key string) bool
}

// Options are the collaborators of the built-in handlers.
type Options struct {
	SearchURL  string
	HTTPClient *http.Client
	Files      FileTracker
	Now        func() time.Time
	LookPath   func(string) (string, error)

	// SearchLimit defaults to 10 searches per minute per host.
	SearchLimit Limiter
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if o.Files == nil {
		o.Files = &memTracker{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	if o.SearchLimit == nil {
		o.SearchLimit = ratelimit.New(10, time.Minute)
	}
	return o
}

type memTracker struct{ path string }

func (m *memTracker) LastFile() string        { return m.path }
func (m *memTracker) SetLastFile(path string) { m.path = path }

// Builtin returns every shipped tool sorted by name.
func Builtin(opts Options) []Spec {
	opts = opts.withDefaults()
	files := fileTools{files: opts.Files}
	search := searchTool{baseURL: opts.SearchURL, client: opts.HTTPClient, limiter: opts.SearchLimit}
	sys := systemTools{now: opts.Now, lookPath: opts.LookPath}

	specs := []Spec{
		{"DISK_DIAG", Diagnose, "Dyski, partycje i wolne miejsce", diskDiag},
		{"NET_INFO", Info, "Interfejsy i trasy sieciowe", netInfo},
		{"NET_DIAG", Diagnose, "Diagnoza sieci: interfejsy, trasy, DNS, ping", netDiag},
		{"NET_FIX", Fix, "Restart połączeń sieciowych", netFix},
		{"AUDIO_DIAG", Diagnose, "Diagnoza dźwięku PipeWire/PulseAudio/ALSA", audioDiag},
		{"AUDIO_FIX", Fix, "Restart usług dźwięku", sys.audioFix},
		{"SYSTEM_DIAG", Diagnose, "Stan systemu, godzina, sterowniki", sys.systemDiag},
		{"SYSTEM_FIX", Fix, "Aktualizacja pakietów systemu", sys.systemFix},
		{"AUTO_OPTIMIZE", Fix, "Zwolnienie pamięci podręcznej", autoOptimize},
		{"APP_GUARD", Action, "Sprawdzenie, czy aplikacja działa", appGuard},
		{"APP_CONTROL", Action, "Uruchomienie aplikacji w tle", appControl},
		{"LOG_ANALYZE", Diagnose, "Błędy z dziennika systemowego", logAnalyze},
		{"DESKTOP_DIAG", Diagnose, "Diagnoza środowiska graficznego", desktopDiag},
		{"FILE_READ", Info, "Odczyt pliku", files.read},
		{"FILE_READ_SUMMARY", Info, "Odczyt pliku z podsumowaniem", files.summary(4)},
		{"FILE_READ_SUMMARY_SHORT", Info, "Odczyt pliku z krótkim podsumowaniem", files.summary(2)},
		{"FILE_READ_SUMMARY_LONG", Info, "Odczyt pliku z długim podsumowaniem", files.summary(8)},
		{"LAST_FILE_SUMMARY", Info, "Podsumowanie ostatnio czytanego pliku", files.lastSummary},
		{"FILE_EDIT", Action, "Edycja pliku (wyłączona)", fileEdit},
		{"COMMAND_LIST", Info, "Lista komend Lyry", commandList},
		{"INTERNET_SEARCH", Info, "Wyszukiwanie w internecie", search.run},
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
