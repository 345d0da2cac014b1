package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MaxFileBytes caps what FILE_READ returns.
const MaxFileBytes = 64 * 1024

type fileTools struct {
	files FileTracker
}

// trailing "podsumuj"/"krótko"/"w 3 zdaniach" left over from the command
var fileArgNoise = regexp.MustCompile(`(?i)\s+(i\s+)?(podsumuj|streść|stresc|streszcz).*$|\s+(krótko|krotko|długo|dlugo)\s*$|\s+w\s+\d+\s+zdani(ach|a)\s*$`)

func cleanPathArg(arg string) string {
	p := strings.TrimSpace(arg)
	p = strings.TrimLeft(p, ": ")
	if len(p) >= 2 && (p[0] == '"' || p[0] == '\'') && p[len(p)-1] == p[0] {
		p = p[1 : len(p)-1]
	}
	for i := 0; i < 3; i++ {
		next := strings.TrimSpace(fileArgNoise.ReplaceAllString(p, ""))
		if next == p {
			break
		}
		p = next
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	return p
}

// load reads up to MaxFileBytes of path and remembers it.
func (f fileTools) load(arg string) (path, content string, truncated bool, err error) {
	path = cleanPathArg(arg)
	if path == "" {
		return "", "", false, fmt.Errorf("podaj ścieżkę pliku")
	}
	if abs, aerr := filepath.Abs(path); aerr == nil {
		path = abs
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, "", false, fmt.Errorf("nie znaleziono pliku: %s", path)
		}
		return path, "", false, err
	}
	if info.IsDir() {
		return path, "", false, fmt.Errorf("to jest katalog, nie plik: %s", path)
	}
	fh, err := os.Open(path)
	if err != nil {
		return path, "", false, err
	}
	defer fh.Close()
	data, err := io.ReadAll(io.LimitReader(fh, MaxFileBytes+1))
	if err != nil {
		return path, "", false, err
	}
	if len(data) > MaxFileBytes {
		data = data[:MaxFileBytes]
		truncated = true
	}
	f.files.SetLastFile(path)
	return path, strings.ToValidUTF8(string(data), "�"), truncated, nil
}

func (f fileTools) read(_ context.Context, arg string, _ Shell, log *slog.Logger) (string, error) {
	path, content, truncated, err := f.load(arg)
	if err != nil {
		return "", err
	}
	log.Info("file read", "path", path, "bytes", len(content), "truncated", truncated)
	if truncated {
		return fmt.Sprintf("📄 %s [ucięto do %d bajtów]\n%s", path, MaxFileBytes, content), nil
	}
	return fmt.Sprintf("📄 %s\n%s", path, content), nil
}

// "w 3 zdaniach" overrides the handler's sentence count
var sentenceCount = regexp.MustCompile(`(?i)\bw\s+(\d+)\s+zdani(?:ach|a)\s*$`)

func (f fileTools) summary(sentences int) Handler {
	return func(_ context.Context, arg string, _ Shell, log *slog.Logger) (string, error) {
		count := sentences
		if m := sentenceCount.FindStringSubmatch(arg); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 50 {
				count = n
			}
		}
		path, content, _, err := f.load(arg)
		if err != nil {
			return "", err
		}
		log.Info("file summary", "path", path, "sentences", count)
		return renderSummary(path, content, count), nil
	}
}

func (f fileTools) lastSummary(_ context.Context, _ string, _ Shell, log *slog.Logger) (string, error) {
	last := f.files.LastFile()
	if last == "" {
		return "Nie czytałam jeszcze żadnego pliku. Użyj np. „przeczytaj plik ~/notatki.txt”.", nil
	}
	path, content, _, err := f.load(last)
	if err != nil {
		return "", err
	}
	log.Info("last file summary", "path", path)
	return renderSummary(path, content, 4), nil
}

const summaryPreviewChars = 1500

func renderSummary(path, content string, sentences int) string {
	preview := []rune(content)
	cut := ""
	if len(preview) > summaryPreviewChars {
		preview = preview[:summaryPreviewChars]
		cut = "\n[…]"
	}
	lines := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		lines++
	}
	return fmt.Sprintf("📄 %s (%d linii, %d słów)\n%s%s\n\n📝 Podsumowanie:\n%s",
		path, lines, len(strings.Fields(content)), string(preview), cut, Summarize(content, sentences))
}

// Summarize returns the first n sentences of text, skipping blank lines,
// comment lines and markup-only lines.
func Summarize(text string, n int) string {
	if n <= 0 {
		n = 3
	}
	var prose []string
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "#") || strings.HasPrefix(l, "//") || !strings.ContainsFunc(l, unicode.IsLetter) {
			continue
		}
		prose = append(prose, l)
	}
	joined := strings.Join(prose, " ")
	if joined == "" {
		return "(brak treści do podsumowania)"
	}
	var out []string
	start := 0
	runes := []rune(joined)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
		if len(out) == n {
			break
		}
	}
	if len(out) < n {
		rest := []rune(strings.TrimSpace(string(runes[start:])))
		if len(rest) > 300 {
			rest = append(rest[:300], '…')
		}
		if len(rest) > 0 {
			out = append(out, string(rest))
		}
	}
	return strings.Join(out, " ")
}

func fileEdit(_ context.Context, arg string, _ Shell, _ *slog.Logger) (string, error) {
	return "✏️ Edycja plików przez Lyrę jest wyłączona. Otwórz plik w edytorze, np. `nano <plik>`." +
		"\nPolecenie: " + strings.TrimSpace(arg), nil
}
