package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// SystemPrefix marks a handler result as a command proposal.
const SystemPrefix = "SYSTEM:"

type step struct {
	title   string
	command string
}

// runReport executes steps in order and renders one section per step.
func runReport(ctx context.Context, name string, sh Shell, log *slog.Logger, header string, steps []step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s – %s ===\n", name, header)
	for _, s := range steps {
		out := strings.TrimRight(sh.Run(ctx, s.command), "\n")
		if strings.TrimSpace(out) == "" {
			out = "(brak danych)"
		}
		fmt.Fprintf(&b, "\n## %s\n$ %s\n%s\n", s.title, s.command, indent(out, "    "))
		log.Debug("tool step", "tool", name, "command", s.command, "bytes", len(out))
	}
	fmt.Fprintf(&b, "\n=== KONIEC %s ===", name)
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func diskDiag(ctx context.Context, _ string, sh Shell, log *slog.Logger) (string, error) {
	return runReport(ctx, "DISK_DIAG", sh, log, "diagnostyka dysków", []step{
		{"lsblk", "lsblk -o NAME,SIZE,FSTYPE,MOUNTPOINT,LABEL"},
		{"df -h", "df -h"},
		{"fstab", "cat /etc/fstab"},
	}), nil
}

func netInfo(ctx context.Context, _ string, sh Shell, log *slog.Logger) (string, error) {
	return runReport(ctx, "NET_INFO", sh, log, "informacje o sieci", []step{
		{"interfejsy", "ip a"},
		{"trasy", "ip r"},
	}), nil
}

func netDiag(ctx context.Context, _ string, sh Shell, log *slog.Logger) (string, error) {
	return runReport(ctx, "NET_DIAG", sh, log, "diagnostyka sieci", []step{
		{"interfejsy", "ip -brief a"},
		{"trasy", "ip r"},
		{"DNS", "resolvectl status 2>/dev/null | head -n 20 || cat /etc/resolv.conf"},
		{"ping IP", "ping -c 2 -W 2 8.8.8.8"},
		{"ping DNS", "ping -c 1 -W 2 google.com"},
	}), nil
}

func netFix(context.Context, string, Shell, *slog.Logger) (string, error) {
	return SystemPrefix + " nmcli networking off && sleep 2 && nmcli networking on && sudo systemctl restart NetworkManager", nil
}

func audioDiag(ctx context.Context, _ string, sh Shell, log *slog.Logger) (string, error) {
	return runReport(ctx, "AUDIO_DIAG", sh, log, "diagnostyka dźwięku", []step{
		{"usługi", "systemctl --user is-active pipewire.service pipewire-pulse.service wireplumber.service pulseaudio.service"},
		{"pactl info", "pactl info"},
		{"wyjścia", "pactl list short sinks"},
		{"karty ALSA", "aplay -l"},
	}), nil
}

func autoOptimize(context.Context, string, Shell, *slog.Logger) (string, error) {
	return SystemPrefix + " sync && echo 3 | sudo tee /proc/sys/vm/drop_caches", nil
}

func logAnalyze(ctx context.Context, _ string, sh Shell, log *slog.Logger) (string, error) {
	return runReport(ctx, "LOG_ANALYZE", sh, log, "błędy z dziennika", []step{
		{"journalctl -p 3", "journalctl -p 3 -b -n 50 --no-pager"},
	}), nil
}

func desktopDiag(ctx context.Context, _ string, sh Shell, log *slog.Logger) (string, error) {
	return runReport(ctx, "DESKTOP_DIAG", sh, log, "środowisko graficzne", []step{
		{"sesja", `echo "desktop=$XDG_CURRENT_DESKTOP session=$XDG_SESSION_TYPE"`},
		{"procesy", "pgrep -a 'cinnamon|muffin|nemo|plasmashell|gnome-shell|xfce4-session' || echo 'brak procesów środowiska'"},
		{"ostatnie błędy", "grep -iE 'cinnamon|muffin|nemo|xorg|mutter|kwin' ~/.xsession-errors 2>/dev/null | tail -n 10 || echo 'brak błędów'"},
	}), nil
}

// appName keeps only characters that are safe inside a shell word.
var appName = regexp.MustCompile(`^[\p{L}\p{N}._+-]+$`)

func firstWord(arg string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(arg))
	if len(fields) == 0 || !appName.MatchString(fields[0]) {
		return "", false
	}
	return fields[0], true
}

func appGuard(_ context.Context, arg string, _ Shell, _ *slog.Logger) (string, error) {
	app, ok := firstWord(arg)
	if !ok {
		return "Podaj nazwę aplikacji, np. „monitoruj firefox”.", nil
	}
	return fmt.Sprintf("%s ps -ef | grep -i %s | grep -v grep", SystemPrefix, app), nil
}

func appControl(_ context.Context, arg string, _ Shell, _ *slog.Logger) (string, error) {
	app, ok := firstWord(arg)
	if !ok {
		return "Podaj nazwę aplikacji, np. „uruchom firefox”.", nil
	}
	return fmt.Sprintf("%s nohup %s >/dev/null 2>&1 &", SystemPrefix, app), nil
}

// systemTools need the clock and the package manager lookup.
type systemTools struct {
	now      func() time.Time
	lookPath func(string) (string, error)
}

var polishWeekdays = [...]string{"niedziela", "poniedziałek", "wtorek", "środa", "czwartek", "piątek", "sobota"}

func (s systemTools) systemDiag(ctx context.Context, arg string, sh Shell, log *slog.Logger) (string, error) {
	switch strings.TrimSpace(arg) {
	case "time":
		now := s.now()
		return fmt.Sprintf("🕒 Jest %s, %s %s.", now.Format("15:04"), polishWeekdays[now.Weekday()], now.Format("02.01.2006")), nil
	case "sterowniki":
		return runReport(ctx, "SYSTEM_DIAG", sh, log, "sterowniki", []step{
			{"lspci -k", "lspci -k"},
			{"moduły jądra", "lsmod | head -n 40"},
		}), nil
	}
	return runReport(ctx, "SYSTEM_DIAG", sh, log, "stan systemu", []step{
		{"jądro", "uname -a"},
		{"czas pracy", "uptime"},
		{"pamięć", "free -h"},
		{"procesy", "top -b -n 1 | head -n 15"},
	}), nil
}

func (s systemTools) systemFix(context.Context, string, Shell, *slog.Logger) (string, error) {
	if _, err := s.lookPath("apt"); err == nil {
		return SystemPrefix + " sudo apt update && sudo apt upgrade -y", nil
	}
	if _, err := s.lookPath("dnf"); err == nil {
		return SystemPrefix + " sudo dnf upgrade -y", nil
	}
	return "", fmt.Errorf("nie znaleziono menedżera pakietów (apt/dnf)")
}

func (s systemTools) audioFix(context.Context, string, Shell, *slog.Logger) (string, error) {
	if _, err := s.lookPath("pipewire"); err == nil {
		return SystemPrefix + " systemctl --user restart pipewire pipewire-pulse wireplumber", nil
	}
	return SystemPrefix + " systemctl --user restart pulseaudio", nil
}
