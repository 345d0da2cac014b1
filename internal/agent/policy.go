package agent

import (
	"fmt"
	"strings"

	"github.com/lyra-agent/lyra/internal/agent/tools"
)

// Risk of a shell command.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	}
	return "low"
}

// Verdict is what the exec policy allows for one command.
type Verdict int

const (
	VerdictRun Verdict = iota
	VerdictConfirm
	VerdictRefuse
)

// ExecPolicy applies exec_level to tools and SYSTEM: directives.
//
//	level 1: read-only tools; only low-risk commands, the rest refused
//	level 2: all tools; medium and high risk need confirmation
//	level 3: all tools; only high risk needs confirmation
type ExecPolicy struct {
	Level int
}

// ClampLevel keeps a level inside 1..3.
func ClampLevel(level int) int {
	switch {
	case level < 1:
		return 1
	case level > 3:
		return 3
	}
	return level
}

// AllowsTool reports whether a tool with the capability may run.
func (p ExecPolicy) AllowsTool(c tools.Capability) bool {
	return ClampLevel(p.Level) > 1 || c.ReadOnly()
}

// ToolRefusal is the hint shown for a tool blocked by the level.
func (p ExecPolicy) ToolRefusal(name string, c tools.Capability) string {
	return fmt.Sprintf("⚠️ Poziom %d: narzędzie %s (%s) jest zablokowane. Dozwolone są tylko narzędzia diagnostyczne. Użyj: lyra poziom 2 lub 3.",
		ClampLevel(p.Level), name, c)
}

// Directive decides how a proposed shell command is handled.
func (p ExecPolicy) Directive(command string) (Verdict, Risk) {
	risk := CommandRisk(command)
	switch ClampLevel(p.Level) {
	case 1:
		if risk == RiskLow {
			return VerdictRun, risk
		}
		return VerdictRefuse, risk
	case 2:
		if risk == RiskLow {
			return VerdictRun, risk
		}
		return VerdictConfirm, risk
	default:
		if risk == RiskHigh {
			return VerdictConfirm, risk
		}
		return VerdictRun, risk
	}
}

// CommandRisk is the highest risk of any segment of command. Commands not
// known to be read-only are at least medium risk.
func CommandRisk(command string) Risk {
	if strings.Contains(command, "`") || strings.Contains(command, "$(") || strings.Contains(command, "${") {
		return RiskHigh
	}
	if strings.Contains(strings.ReplaceAll(command, " ", ""), ":(){:|:&};:") {
		return RiskHigh
	}
	if writesFile(command) || runsInBackground(command) {
		return RiskHigh
	}
	segments := splitCommandSegments(command)
	if len(segments) == 0 {
		return RiskMedium
	}
	highest := RiskLow
	for _, seg := range segments {
		if r := commandRiskLevel(seg); r > highest {
			highest = r
		}
	}
	return highest
}

var highRiskBases = map[string]struct{}{
	"rm": {}, "mkfs": {}, "dd": {}, "shutdown": {}, "reboot": {}, "halt": {}, "poweroff": {},
	"sudo": {}, "su": {}, "doas": {}, "pkexec": {}, "chown": {}, "chmod": {}, "chgrp": {},
	"useradd": {}, "userdel": {}, "usermod": {}, "passwd": {}, "mount": {}, "umount": {},
	"kill": {}, "pkill": {}, "killall": {}, "systemctl": {}, "service": {},
	"apt": {}, "apt-get": {}, "dnf": {}, "yum": {}, "pacman": {}, "zypper": {}, "snap": {}, "flatpak": {},
	"iptables": {}, "ufw": {}, "firewall-cmd": {}, "fdisk": {}, "parted": {}, "wipefs": {},
	"modprobe": {}, "rmmod": {}, "insmod": {}, "crontab": {}, "shred": {}, "truncate": {},
	"mv": {}, "ln": {}, "install": {},
	// Wrappers run another command we cannot see.
	"sh": {}, "bash": {}, "zsh": {}, "dash": {}, "ksh": {}, "fish": {},
	"xargs": {}, "nice": {}, "ionice": {}, "timeout": {}, "nohup": {}, "stdbuf": {},
	"watch": {}, "exec": {}, "eval": {}, "command": {}, "builtin": {}, "time": {},
	"setsid": {}, "chroot": {}, "unshare": {}, "busybox": {}, "source": {}, ".": {},
}

// lowRiskBases never change the machine with the arguments they usually get.
var lowRiskBases = map[string]struct{}{
	"ls": {}, "ll": {}, "df": {}, "du": {}, "lsblk": {}, "blkid": {}, "findmnt": {}, "free": {},
	"uptime": {}, "uname": {}, "whoami": {}, "id": {}, "groups": {}, "pwd": {}, "echo": {},
	"printf": {}, "cat": {}, "head": {}, "tail": {}, "less": {}, "more": {}, "wc": {},
	"grep": {}, "egrep": {}, "fgrep": {}, "rg": {}, "sort": {}, "uniq": {}, "cut": {}, "tr": {},
	"stat": {}, "file": {}, "which": {}, "whereis": {}, "type": {}, "ps": {}, "pgrep": {},
	"pidof": {}, "top": {}, "journalctl": {}, "dmesg": {}, "lscpu": {}, "lspci": {}, "lsusb": {},
	"lsmod": {}, "lshw": {}, "ss": {}, "netstat": {}, "ping": {}, "nproc": {}, "sensors": {},
	"vmstat": {}, "iostat": {}, "last": {}, "w": {}, "who": {}, "locale": {}, "cal": {},
	"hostnamectl": {}, "timedatectl": {}, "resolvectl": {}, "tree": {}, "diff": {}, "md5sum": {},
	"sha256sum": {}, "basename": {}, "dirname": {}, "realpath": {}, "readlink": {}, "test": {},
	"true": {}, "false": {}, "sleep": {}, "seq": {}, "env": {}, "printenv": {}, "date": {},
	"hostname": {}, "ip": {}, "find": {}, "sed": {}, "git": {}, "pip": {}, "pip3": {},
	"npm": {}, "cargo": {}, "python": {}, "python3": {}, "perl": {}, "ruby": {}, "node": {},
	"nmcli": {}, "tee": {},
}

var interpreters = map[string]struct{}{
	"python": {}, "python3": {}, "perl": {}, "ruby": {}, "node": {},
}

func commandRiskLevel(segment string) Risk {
	base := strings.ToLower(baseCommand(segment))
	lowered := strings.ToLower(segment)
	parts := strings.Fields(lowered)
	args := parts
	if len(parts) > 0 {
		args = parts[1:]
		if strings.Contains(parts[0], "=") && len(parts) > 1 {
			args = parts[2:]
		}
	}

	if _, ok := highRiskBases[base]; ok {
		return RiskHigh
	}
	if strings.Contains(lowered, "rm -rf /") || strings.Contains(lowered, "rm -fr /") {
		return RiskHigh
	}
	if _, ok := lowRiskBases[base]; !ok {
		return RiskMedium
	}

	if _, ok := interpreters[base]; ok {
		if hasAnyArg(args, "-c", "-e", "--eval", "-m") {
			return RiskHigh
		}
		if len(args) == 0 || hasAnyArg(args, "--version", "-v", "-V") {
			return RiskLow
		}
		return RiskMedium
	}

	switch base {
	case "env":
		// Bare env lists variables; anything else runs a command.
		for _, a := range args {
			if !strings.Contains(a, "=") && !strings.HasPrefix(a, "-") {
				return RiskHigh
			}
		}
		if len(args) > 0 {
			return RiskMedium
		}
	case "find":
		if hasAnyArg(args, "-delete", "-exec", "-execdir", "-ok", "-okdir", "-fprint", "-fprint0", "-fprintf", "-fls") {
			return RiskHigh
		}
	case "tee":
		for _, a := range args {
			if !strings.HasPrefix(a, "-") && a != "/dev/null" {
				return RiskHigh
			}
		}
	case "sed":
		for _, a := range args {
			if a == "--in-place" || strings.HasPrefix(a, "--in-place=") || (strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && strings.Contains(a, "i")) {
				return RiskHigh
			}
		}
	case "date", "hostname":
		if len(args) > 0 && !strings.HasPrefix(args[0], "+") && !strings.HasPrefix(args[0], "-") {
			return RiskMedium
		}
		if hasAnyArg(args, "-s", "--set", "-f", "--file", "-b") {
			return RiskMedium
		}
	case "ip":
		if hasAnyArg(args, "add", "del", "delete", "set", "flush", "change", "replace", "append") {
			return RiskMedium
		}
	case "nmcli":
		if hasAnyArg(args, "on", "off", "up", "down", "connect", "disconnect", "delete", "add", "modify", "reload") {
			return RiskMedium
		}
	case "pip", "pip3", "npm", "cargo":
		if len(args) > 0 {
			switch args[0] {
			case "list", "show", "freeze", "--version", "ls", "outdated", "search", "tree", "view":
			default:
				return RiskMedium
			}
		}
	case "git":
		if len(args) > 0 {
			switch args[0] {
			case "status", "log", "diff", "show", "blame", "shortlog", "describe", "rev-parse", "ls-files", "--version":
			default:
				return RiskMedium
			}
		}
	}
	return RiskLow
}

// writesFile reports output redirection to anything but /dev/null or a
// descriptor.
func writesFile(command string) bool {
	for i := 0; i < len(command); i++ {
		if command[i] != '>' {
			continue
		}
		j := i + 1
		if j < len(command) && command[j] == '>' {
			j++
		}
		if j < len(command) && command[j] == '&' {
			// 2>&1 duplicates a descriptor; &>file still writes.
			k := j + 1
			if k < len(command) && command[k] >= '0' && command[k] <= '9' {
				i = k
				continue
			}
			j++
		}
		rest := strings.TrimLeft(command[j:], " \t")
		target := rest
		if n := strings.IndexAny(rest, " \t;|&"); n >= 0 {
			target = rest[:n]
		}
		if target != "/dev/null" {
			return true
		}
		i = j
	}
	return false
}

// runsInBackground finds a lone & that is not part of &&, >& or &>.
func runsInBackground(command string) bool {
	for i := 0; i < len(command); i++ {
		if command[i] != '&' {
			continue
		}
		if i+1 < len(command) && command[i+1] == '&' {
			i++
			continue
		}
		if i > 0 && command[i-1] == '>' {
			continue
		}
		if i+1 < len(command) && command[i+1] == '>' {
			continue
		}
		return true
	}
	return false
}

func hasAnyArg(args []string, want ...string) bool {
	for _, a := range args {
		for _, w := range want {
			if a == w {
				return true
			}
		}
	}
	return false
}

func splitCommandSegments(command string) []string {
	normalized := command
	for _, sep := range []string{"&&", "||", "\n", ";", "|"} {
		normalized = strings.ReplaceAll(normalized, sep, "\x00")
	}
	parts := strings.Split(normalized, "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func baseCommand(segment string) string {
	fields := strings.Fields(segment)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	// Skip env assignment: FOO=bar cmd
	if strings.Contains(first, "=") && len(fields) > 1 {
		first = fields[1]
	}
	if i := strings.LastIndex(first, "/"); i >= 0 {
		first = first[i+1:]
	}
	return strings.TrimSpace(first)
}
