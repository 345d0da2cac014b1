// Package infra reports facts about the host Lyra runs on.
package infra

import (
	"bufio"
	"os"
	"runtime"
	"strings"
)

// HostInfo describes the machine and runtime.
type HostInfo struct {
	OS        string `json:"os"`
	Kernel    string `json:"kernel"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"numCPU"`
	GoVersion string `json:"goVersion"`
}

var (
	osReleasePath     = "/etc/os-release"
	kernelReleasePath = "/proc/sys/kernel/osrelease"
)

// Host collects HostInfo. Missing files fall back to runtime values.
func Host() HostInfo {
	return HostInfo{
		OS:        osName(),
		Kernel:    kernelRelease(),
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
}

func osName() string {
	f, err := os.Open(osReleasePath)
	if err != nil {
		return runtime.GOOS
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "PRETTY_NAME="); ok {
			return strings.Trim(v, `"'`)
		}
	}
	return runtime.GOOS
}

func kernelRelease() string {
	data, err := os.ReadFile(kernelReleasePath)
	if err != nil {
		return runtime.GOOS + "/" + runtime.GOARCH
	}
	return strings.TrimSpace(string(data))
}

// IsTruthyEnv checks if an environment variable is set to a truthy value.
func IsTruthyEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "tak"
}
