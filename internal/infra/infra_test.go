package infra

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestHostReadsReleaseFiles(t *testing.T) {
	dir := t.TempDir()
	osRel := filepath.Join(dir, "os-release")
	kern := filepath.Join(dir, "osrelease")
	os.WriteFile(osRel, []byte("NAME=Debian\nPRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\n"), 0o644)
	os.WriteFile(kern, []byte("6.1.0-18-amd64\n"), 0o644)

	oldOS, oldKern := osReleasePath, kernelReleasePath
	t.Cleanup(func() { osReleasePath, kernelReleasePath = oldOS, oldKern })
	osReleasePath, kernelReleasePath = osRel, kern

	h := Host()
	if h.OS != "Debian GNU/Linux 12 (bookworm)" || h.Kernel != "6.1.0-18-amd64" {
		t.Fatalf("host = %+v", h)
	}

	osReleasePath, kernelReleasePath = filepath.Join(dir, "x"), filepath.Join(dir, "y")
	h = Host()
	if h.OS != runtime.GOOS || h.Kernel != runtime.GOOS+"/"+runtime.GOARCH {
		t.Fatalf("fallback host = %+v", h)
	}
}

func TestIsTruthyEnv(t *testing.T) {
	for v, want := range map[string]bool{"1": true, "TRUE": true, "tak": true, "0": false, "": false} {
		t.Setenv("LYRA_TEST_FLAG", v)
		if got := IsTruthyEnv("LYRA_TEST_FLAG"); got != want {
			t.Errorf("%q: got %v", v, got)
		}
	}
}
