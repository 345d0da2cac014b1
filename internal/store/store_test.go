package store

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStateMergeKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_state.json")
	s := NewStateStore(path, quietLogger())

	if st, err := s.Load(); err != nil || len(st) != 0 {
		t.Fatalf("expected empty lazy state, got %v %v", st, err)
	}
	if err := s.Merge(map[string]any{KeyLastTool: "DISK_DIAG", KeyLastToolArg: ""}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := s.Set(KeyLastModel, "llama3"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if s.Get(KeyLastTool) != "DISK_DIAG" || s.Get(KeyLastModel) != "llama3" {
		t.Fatalf("unexpected state: %v", s.Keys())
	}
	if err := s.Set(KeyLastTool, "NET_INFO"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if s.Get(KeyLastTool) != "NET_INFO" {
		t.Fatalf("latest value not kept")
	}
}

func TestStateCorruptFileIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStateStore(path, quietLogger())
	st, err := s.Load()
	if err != nil || len(st) != 0 {
		t.Fatalf("expected reset state, got %v %v", st, err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "agent_state.corrupted-*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected quarantined file, got %v", matches)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file still in place")
	}
}

func TestMemoryAppendOnly(t *testing.T) {
	m := NewMemoryLog(filepath.Join(t.TempDir(), "agent_memory.json"), MemoryOptions{}, quietLogger())
	var snapshots [][]Entry
	for i := 0; i < 6; i++ {
		var e Entry
		switch i % 3 {
		case 0:
			e = TextEntry(fmt.Sprintf("q%d", i), "a", "ollama", "llama3")
		case 1:
			e = ToolEntry("DISK_DIAG", "", "out")
		default:
			e = SystemEntry("ls", "x")
		}
		if err := m.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
		all, err := m.All()
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		snapshots = append(snapshots, all)
	}
	for i := 1; i < len(snapshots); i++ {
		prev, cur := snapshots[i-1], snapshots[i]
		if len(cur) != len(prev)+1 {
			t.Fatalf("step %d: expected exactly one new entry", i)
		}
		for j := range prev {
			if prev[j] != cur[j] {
				t.Fatalf("step %d: entry %d changed: %+v -> %+v", i, j, prev[j], cur[j])
			}
		}
	}
	if snapshots[5][0].Timestamp == "" {
		t.Fatalf("timestamp not set")
	}
}

func TestMemoryTailText(t *testing.T) {
	m := NewMemoryLog(filepath.Join(t.TempDir(), "agent_memory.json"), MemoryOptions{}, quietLogger())
	for i := 0; i < 4; i++ {
		_ = m.Append(TextEntry(fmt.Sprintf("q%d", i), "a", "", ""))
		_ = m.Append(ToolEntry("X", "", ""))
	}
	got, err := m.TailText(2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 2 || got[0].User != "q2" || got[1].User != "q3" {
		t.Fatalf("unexpected tail: %+v", got)
	}
}

func TestMemoryArchivesAtThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_memory.json")
	m := NewMemoryLog(path, MemoryOptions{Threshold: 10, Keep: 3}, quietLogger())
	for i := 0; i < 10; i++ {
		if err := m.Append(TextEntry(fmt.Sprintf("q%d", i), "a", "", "")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	live, _ := m.All()
	if len(live) != 3 || live[0].User != "q7" {
		t.Fatalf("unexpected live log: %+v", live)
	}
	archived, err := m.ArchiveLen()
	if err != nil || archived != 7 {
		t.Fatalf("expected 7 archived, got %d %v", archived, err)
	}
	if !strings.HasSuffix(m.ArchivePath(), "agent_memory.archive.json") {
		t.Fatalf("unexpected archive path %s", m.ArchivePath())
	}

	for i := 10; i < 17; i++ {
		_ = m.Append(TextEntry(fmt.Sprintf("q%d", i), "a", "", ""))
	}
	archived, _ = m.ArchiveLen()
	if archived != 14 {
		t.Fatalf("archive must only grow, got %d", archived)
	}
}

func TestMemoryArchiveNow(t *testing.T) {
	m := NewMemoryLog(filepath.Join(t.TempDir(), "agent_memory.json"), MemoryOptions{}, quietLogger())
	for i := 0; i < 5; i++ {
		_ = m.Append(ToolEntry("X", "", ""))
	}
	moved, err := m.ArchiveNow(2)
	if err != nil || moved != 3 {
		t.Fatalf("expected 3 moved, got %d %v", moved, err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 live entries, got %d", m.Len())
	}
	moved, _ = m.ArchiveNow(2)
	if moved != 0 {
		t.Fatalf("second archive moved %d", moved)
	}
}

func TestMemoryCorruptResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_memory.json")
	_ = os.WriteFile(path, []byte("[{"), 0o644)
	m := NewMemoryLog(path, MemoryOptions{}, quietLogger())
	if err := m.Append(ProposalEntry("TOOL_X")); err != nil {
		t.Fatalf("append: %v", err)
	}
	all, _ := m.All()
	if len(all) != 1 || all[0].Type != EntryProposeTool {
		t.Fatalf("unexpected entries after reset: %+v", all)
	}
}

func TestStatsMergeNeverOverwritesWithZero(t *testing.T) {
	c := NewStatsCache(filepath.Join(t.TempDir(), StatsFile), 5000, 100, quietLogger())
	if _, err := c.Update(Stats{PromptTPS: 120, GenTPS: 30, Backend: "ollama", Model: "llama3"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := c.Update(Stats{GenTPS: 35})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.PromptTPS != 120 || got.GenTPS != 35 || got.Model != "llama3" {
		t.Fatalf("unexpected merge: %+v", got)
	}
	var onDisk Stats
	data, _ := os.ReadFile(c.Path())
	_ = json.Unmarshal(data, &onDisk)
	if onDisk.PromptTPS != 120 {
		t.Fatalf("cache not persisted: %s", data)
	}
}

func TestStatsClamp(t *testing.T) {
	cases := []struct {
		in   Stats
		want float64
	}{
		{Stats{PromptTPS: 10, GenTPS: 20}, 20},
		{Stats{PromptTPS: 10, GenTPS: 9000}, 10},
		{Stats{PromptTPS: 0, GenTPS: 9000}, 5000},
		{Stats{PromptTPS: 100, GenTPS: 9000}, 9000},
		{Stats{PromptTPS: 100, GenTPS: 20000}, 100},
	}
	for _, tc := range cases {
		if got := tc.in.Clamp(5000, 100).GenTPS; got != tc.want {
			t.Fatalf("clamp(%+v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
