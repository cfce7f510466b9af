package workspace

import (
	"path/filepath"
	"testing"
)

func TestNewWithExplicitRootDerivesEveryPath(t *testing.T) {
	root := t.TempDir()
	p, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Root != root {
		t.Errorf("Root = %q, want %q", p.Root, root)
	}
	if p.ConfigFile != filepath.Join(root, "config", "config.json") {
		t.Errorf("ConfigFile = %q", p.ConfigFile)
	}
	if p.MainMemoryFile != filepath.Join(root, "workspace", "memory_system", "MAINMEMORY.md") {
		t.Errorf("MainMemoryFile = %q", p.MainMemoryFile)
	}
}

func TestNewFallsBackToEnvRootWhenArgEmpty(t *testing.T) {
	t.Setenv("ARCRELAY_ROOT", filepath.Join(t.TempDir(), "from-env"))
	p, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if filepath.Base(p.Root) != "from-env" {
		t.Errorf("Root = %q, want it derived from ARCRELAY_ROOT", p.Root)
	}
}

func TestTaskFolderAndTaskMemoryFileNesting(t *testing.T) {
	p := Paths{CronTasksDir: "/root/workspace/cron_tasks"}
	if got := p.TaskFolder("nightly-build"); got != "/root/workspace/cron_tasks/nightly-build" {
		t.Errorf("TaskFolder = %q", got)
	}
	want := "/root/workspace/cron_tasks/nightly-build/nightly-build_MEMORY.md"
	if got := p.TaskMemoryFile("nightly-build"); got != want {
		t.Errorf("TaskMemoryFile = %q, want %q", got, want)
	}
}

func TestRequiredDirsCoversToolsSubdirectories(t *testing.T) {
	p := Paths{ToolsDir: "/root/workspace/tools"}
	dirs := p.requiredDirs()

	want := filepath.Join(p.ToolsDir, "webhook_tools")
	found := false
	for _, d := range dirs {
		if d == want {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("requiredDirs = %v, want it to include %q", dirs, want)
	}
}
