// Package workspace owns the on-disk runtime layout: the immutable paths
// record, template seeding with zone rules, rule-file pairing, and the
// three-way skill-directory symlink sync.
package workspace

import (
	"os"
	"path/filepath"
)

// envRoot overrides the default root directory.
const envRoot = "ARCRELAY_ROOT"

// envAgentOHome selects the agent-O (Provider O) home directory.
const envAgentOHome = "ARCRELAY_AGENT_O_HOME"

// Paths is an immutable record of absolute paths derived from one root.
// Every filesystem access by the core derives from this record; no path is
// hardcoded elsewhere.
type Paths struct {
	Root string

	ConfigFile   string
	SessionsFile string
	CronFile     string
	WebhooksFile string
	LogsDir      string
	PIDFile      string

	WorkspaceDir    string
	MemorySystemDir string
	MainMemoryFile  string
	CronTasksDir    string
	SkillsDir       string
	ToolsDir        string
	TelegramFilesDir string
	OutputToUserDir string

	// AgentCHome and AgentOHome are the two providers' own skill
	// directories, participating in the three-way sync.
	AgentCHome string
	AgentOHome string
}

// New derives a Paths record from root, or from the ARCRELAY_ROOT
// environment variable, or from the user's home subfolder by default.
func New(root string) (Paths, error) {
	if root == "" {
		root = os.Getenv(envRoot)
	}
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		root = filepath.Join(home, ".arcrelay")
	}

	ws := filepath.Join(root, "workspace")
	mem := filepath.Join(ws, "memory_system")

	agentOHome := os.Getenv(envAgentOHome)
	if agentOHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			agentOHome = filepath.Join(home, ".codex")
		}
	}

	agentCHome := ""
	if home, err := os.UserHomeDir(); err == nil {
		agentCHome = filepath.Join(home, ".claude")
	}

	return Paths{
		Root: root,

		ConfigFile:   filepath.Join(root, "config", "config.json"),
		SessionsFile: filepath.Join(root, "sessions.json"),
		CronFile:     filepath.Join(root, "cron_jobs.json"),
		WebhooksFile: filepath.Join(root, "webhooks.json"),
		LogsDir:      filepath.Join(root, "logs"),
		PIDFile:      filepath.Join(root, "bot.pid"),

		WorkspaceDir:     ws,
		MemorySystemDir:  mem,
		MainMemoryFile:   filepath.Join(mem, "MAINMEMORY.md"),
		CronTasksDir:     filepath.Join(ws, "cron_tasks"),
		SkillsDir:        filepath.Join(ws, "skills"),
		ToolsDir:         filepath.Join(ws, "tools"),
		TelegramFilesDir: filepath.Join(ws, "telegram_files"),
		OutputToUserDir:  filepath.Join(ws, "output_to_user"),

		AgentCHome: agentCHome,
		AgentOHome: agentOHome,
	}, nil
}

// TaskFolder returns the cron/webhook task folder for a given task name.
func (p Paths) TaskFolder(name string) string {
	return filepath.Join(p.CronTasksDir, name)
}

// TaskMemoryFile returns the per-task memory file path, e.g.
// cron_tasks/<name>/<name>_MEMORY.md.
func (p Paths) TaskMemoryFile(name string) string {
	return filepath.Join(p.TaskFolder(name), name+"_MEMORY.md")
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// requiredDirs is the fixed set of directories workspace init must ensure
// exist.
func (p Paths) requiredDirs() []string {
	return []string{
		p.WorkspaceDir,
		p.MemorySystemDir,
		p.CronTasksDir,
		p.SkillsDir,
		filepath.Join(p.ToolsDir, "cron_tools"),
		filepath.Join(p.ToolsDir, "webhook_tools"),
		filepath.Join(p.ToolsDir, "telegram_tools"),
		filepath.Join(p.ToolsDir, "user_tools"),
		p.TelegramFilesDir,
		p.OutputToUserDir,
		p.LogsDir,
	}
}
