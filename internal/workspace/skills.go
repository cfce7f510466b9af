package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SkillFrontmatter is the YAML frontmatter of a SKILL.md file, delimited by
// "---" lines, following the common skill-manager convention.
type SkillFrontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords,omitempty"`
}

// ParseSkillFrontmatter extracts the frontmatter block from a SKILL.md
// file's contents, using a strings.SplitN(content, "---", 3)
// convention.
func ParseSkillFrontmatter(content string) (SkillFrontmatter, bool) {
	if !strings.HasPrefix(strings.TrimSpace(content), "---") {
		return SkillFrontmatter{}, false
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return SkillFrontmatter{}, false
	}
	var fm SkillFrontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return SkillFrontmatter{}, false
	}
	return fm, true
}

// syncDirs returns the three skill directories participating in the sync, in
// canonical-source priority order: workspace, agent C, agent O. A directory
// whose parent agent home is absent is skipped by the caller.
func (e *Engine) syncDirs() []string {
	var dirs []string
	dirs = append(dirs, e.Paths.SkillsDir)
	if e.Paths.AgentCHome != "" {
		dirs = append(dirs, filepath.Join(e.Paths.AgentCHome, "skills"))
	}
	if e.Paths.AgentOHome != "" {
		dirs = append(dirs, filepath.Join(e.Paths.AgentOHome, "skills"))
	}
	return dirs
}

// SyncSkills performs one pass of the three-way skill directory sync.
// Idempotent: a second pass with no external change creates or removes no
// symlinks.
func (e *Engine) SyncSkills() error {
	dirs := e.syncDirs()

	entriesByDir := make(map[string]map[string]os.FileInfo, len(dirs))
	names := map[string]bool{}

	for _, dir := range dirs {
		parent := filepath.Dir(dir)
		if _, err := os.Stat(parent); err != nil {
			continue // parent agent home absent: skip this directory
		}
		if err := EnsureDir(dir); err != nil {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		m := make(map[string]os.FileInfo)
		for _, ent := range entries {
			name := ent.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			info, err := os.Lstat(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			if info.Mode()&os.ModeSymlink != 0 {
				// Include only valid (non-broken) symlinks.
				if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
					continue
				}
			}
			m[name] = info
			names[name] = true
		}
		entriesByDir[dir] = m
	}

	sortedNames := make([]string, 0, len(names))
	for n := range names {
		sortedNames = append(sortedNames, n)
	}
	sort.Strings(sortedNames)

	for _, name := range sortedNames {
		canonical := ""
		for _, dir := range dirs {
			info, ok := entriesByDir[dir][name]
			if !ok {
				continue
			}
			if info.Mode()&os.ModeSymlink == 0 {
				canonical = filepath.Join(dir, name)
				break
			}
		}
		if canonical == "" {
			// All entries are symlinks: resolve the first valid one.
			for _, dir := range dirs {
				if _, ok := entriesByDir[dir][name]; ok {
					if resolved, err := filepath.EvalSymlinks(filepath.Join(dir, name)); err == nil {
						canonical = resolved
						break
					}
				}
			}
		}
		if canonical == "" {
			continue
		}

		for _, dir := range dirs {
			if _, ok := entriesByDir[dir][name]; ok {
				continue // already present (real dir or existing symlink)
			}
			_ = createSkillLink(canonical, filepath.Join(dir, name))
		}
	}

	e.cleanOwnedSymlinks(dirs)
	return nil
}

// createSkillLink creates a symlink at dest pointing at target, falling
// back to a directory junction on hosts without unprivileged symlink
// support (handled by createPlatformLink).
func createSkillLink(target, dest string) error {
	return createPlatformLink(target, dest)
}

// cleanOwnedSymlinks removes broken symlinks from every sync directory.
func (e *Engine) cleanOwnedSymlinks(dirs []string) {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			path := filepath.Join(dir, ent.Name())
			info, err := os.Lstat(path)
			if err != nil || info.Mode()&os.ModeSymlink == 0 {
				continue
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				_ = removePlatformLink(path)
			}
		}
	}
}

// WatchSkillSync repeats SyncSkills every ~30s
func (e *Engine) WatchSkillSync(stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = e.SyncSkills()
		}
	}
}

// ShutdownSkillSync unlinks, in agent C and agent O skill directories only,
// symlinks whose resolved targets lie inside the workspace skills
// directory — leaving real directories and external user links alone.
func (e *Engine) ShutdownSkillSync() error {
	wsSkills, err := filepath.Abs(e.Paths.SkillsDir)
	if err != nil {
		return err
	}
	for _, home := range []string{e.Paths.AgentCHome, e.Paths.AgentOHome} {
		if home == "" {
			continue
		}
		dir := filepath.Join(home, "skills")
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			path := filepath.Join(dir, ent.Name())
			info, err := os.Lstat(path)
			if err != nil || info.Mode()&os.ModeSymlink == 0 {
				continue
			}
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				continue
			}
			if strings.HasPrefix(resolved, wsSkills+string(filepath.Separator)) || resolved == wsSkills {
				_ = removePlatformLink(path)
			}
		}
	}
	return nil
}
