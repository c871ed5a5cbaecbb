// Package packaging builds, links and checks the addon source tree.
package packaging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the optional project description at the repository root.
const ProjectFile = "addon.yaml"

// Project describes the addon layout. Paths are relative to the root.
type Project struct {
	Name         string   `yaml:"name"`
	Src          string   `yaml:"src"`
	Dist         string   `yaml:"dist"`
	Vendor       string   `yaml:"vendor"`
	Manifest     string   `yaml:"manifest"`
	Config       string   `yaml:"config"`
	Requirements string   `yaml:"requirements"`
	Exclude      []string `yaml:"exclude"`
	Tasks        Tasks    `yaml:"tasks"`
}

// Tasks maps each tool command to the command lines it runs in order.
type Tasks struct {
	Install   []string `yaml:"install"`
	Format    []string `yaml:"format"`
	Lint      []string `yaml:"lint"`
	Typecheck []string `yaml:"typecheck"`
	Test      []string `yaml:"test"`
	Check     []string `yaml:"check"`
	Fix       []string `yaml:"fix"`
}

// DefaultProject mirrors the layout of the Smart Notes addon repository.
func DefaultProject() Project {
	return Project{
		Name:         "smart-notes",
		Src:          "src",
		Dist:         "dist",
		Vendor:       "src/vendor",
		Manifest:     "manifest.json",
		Config:       "config.json",
		Requirements: "requirements.txt",
		Exclude: []string{
			"**/__pycache__/**",
			"**/*.pyc",
			"**/.DS_Store",
			"**/.mypy_cache/**",
		},
		Tasks: Tasks{
			Install:   []string{"pip install -r requirements.txt --target src/vendor"},
			Format:    []string{"ruff format src"},
			Lint:      []string{"ruff check src"},
			Typecheck: []string{"mypy src"},
			Test:      []string{"pytest"},
			Check:     []string{"ruff format --check src", "ruff check src", "mypy src"},
			Fix:       []string{"ruff check --fix src", "ruff format src"},
		},
	}
}

// LoadProject reads root/addon.yaml over the defaults. A missing file yields
// the defaults.
func LoadProject(root string) (Project, error) {
	project := DefaultProject()
	data, err := os.ReadFile(filepath.Join(root, ProjectFile))
	if errors.Is(err, os.ErrNotExist) {
		return project, nil
	}
	if err != nil {
		return Project{}, fmt.Errorf("read %s: %w", ProjectFile, err)
	}
	if err := yaml.Unmarshal(data, &project); err != nil {
		return Project{}, fmt.Errorf("parse %s: %w", ProjectFile, err)
	}
	return project, project.Validate()
}

// Validate checks required fields.
func (p Project) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.ContainsAny(p.Name, `/\`) {
		problems = append(problems, "name must not contain path separators")
	}
	if p.Src == "" || p.Dist == "" {
		problems = append(problems, "src and dist are required")
	}
	if p.Manifest == "" || p.Config == "" {
		problems = append(problems, "manifest and config are required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid %s: %s", ProjectFile, strings.Join(problems, "; "))
	}
	return nil
}

// Steps returns the command lines of a tool task.
func (t Tasks) Steps(task string) ([]string, bool) {
	switch task {
	case TaskInstall:
		return t.Install, true
	case TaskFormat:
		return t.Format, true
	case TaskLint:
		return t.Lint, true
	case TaskTypecheck:
		return t.Typecheck, true
	case TaskTest:
		return t.Test, true
	case TaskCheck:
		return t.Check, true
	case TaskFix:
		return t.Fix, true
	default:
		return nil, false
	}
}
