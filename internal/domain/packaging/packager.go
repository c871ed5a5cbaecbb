package packaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"

	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// Tool tasks run through the Runner.
const (
	TaskInstall   = "install"
	TaskFormat    = "format"
	TaskLint      = "lint"
	TaskTypecheck = "typecheck"
	TaskTest      = "test"
	TaskCheck     = "check"
	TaskFix       = "fix"
)

// ArchiveExt is the extension the host expects for addon packages.
const ArchiveExt = ".ankiaddon"

// Packager performs the addon build commands for one project root.
type Packager struct {
	root      string
	project   Project
	runner    Runner
	addonsDir func() (string, error)
	logger    *slog.Logger
}

// NewPackager constructs a packager. addonsDir resolves the host addon folder.
func NewPackager(root string, project Project, runner Runner, addonsDir func() (string, error), logger *slog.Logger) *Packager {
	return &Packager{
		root:      root,
		project:   project,
		runner:    runner,
		addonsDir: addonsDir,
		logger:    logger.With("component", "packaging.packager"),
	}
}

func (p *Packager) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.root, rel)
}

// StageDir is where Build assembles the addon before zipping.
func (p *Packager) StageDir() string {
	return filepath.Join(p.path(p.project.Dist), p.project.Name)
}

// Clean removes the dist folder and Python bytecode caches under src.
func (p *Packager) Clean(_ context.Context) error {
	dist := p.path(p.project.Dist)
	if err := os.RemoveAll(dist); err != nil {
		return apperrors.Wrap(apperrors.CodeBuild, "failed to remove "+dist, err)
	}
	src := p.path(p.project.Src)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	var caches []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "__pycache__" {
			caches = append(caches, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBuild, "failed to scan "+src, err)
	}
	for _, dir := range caches {
		if err := os.RemoveAll(dir); err != nil {
			return apperrors.Wrap(apperrors.CodeBuild, "failed to remove "+dir, err)
		}
	}
	p.logger.Debug("cleaned", "dist", dist, "caches", len(caches))
	return nil
}

// Build stages the addon and writes the archive, returning its path. The
// archive holds manifest.json, config.json, the source tree and vendored
// dependencies at its root.
func (p *Packager) Build(ctx context.Context, version string) (string, error) {
	manifest := p.path(p.project.Manifest)
	config := p.path(p.project.Config)
	for _, required := range []string{manifest, config, p.path(p.project.Src)} {
		if _, err := os.Stat(required); err != nil {
			return "", apperrors.Wrap(apperrors.CodeBuild, required+" not found", err)
		}
	}
	if err := p.Clean(ctx); err != nil {
		return "", err
	}

	stage := p.StageDir()
	if err := p.copyTree(ctx, p.path(p.project.Src), stage); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "failed to stage sources", err)
	}
	vendor := p.path(p.project.Vendor)
	if p.project.Vendor != "" && !isWithin(vendor, p.path(p.project.Src)) {
		if _, err := os.Stat(vendor); err == nil {
			if err := p.copyTree(ctx, vendor, filepath.Join(stage, "vendor")); err != nil {
				return "", apperrors.Wrap(apperrors.CodeBuild, "failed to stage vendored dependencies", err)
			}
		}
	}
	if err := writeManifest(manifest, filepath.Join(stage, "manifest.json"), version); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "failed to write manifest", err)
	}
	if err := copyFile(config, filepath.Join(stage, "config.json")); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "failed to copy config", err)
	}

	name := p.project.Name
	if version != "" {
		name += "-" + version
	}
	archive := filepath.Join(p.path(p.project.Dist), name+ArchiveExt)
	if err := zipDir(stage, archive); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "failed to write archive", err)
	}
	p.logger.Info("built addon", "archive", archive, "version", version)
	return archive, nil
}

func (p *Packager) excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range p.project.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (p *Packager) copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if p.excluded(rel) || !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func writeManifest(src, dst, version string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if version == "" {
		return os.WriteFile(dst, data, 0o644)
	}
	var manifest map[string]any
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse %s: %w", src, err)
	}
	manifest["human_version"] = version
	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append(out, '\n'), 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func zipDir(dir, archive string) (err error) {
	f, err := os.Create(archive)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate})
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if walkErr != nil {
		_ = zw.Close()
		return walkErr
	}
	return zw.Close()
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LinkDev symlinks the source tree into the host addon folder.
func (p *Packager) LinkDev() (string, error) {
	return p.link(p.path(p.project.Src))
}

// LinkDist symlinks the staged build into the host addon folder.
func (p *Packager) LinkDist() (string, error) {
	stage := p.StageDir()
	if _, err := os.Stat(stage); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, stage+" not found; run build first", err)
	}
	return p.link(stage)
}

func (p *Packager) link(source string) (string, error) {
	dir, err := p.addonsDir()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "cannot locate addon folder", err)
	}
	source, err = filepath.Abs(source)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "cannot resolve "+source, err)
	}
	target := filepath.Join(dir, p.project.Name)
	info, err := os.Lstat(target)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		if err := os.Remove(target); err != nil {
			return "", apperrors.Wrap(apperrors.CodeBuild, "failed to replace link "+target, err)
		}
	case err == nil:
		return "", apperrors.Wrap(apperrors.CodeBuild, target+" exists and is not a symlink", nil)
	case !errors.Is(err, os.ErrNotExist):
		return "", apperrors.Wrap(apperrors.CodeBuild, "cannot inspect "+target, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "cannot create "+dir, err)
	}
	if err := os.Symlink(source, target); err != nil {
		return "", apperrors.Wrap(apperrors.CodeBuild, "failed to link "+target, err)
	}
	p.logger.Info("linked addon", "source", source, "target", target)
	return target, nil
}

// Run executes a tool task step by step and stops at the first failure,
// whose ExitError is returned unchanged.
func (p *Packager) Run(ctx context.Context, task string) error {
	steps, ok := p.project.Tasks.Steps(task)
	if !ok {
		return apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown task %q", task), nil)
	}
	if task == TaskInstall && p.project.Vendor != "" {
		if err := os.RemoveAll(p.path(p.project.Vendor)); err != nil {
			return apperrors.Wrap(apperrors.CodeBuild, "failed to remove vendor folder", err)
		}
	}
	for _, step := range steps {
		argv := strings.Fields(step)
		if len(argv) == 0 {
			continue
		}
		p.logger.Debug("running", "task", task, "command", step)
		if err := p.runner.Run(ctx, p.root, argv); err != nil {
			return err
		}
	}
	return nil
}
