package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yanqian/smart-notes/internal/domain/packaging"
)

func newAddonCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addon",
		Short: "Build, package and link the addon",
	}
	cmd.PersistentFlags().StringVar(&a.opts.project, "project", ".", "Addon project root containing addon.yaml")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "clean",
			Short: "Remove build output and Python caches",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := a.packager()
				if err != nil {
					return err
				}
				return p.Clean(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "build [version]",
			Short: "Stage the addon and write the .ankiaddon archive",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.packager()
				if err != nil {
					return err
				}
				version := ""
				if len(args) == 1 {
					version = args[0]
				}
				archive, err := p.Build(cmd.Context(), version)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", archive)
				return err
			},
		},
		&cobra.Command{
			Use:   "link-dev",
			Short: "Symlink the source tree into the addons folder",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := a.packager()
				if err != nil {
					return err
				}
				target, err := p.LinkDev()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "linked %s\n", target)
				return err
			},
		},
		&cobra.Command{
			Use:   "link-dist",
			Short: "Symlink the last build into the addons folder",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := a.packager()
				if err != nil {
					return err
				}
				target, err := p.LinkDist()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "linked %s\n", target)
				return err
			},
		},
	)

	for _, task := range []struct{ name, short string }{
		{packaging.TaskInstall, "Install Python dependencies into the vendor folder"},
		{packaging.TaskFormat, "Format the source tree"},
		{packaging.TaskLint, "Lint the source tree"},
		{packaging.TaskTypecheck, "Type check the source tree"},
		{packaging.TaskTest, "Run the test suite"},
		{packaging.TaskCheck, "Run the read-only checks"},
		{packaging.TaskFix, "Apply lint fixes and formatting"},
	} {
		name := task.name
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: task.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := a.packager()
				if err != nil {
					return err
				}
				return p.Run(cmd.Context(), name)
			},
		})
	}
	return cmd
}

func (a *app) packager() (*packaging.Packager, error) {
	root, err := filepath.Abs(a.opts.project)
	if err != nil {
		return nil, err
	}
	project, err := packaging.LoadProject(root)
	if err != nil {
		return nil, err
	}
	runner := a.deps.Runner
	if runner == nil {
		runner = packaging.ExecRunner{Stdout: a.deps.Stdout, Stderr: a.deps.Stderr}
	}
	return packaging.NewPackager(root, project, runner, a.deps.AddonsDir, a.log()), nil
}
