package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/specialistvlad/llmgrid/internal/app"
	"github.com/specialistvlad/llmgrid/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a project: a default config file and the store",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			dir := "."
			if len(a) == 1 {
				dir = a[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create project directory: %w", err)
			}
			path := filepath.Join(dir, config.DefaultFile)
			wrote, err := config.WriteTemplate(path)
			if err != nil {
				return err
			}

			project, err := opts.newApp(path, true)
			if err != nil {
				return err
			}
			defer project.Close()
			if err := project.Init(project.Bind(cmd.Context())); err != nil {
				return err
			}

			if wrote {
				fmt.Fprintf(opts.outW, "Initialized llmgrid project in %s\n", dir)
			} else {
				fmt.Fprintf(opts.outW, "Config %s already exists, store checked\n", path)
			}
			return nil
		},
	}
}

func newDatasetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage versioned datasets",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "register <id> <file.jsonl>",
			Short: "Register a JSONL file as a new dataset version",
			Args:  args(cobra.ExactArgs(2)),
			RunE: func(cmd *cobra.Command, a []string) error {
				project, err := opts.projectApp(cmd)
				if err != nil {
					return err
				}
				defer project.Close()

				d, err := project.RegisterDataset(project.Bind(cmd.Context()), a[0], a[1])
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(d.Keys()))
				for _, k := range d.Keys() {
					keys = append(keys, fmt.Sprintf("%q", k))
				}
				fmt.Fprintf(opts.outW, "Registered dataset `%s` version (%s) with %d records (record keys: [%s])\n",
					d.ID(), d.Hash(), d.Len(), strings.Join(keys, ", "))
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List registered dataset versions, newest first",
			Args:  args(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				project, err := opts.projectApp(cmd)
				if err != nil {
					return err
				}
				defer project.Close()

				versions, err := project.ListDatasets(project.Bind(cmd.Context()))
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(opts.outW, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tHASH\tCREATED\tRECORDS")
				for _, v := range versions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", v.ID, v.Hash, v.Created.UTC().Format(time.RFC3339), v.Records)
				}
				return w.Flush()
			},
		},
	)
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		runOpts app.RunOptions
		output  string
	)
	cmd := &cobra.Command{
		Use:   "run <app path>",
		Short: "Run an app and print its result as JSON",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			if runOpts.Workers < 0 {
				return usageError{fmt.Errorf("invalid workers %d: must not be negative", runOpts.Workers)}
			}
			project, err := opts.projectApp(cmd)
			if err != nil {
				return err
			}
			defer project.Close()

			runOpts.AppPath = a[0]
			res, runErr := project.Run(project.Bind(cmd.Context()), runOpts)
			if res == nil {
				return runErr
			}

			w := opts.outW
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := app.WriteResult(w, res, runErr); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&runOpts.Dataset, "dataset", "", "Stored dataset providing input records, as id or id@hash.")
	flags.StringVar(&runOpts.InputFile, "input", "", "JSONL file of input records.")
	flags.StringVarP(&output, "output", "o", "", "Write the result to this file instead of stdout.")
	flags.IntVar(&runOpts.Workers, "workers", 0, "Number of concurrent workers. 0 uses the config file.")
	flags.BoolVar(&runOpts.NoCache, "no-cache", false, "Bypass the block cache.")
	return cmd
}

func newProviderCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Inspect configured LLM providers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, err := opts.projectApp(cmd)
			if err != nil {
				return err
			}
			defer project.Close()

			w := tabwriter.NewWriter(opts.outW, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tMODEL\tKEY")
			for _, p := range project.ListProviders() {
				key := "missing"
				if p.HasKey || p.Type == "stub" {
					key = "ok"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Type, p.Model, key)
			}
			return w.Flush()
		},
	})
	return cmd
}
