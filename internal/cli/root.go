// Package cli implements the jobtrack command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/jobtracker/internal/client"
)

type app struct {
	configPath string
	apiURL     string
	cfg        *Config
	client     *client.HTTPClient
	out        io.Writer
}

// NewRootCmd builds the jobtrack command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "jobtrack",
		Short: "Inspect and control tracked jobs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if a.apiURL != "" {
				cfg.URL = a.apiURL
			}
			a.cfg = cfg
			a.client = client.New(cfg.URL, cfg.Timeout)
			a.out = cmd.OutOrStdout()
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&a.apiURL, "api", "", "jobtracker API URL (overrides config and JOBTRACK_URL)")

	root.AddCommand(
		a.getCmd(),
		a.childrenCmd(),
		a.logsCmd(),
		a.progressCmd(),
		a.finishCmd(),
		a.failCmd(),
	)
	return root
}

// Execute runs the CLI; Ctrl-C cancels in-flight requests and --follow.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job>",
		Short: "Show a job by id or slug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			fmt.Fprint(a.out, renderJob(job))
			return nil
		},
	}
}

func (a *app) childrenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "children <job>",
		Short: "List the direct children of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := a.client.Children(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list children: %w", err)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(a.out, DimText.Render("No children."))
				return nil
			}
			for _, j := range jobs {
				fmt.Fprintln(a.out, renderJobLine(j))
			}
			return nil
		},
	}
}

func (a *app) logsCmd() *cobra.Command {
	var (
		follow        bool
		since         string
		noDescendants bool
	)
	cmd := &cobra.Command{
		Use:   "logs <job>",
		Short: "Print the logs of a job and its descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if since != "" {
				if _, err := time.Parse(time.RFC3339Nano, since); err != nil {
					return fmt.Errorf("--since must be an RFC3339 timestamp: %w", err)
				}
			}
			return a.tail(cmd.Context(), args[0], since, !noDescendants, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling until the job finishes")
	cmd.Flags().StringVar(&since, "since", "", "only entries after this RFC3339 time")
	cmd.Flags().BoolVar(&noDescendants, "no-descendants", false, "only the job's own entries")
	return cmd
}

// tail prints pages until one comes back empty. With follow it keeps polling
// until the job is finished and a final page is empty.
func (a *app) tail(ctx context.Context, ref, cursor string, descendants, follow bool) error {
	for {
		finished := false
		if follow {
			job, err := a.client.GetJob(ctx, ref)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			finished = job.Finished
		}

		page, err := a.client.Tail(ctx, ref, cursor, descendants)
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		for _, e := range page.Entries {
			fmt.Fprintln(a.out, renderEntry(e))
		}
		cursor = page.Cursor

		if len(page.Entries) == 0 && (!follow || finished) {
			return nil
		}
		if !follow {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.PollInterval):
		}
	}
}

func (a *app) progressCmd() *cobra.Command {
	var id string
	var all bool
	cmd := &cobra.Command{
		Use:   "progress <job>",
		Short: "Show progress metrics of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				metrics, err := a.client.AllProgress(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("list progress: %w", err)
				}
				for _, m := range metrics {
					fmt.Fprintln(a.out, renderProgress(m))
				}
				return nil
			}
			p, err := a.client.Progress(cmd.Context(), args[0], id)
			if errors.Is(err, client.ErrNotFound) && id == "" {
				fmt.Fprintln(a.out, DimText.Render("No progress reported."))
				return nil
			}
			if err != nil {
				return fmt.Errorf("get progress: %w", err)
			}
			fmt.Fprintln(a.out, renderProgress(p))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "progress id (default: most recently updated)")
	cmd.Flags().BoolVar(&all, "all", false, "show every metric")
	return cmd
}

func (a *app) finishCmd() *cobra.Command {
	var failed bool
	cmd := &cobra.Command{
		Use:   "finish <job>",
		Short: "Finish a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Finish(cmd.Context(), args[0], !failed)
			if err != nil {
				return fmt.Errorf("finish job: %w", err)
			}
			style := Succeeded
			if !res.Succeeded {
				style = Failed
			}
			fmt.Fprintln(a.out, style.Render(res.Message))
			return nil
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "mark the job failed")
	return cmd
}

func (a *app) failCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fail <job>",
		Short: "Force-fail a job, even one already finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.client.ForceFail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("force-fail job: %w", err)
			}
			fmt.Fprint(a.out, renderJob(job))
			return nil
		},
	}
}
