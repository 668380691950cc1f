package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"healthwatch/internal/app"
	"healthwatch/internal/config"
	"healthwatch/internal/models"
	"healthwatch/internal/report"
)

func (c *cli) monitorCmd() *cobra.Command {
	var test bool
	var format string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Collect one snapshot, store it and alert on critical issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.runner()
			if err != nil {
				return c.failed(format, err)
			}
			defer r.Close()

			res := r.Monitor(cmd.Context(), test)
			if err := c.print(format, res); err != nil {
				return err
			}
			if !res.Success {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&test, "test", false, "collect and evaluate without storing or notifying")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json or yaml")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var (
		window string
		format string
		notify bool
		debug  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Analyze the stored history over a window",
		Long: `Analyze the stored history over a window and print the run result.

Examples:
  healthwatch report --window 24h --notify
  healthwatch report --window 7d --debug -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := c.cfg.Reporting.Window
			if window != "" {
				parsed, err := report.ParseWindow(window)
				if err != nil {
					return err
				}
				d = parsed
			}
			r, err := c.runner()
			if err != nil {
				return c.failed(format, err)
			}
			defer r.Close()

			rep, res := r.Report(cmd.Context(), d, notify)
			if debug {
				if err := c.print(format, rep); err != nil {
					return err
				}
			} else if err := c.print(format, res); err != nil {
				return err
			}
			if !res.Success {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "", "analysis window, e.g. 24h or 7d (default from config)")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&notify, "notify", false, "send the report to the configured channels")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the full analysis instead of the run result")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		since  string
		latest bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var d time.Duration
			if since != "" {
				parsed, err := report.ParseWindow(since)
				if err != nil {
					return err
				}
				d = parsed
			}
			r, err := c.runner()
			if err != nil {
				return err
			}
			defer r.Close()

			if latest {
				snap, ok := r.Latest()
				if !ok {
					return fmt.Errorf("history is empty")
				}
				return c.print(format, snap)
			}
			snaps := r.History(d)
			if snaps == nil {
				snaps = []models.Snapshot{}
			}
			return c.print(format, snaps)
		},
	}
	cmd.Flags().StringVar(&since, "since", "24h", "only entries newer than this; empty for all")
	cmd.Flags().BoolVar(&latest, "latest", false, "print only the newest entry")
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json or yaml")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr    string
		refresh time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.runner()
			if err != nil {
				return err
			}
			defer r.Close()
			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			c.log.Info("starting healthwatch", "addr", addr, "history", c.cfg.Paths.HistoryFile)
			return r.Serve(cmd.Context(), addr, refresh)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().DurationVar(&refresh, "refresh", time.Minute, "metrics refresh interval")
	return cmd
}

func (c *cli) initConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init-config [path]",
		Short:       "Write a starter config file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteExample(path, force); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// failed prints a failed run result for errors raised before a run starts.
func (c *cli) failed(format string, err error) error {
	if c.log != nil {
		c.log.Error("run failed", "err", err)
	}
	res := app.RunResult{
		Success:   false,
		Status:    app.StatusFailed,
		Timestamp: models.FormatTimestamp(time.Now()),
		Error:     err.Error(),
	}
	if perr := c.print(format, res); perr != nil {
		return perr
	}
	return errRunFailed
}
