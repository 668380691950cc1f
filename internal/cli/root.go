package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"healthwatch/internal/app"
	"healthwatch/internal/config"
	"healthwatch/internal/logging"
	"healthwatch/internal/models"
	"healthwatch/internal/report"
)

// errRunFailed marks a run whose result was already printed; only the exit
// code is left to set.
var errRunFailed = errors.New("run failed")

// Runner is the part of app.App the commands drive.
type Runner interface {
	Monitor(ctx context.Context, test bool) app.RunResult
	Report(ctx context.Context, window time.Duration, notify bool) (report.Report, app.RunResult)
	History(since time.Duration) []models.Snapshot
	Latest() (models.Snapshot, bool)
	Serve(ctx context.Context, addr string, interval time.Duration) error
	Close() error
}

type cli struct {
	stdout io.Writer
	stderr io.Writer

	cfgPath string
	verbose bool

	cfg    config.Config
	log    *slog.Logger
	closer io.Closer

	newRunner func(config.Config, *slog.Logger) (Runner, error)
}

const skipSetup = "skip-setup"

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout: stdout,
		stderr: stderr,
		newRunner: func(cfg config.Config, logger *slog.Logger) (Runner, error) {
			return app.New(cfg, logger)
		},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "healthwatch",
		Short:         "Host and container health history, alerts and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			if err := c.setup(); err != nil {
				format, _ := cmd.Flags().GetString("format")
				return c.failed(format, err)
			}
			return nil
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "", "config file (default: ./config.yaml, ~/.healthwatch, /etc/healthwatch)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.monitorCmd(),
		c.reportCmd(),
		c.historyCmd(),
		c.serveCmd(),
		c.initConfigCmd(),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.verbose {
		cfg.Logging.Level = "debug"
	}
	logger, closer, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if cfg.Source == "" {
		logger.Warn("no config file found, using defaults")
	}
	c.cfg, c.log, c.closer = cfg, logger, closer
	return nil
}

func (c *cli) runner() (Runner, error) {
	r, err := c.newRunner(c.cfg, c.log)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return r, nil
}

func (c *cli) print(format string, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Go through JSON so the keys match the json output.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(c.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := newCLI(stdout, stderr)
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.closer != nil {
		_ = c.closer.Close()
	}
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(stderr, "error:", err)
		}
		return 1
	}
	return 0
}
