package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marcelocantos/myshell/internal/audit"
	"github.com/marcelocantos/myshell/internal/cli"
	"github.com/marcelocantos/myshell/internal/config"
	"github.com/marcelocantos/myshell/internal/logging"
	"github.com/marcelocantos/myshell/internal/metrics"
	"github.com/marcelocantos/myshell/internal/pipeline"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// env is the state shared by every subcommand once flags are parsed.
type env struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
	status int
}

func (e *env) load() error {
	var err error
	if e.configPath != "" {
		e.cfg, err = config.LoadFrom(afero.NewOsFs(), e.configPath)
	} else {
		e.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if e.logLevel != "" {
		e.cfg.Log.Level = e.logLevel
	}
	e.logger = logging.New(os.Stderr, e.cfg.Log.Level, e.cfg.Log.Format)
	slog.SetDefault(e.logger)
	return nil
}

// shell assembles a Shell from the loaded config. m may be nil.
func (e *env) shell(m *metrics.Metrics) *cli.Shell {
	sh := &cli.Shell{
		Runner: &pipeline.Runner{Logger: e.logger, Metrics: m},
		Logger: e.logger,
	}
	if e.cfg.Audit.Enabled {
		logger, err := audit.NewLogger(e.cfg.Audit.Path)
		if err != nil {
			// Continue without audit logging.
			e.logger.Warn("audit log unavailable", "path", e.cfg.Audit.Path, "error", err)
		} else {
			sh.Audit = logger
		}
	}
	return sh
}

func run(args []string) int {
	e := &env{}
	root := newRootCmd(e)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "myshell: %v\n", err)
		if e.status == 0 {
			return 1
		}
	}
	return e.status
}

func newRootCmd(e *env) *cobra.Command {
	var line string

	root := &cobra.Command{
		Use:           "myshell",
		Short:         "A minimal command-line interpreter with pipes and redirection",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sh := e.shell(nil)
			if cmd.Flags().Changed("command") {
				e.status = sh.RunLine(line).Status
				return nil
			}
			e.status = cli.RunInteractive(sh, e.cfg, os.Stdin, os.Stdout)
			return nil
		},
	}
	root.Flags().StringVarP(&line, "command", "c", "", "run one command line and exit with its status")
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newAuditCmd(e), newMCPCmd(e))
	return root
}

func newAuditCmd(e *env) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:       "audit verify|tail",
		Short:     "Verify or list the executed-line audit log",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"verify", "tail"},
		RunE: func(cmd *cobra.Command, args []string) error {
			e.status = cli.RunAudit(cmd.OutOrStdout(), e.cfg.Audit.Path, args, n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", cli.DefaultTail, "number of entries for tail")
	return cmd
}

func newMCPCmd(e *env) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve a run_line tool over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           metricsMux(m),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						e.logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
					}
				}()
				defer srv.Close()
				e.logger.Info("serving metrics", "addr", metricsAddr)
			}

			return cli.NewToolServer(e.shell(m)).Serve(version)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
