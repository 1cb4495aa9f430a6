package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pql/pkg/config"
	"github.com/ajitpratap0/pql/pkg/logger"
)

var version = "0.1.0"

// app carries what the subcommands share after flags are resolved.
type app struct {
	stdout, stderr io.Writer
	configFile     string
	cfg            *config.Config
	logger         *zap.Logger
}

func main() {
	// a missing .env file is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pql",
		Short: "pql - CSV to columnar file converter",
		Long: `pql converts CSV files into typed columnar files. It infers a schema,
encodes every column with dictionary or plain encoding and writes a
self-describing PQL file, or Apache Parquet / Avro when asked to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(a.configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := logger.Init(logger.Config{
				Level:    cfg.Observability.LogLevel,
				Encoding: cfg.Observability.LogEncoding,
			}); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			a.cfg = cfg
			a.logger = logger.Get().With(zap.String("component", "pql-cli"))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "YAML configuration file")
	pf.String("log-level", "error", "Log level (debug, info, warn, error)")
	pf.String("log-encoding", "console", "Log encoding (console, json)")

	root.AddCommand(
		a.convertCommand(),
		a.inspectCommand(),
		a.headCommand(),
		a.schemaCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stdout, "pql v%s\n", version)
			fmt.Fprintf(a.stdout, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(a.stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
