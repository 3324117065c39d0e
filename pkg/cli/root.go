// Package cli implements the loanctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"loan-pipeline/internal/config"
	"loan-pipeline/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Process exit codes, one per failure class.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitInvalidConfiguration = 2
	ExitSourceNotFound       = 3
	ExitMirrorUpload         = 4
	ExitLoadFailure          = 5
	ExitEmptyLayer           = 6
	ExitDuplicateKeys        = 7
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error [%s]: %v\n", domain.ErrorKind(err), err)
		return exitCode(err)
	}
	return ExitOK
}

// exitCode maps an error's failure class to its exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch domain.ErrorKind(err) {
	case domain.KindInvalidConfiguration:
		return ExitInvalidConfiguration
	case domain.KindSourceNotFound:
		return ExitSourceNotFound
	case domain.KindMirrorUpload:
		return ExitMirrorUpload
	case domain.KindLoadFailure:
		return ExitLoadFailure
	case domain.KindEmptyLayer:
		return ExitEmptyLayer
	case domain.KindDuplicateKeys:
		return ExitDuplicateKeys
	default:
		return ExitFailure
	}
}

// app carries the process-wide state every subcommand shares. It is filled
// in by the root command's PersistentPreRunE.
type app struct {
	stdout io.Writer
	stderr io.Writer

	envFile string
	output  string

	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) init() error {
	if err := validateOutputFormat(a.output); err != nil {
		return err
	}
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return domain.ErrInvalidConfiguration("load %s: %v", a.envFile, err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(a.stderr)
	for _, w := range cfg.Warnings {
		a.logger.Warn(w)
	}
	return nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "loanctl",
		Short:         "Loan data ingestion and layer promotion",
		Long:          "Ingest loan spreadsheets into the RAW layer of the analytical store, run transformations and gate each layer on quality.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return validateOutputFormat(a.output)
			}
			return a.init()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return domain.ErrInvalidConfiguration("%v", err)
	})

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before the process environment is read")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(newIngestCmd(a))
	rootCmd.AddCommand(newGateCmd(a))
	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newRunsCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// pipelineFile loads the optional YAML pipeline file named by --config.
// A nil file means defaults everywhere.
func pipelineFile(path string) (*config.PipelineFile, error) {
	if path == "" {
		return nil, nil
	}
	return config.LoadPipelineFile(path)
}

// stringFlag returns the flag value when it was set on the command line and
// fallback otherwise.
func stringFlag(flags *pflag.FlagSet, name, value, fallback string) string {
	if flags.Changed(name) {
		return value
	}
	return fallback
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return errors.New("unsupported shell: " + args[0])
			}
		},
	}
}
