package main

import (
	"arena-harness/applog"
	"arena-harness/build"
	"arena-harness/config"
	"arena-harness/util"
	"context"
	"errors"
	"fmt"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

const (
	exitFatal    = 1
	exitUnscored = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	cfg := config.Default()
	cmd := newRootCmd(cfg)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUnscored):
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitUnscored
	default:
		_, _ = fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		return exitFatal
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "arena",
		Short:   "Round-robin tournament harness for game-playing bots.",
		Version: build.VersionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyEnv(cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			if cfg.RunName == "" {
				cfg.RunName = petname.Generate(2, "-")
			}
			return nil
		},
	}

	config.RegisterFlags(cmd.PersistentFlags(), cfg)

	cmd.AddCommand(
		newRunCmd(cfg),
		newBuildCmd(cfg),
		newCleanCmd(cfg),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("arena {{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// withLogging sets up the run log file for commands that need one.
func withLogging(cfg *config.Config, name string, fn func(ctx context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := applog.Initialize(cfg.RunName, cfg.LogLevel, cfg.LogDir); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize app logger: %v\n", err)
		}
		defer applog.Shutdown()

		ctx := cmd.Context()
		defer util.WrapAppContextCancelExitMessage(ctx, name)

		applog.LogStartupInfo(cfg)

		err := fn(ctx)
		if err != nil && !errors.Is(err, errUnscored) {
			applog.Error("Command failed", zap.String("command", name), zap.Error(err))
		}
		return err
	}
}
