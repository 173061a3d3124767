package main

import (
	"arena-harness/applog"
	"arena-harness/build"
	"arena-harness/builder"
	"arena-harness/config"
	"arena-harness/framework"
	"arena-harness/logarchive"
	"arena-harness/matchconfig"
	"arena-harness/portgate"
	"arena-harness/readiness"
	"arena-harness/report"
	"arena-harness/resultstore"
	"arena-harness/scrape"
	"arena-harness/topology"
	"arena-harness/tournament"
	"context"
	"errors"
	"fmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var errUnscored = errors.New("one or more matches could not be scored")

func newRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build the players and play a round robin against every opponent.",
		Args:  cobra.NoArgs,
		RunE: withLogging(cfg, "Tournament", func(ctx context.Context) error {
			return runTournament(ctx, cfg, os.Stdout)
		}),
	}
}

func newBuildCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Check required tools and build every player source directory.",
		Args:  cobra.NoArgs,
		RunE: withLogging(cfg, "Build", func(ctx context.Context) error {
			return buildPlayers(ctx, cfg, os.Stdout)
		}),
	}
}

func newCleanCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the artifacts and logs left behind by earlier runs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cleanLogs(cfg, cmd.OutOrStdout())
		},
	}
}

func buildPlayers(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if err := builder.CheckTools(ctx, cfg.RequiredTools...); err != nil {
		return err
	}

	b := builder.New(cfg.CleanCommand, cfg.BuildCommand)
	for _, dir := range append([]string{cfg.SelfSource}, cfg.ExtraSources...) {
		if dir == "" {
			continue
		}
		_, _ = fmt.Fprintf(out, "Making %s...\n", dir)
		if err := b.Build(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func cleanLogs(cfg *config.Config, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Removing log files...")

	patterns := make([]string, 0, len(logarchive.DefaultCleanPatterns))
	for _, p := range logarchive.DefaultCleanPatterns {
		// The defaults name the log directory "Logs"; follow --log-dir.
		if rest, ok := strings.CutPrefix(p, "Logs/"); ok {
			p = filepath.Join(cfg.LogDir, rest)
		}
		patterns = append(patterns, p)
	}
	patterns = append(patterns, filepath.Join(cfg.LogDir, "*", "*.log"))

	if _, err := logarchive.Clean("", patterns); err != nil {
		applog.Warn("Some log files could not be removed", zap.Error(err))
	}
	_, _ = fmt.Fprintln(out, "Done")
	return nil
}

func runTournament(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	started := time.Now()

	// Narration and live client output stay off stdout when it carries JSON.
	narration := stdout
	if strings.ToLower(cfg.OutputFormat) == config.OutputJSON {
		narration = os.Stderr
	}

	if err := os.MkdirAll(cfg.OpponentsDir, 0o755); err != nil {
		return fmt.Errorf("creating opponents directory: %w", err)
	}

	if !cfg.SkipBuild {
		if err := buildPlayers(ctx, cfg, narration); err != nil {
			return err
		}
	} else if err := builder.CheckTools(ctx, cfg.RequiredTools...); err != nil {
		return err
	}

	extractor, err := scrape.NewRegexExtractor(cfg.WinLossPattern, cfg.DrawPattern)
	if err != nil {
		return err
	}

	launcher, err := newLauncher(cfg, narration)
	if err != nil {
		return err
	}

	var store *resultstore.Store
	var runID int64
	if cfg.ResultsDB != "" {
		if store, err = resultstore.Open(ctx, cfg.ResultsDB); err != nil {
			return fmt.Errorf("opening results database: %w", err)
		}
		defer func() { _ = store.Close() }()

		if runID, err = store.BeginRun(ctx, cfg.RunName, cfg.SelfPlayer, started); err != nil {
			return err
		}
	}

	archive := &logarchive.Archive{
		Patterns: cfg.ArtifactGlobs,
		Dir:      cfg.LogDir,
		Compress: cfg.CompressLogs,
	}

	driver := &tournament.Driver{
		Self:         tournament.NewParticipant(cfg.SelfPlayer),
		OpponentsDir: cfg.OpponentsDir,
		ConfigPath:   cfg.GameConfigPath,
		Settings: matchconfig.Settings{
			Threads:    cfg.Threads,
			BoardSize:  cfg.BoardSize,
			Time:       cfg.TimeBudget,
			TurnLength: cfg.TurnLength,
		},
		LobbyPrefix: cfg.LobbyPrefix,
		Launcher:    launcher,
		Extractor:   extractor,
		CrossCheck:  cfg.CrossCheck,
		Out:         narration,
		OnMatch: func(rec tournament.MatchRecord) {
			if store == nil {
				return
			}
			if err := store.SaveMatch(context.WithoutCancel(ctx), runID, rec); err != nil {
				applog.Warn("Failed to store match", zap.Int("match", rec.Index), zap.Error(err))
			}
		},
		Finish: func(ctx context.Context) error {
			_, _ = fmt.Fprintln(narration, "Moving log output to the Logs directory")
			_, err := archive.Move(ctx)
			return err
		},
	}

	_, _ = fmt.Fprintln(narration, "Starting Server and Lobby...")
	results, err := driver.Run(ctx)
	if err != nil {
		return err
	}
	finished := time.Now()

	if store != nil {
		if err = store.FinishRun(ctx, runID, results, finished); err != nil {
			applog.Warn("Failed to finalize stored run", zap.Error(err))
		}
	}

	rep := report.New(cfg.RunName, cfg.SelfPlayer, build.Version, started, finished, results)
	_, _ = fmt.Fprintln(narration, "Done")
	if err = report.Write(stdout, strings.ToLower(cfg.OutputFormat), rep); err != nil {
		return err
	}

	if cfg.ReportURL != "" {
		hook := report.NewWebhook(cfg.ReportURL, 10*time.Second)
		if err = hook.Send(ctx, rep); err != nil {
			applog.Warn("Failed to post report", zap.String("url", cfg.ReportURL), zap.Error(err))
		}
		_ = hook.Close()
	}

	if cfg.Strict && !results.Complete() {
		return fmt.Errorf("%w: %d of %d", errUnscored, results.Failures, len(results.Records))
	}
	return nil
}

func newLauncher(cfg *config.Config, echo io.Writer) (*topology.Launcher, error) {
	fw := &framework.Framework{
		Java:     cfg.JavaPath,
		JavaArgs: cfg.JavaArgs,
		Jar:      cfg.FrameworkJar,
		Referee:  cfg.Referee,
		Engine:   cfg.Engine,
		Host:     cfg.Host,
		Port:     cfg.Port,
	}

	l := &topology.Launcher{
		Framework:    fw,
		Gate:         portgate.NewLsofGate(cfg.Host),
		ServerReady:  readiness.PortFactory(cfg.Host, cfg.Port, cfg.ServerDelay),
		LobbyReady:   readiness.SleepFactory(cfg.SettleDelay),
		Stagger:      readiness.SleepFactory(cfg.StaggerDelay),
		MatchTimeout: cfg.MatchTimeout,
		KillGrace:    cfg.KillGrace,
		LogDir:       filepath.Join(cfg.LogDir, cfg.RunName),
	}

	switch {
	case cfg.LobbyReadyPattern != "":
		f, err := readiness.LineFactory(cfg.LobbyReadyPattern, cfg.SettleDelay)
		if err != nil {
			return nil, err
		}
		l.LobbyReady = f
	case cfg.LobbyReadyURL != "":
		l.LobbyReady = readiness.HTTPFactory(cfg.LobbyReadyURL, cfg.SettleDelay)
	}

	if cfg.ClientReadyPattern != "" {
		f, err := readiness.LineFactory(cfg.ClientReadyPattern, cfg.StaggerDelay)
		if err != nil {
			return nil, err
		}
		l.Stagger = f
	}

	if cfg.Echo {
		self := cfg.SelfName()
		l.Echo = echo
		l.EchoFilter = func(username string) bool { return username == self }
	}
	return l, nil
}
