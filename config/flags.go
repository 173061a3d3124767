package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "ARENA"

// RegisterFlags binds every option of cfg to fs, using the current values of cfg
// as defaults.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.RunName, "run-name", cfg.RunName, "name of this run, generated when empty (env: ARENA_RUN_NAME)")

	fs.StringVarP(&cfg.OpponentsDir, "opponents", "o", cfg.OpponentsDir, "directory of opponent player executables (env: ARENA_OPPONENTS)")
	fs.StringVarP(&cfg.SelfPlayer, "self", "s", cfg.SelfPlayer, "path of the harness's own player executable (env: ARENA_SELF)")
	fs.StringVar(&cfg.SelfSource, "self-source", cfg.SelfSource, "source directory of the own player (env: ARENA_SELF_SOURCE)")
	fs.StringSliceVar(&cfg.ExtraSources, "extra-source", cfg.ExtraSources, "additional player source directories to build (env: ARENA_EXTRA_SOURCE)")
	fs.StringVar(&cfg.CleanCommand, "clean-command", cfg.CleanCommand, "command that removes build intermediates (env: ARENA_CLEAN_COMMAND)")
	fs.StringVar(&cfg.BuildCommand, "build-command", cfg.BuildCommand, "command that builds a player (env: ARENA_BUILD_COMMAND)")
	fs.StringSliceVar(&cfg.RequiredTools, "require", cfg.RequiredTools, "tool probes that must exit 0 before a run, e.g. mpichversion (env: ARENA_REQUIRE)")
	fs.BoolVar(&cfg.SkipBuild, "skip-build", cfg.SkipBuild, "do not build players before the tournament (env: ARENA_SKIP_BUILD)")

	fs.StringVar(&cfg.JavaPath, "java", cfg.JavaPath, "java executable (env: ARENA_JAVA)")
	fs.StringSliceVar(&cfg.JavaArgs, "java-arg", cfg.JavaArgs, "extra JVM arguments (env: ARENA_JAVA_ARG)")
	fs.StringVar(&cfg.FrameworkJar, "framework-jar", cfg.FrameworkJar, "game framework jar (env: ARENA_FRAMEWORK_JAR)")
	fs.StringVar(&cfg.Referee, "referee", cfg.Referee, "game referee identifier (env: ARENA_REFEREE)")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "client engine identifier (env: ARENA_ENGINE)")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host the game server listens on (env: ARENA_HOST)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "coordination port of the game server (env: ARENA_PORT)")
	fs.StringVar(&cfg.GameConfigPath, "game-config", cfg.GameConfigPath, "match configuration file consumed by lobbies (env: ARENA_GAME_CONFIG)")
	fs.StringVar(&cfg.LobbyPrefix, "lobby-prefix", cfg.LobbyPrefix, "prefix of generated lobby identifiers (env: ARENA_LOBBY_PREFIX)")

	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "threads per player (env: ARENA_THREADS)")
	fs.IntVar(&cfg.BoardSize, "board-size", cfg.BoardSize, "board size (env: ARENA_BOARD_SIZE)")
	fs.IntVar(&cfg.TimeBudget, "time", cfg.TimeBudget, "overall time budget per player (env: ARENA_TIME)")
	fs.IntVar(&cfg.TurnLength, "turn-length", cfg.TurnLength, "per-turn time limit in milliseconds (env: ARENA_TURN_LENGTH)")

	fs.DurationVar(&cfg.MatchTimeout, "match-timeout", cfg.MatchTimeout, "per-match timeout, 0 disables (env: ARENA_MATCH_TIMEOUT)")
	fs.DurationVar(&cfg.ServerDelay, "server-delay", cfg.ServerDelay, "upper bound to wait for the server port (env: ARENA_SERVER_DELAY)")
	fs.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "lobby settle interval, or probe timeout when a probe is set (env: ARENA_SETTLE_DELAY)")
	fs.DurationVar(&cfg.StaggerDelay, "stagger-delay", cfg.StaggerDelay, "delay between starting the two clients (env: ARENA_STAGGER_DELAY)")
	fs.DurationVar(&cfg.KillGrace, "kill-grace", cfg.KillGrace, "time between SIGTERM and SIGKILL (env: ARENA_KILL_GRACE)")
	fs.StringVar(&cfg.LobbyReadyPattern, "lobby-ready-pattern", cfg.LobbyReadyPattern, "regexp on lobby output that marks it ready (env: ARENA_LOBBY_READY_PATTERN)")
	fs.StringVar(&cfg.LobbyReadyURL, "lobby-ready-url", cfg.LobbyReadyURL, "HTTP health endpoint that marks the lobby ready (env: ARENA_LOBBY_READY_URL)")
	fs.StringVar(&cfg.ClientReadyPattern, "client-ready-pattern", cfg.ClientReadyPattern, "regexp on the first client's output that replaces the stagger delay (env: ARENA_CLIENT_READY_PATTERN)")
	fs.BoolVar(&cfg.Echo, "echo", cfg.Echo, "echo client output live (env: ARENA_ECHO)")

	fs.StringVar(&cfg.WinLossPattern, "win-loss-pattern", cfg.WinLossPattern, "regexp capturing the result phrase in group 'res' (env: ARENA_WIN_LOSS_PATTERN)")
	fs.StringVar(&cfg.DrawPattern, "draw-pattern", cfg.DrawPattern, "regexp of the draw announcement (env: ARENA_DRAW_PATTERN)")
	fs.BoolVar(&cfg.CrossCheck, "cross-check", cfg.CrossCheck, "also scrape the opponent client and compare outcomes (env: ARENA_CROSS_CHECK)")

	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory collecting logs and artifacts (env: ARENA_LOG_DIR)")
	fs.IntVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: -1 - Debug, 0 - Info, 1 - Warn, 2 - Error (env: ARENA_LOG_LEVEL)")
	fs.StringSliceVar(&cfg.ArtifactGlobs, "artifact", cfg.ArtifactGlobs, "glob of artifacts moved to the log dir after a run (env: ARENA_ARTIFACT)")
	fs.BoolVar(&cfg.CompressLogs, "compress-logs", cfg.CompressLogs, "gzip artifacts while moving them (env: ARENA_COMPRESS_LOGS)")
	fs.StringVar(&cfg.OutputFormat, "output", cfg.OutputFormat, "result output format: text or json (env: ARENA_OUTPUT)")
	fs.StringVar(&cfg.ResultsDB, "results-db", cfg.ResultsDB, "SQLite database that records runs and matches (env: ARENA_RESULTS_DB)")
	fs.StringVar(&cfg.ReportURL, "report-url", cfg.ReportURL, "URL receiving the final report as JSON (env: ARENA_REPORT_URL)")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "exit with status 2 when any match could not be scored (env: ARENA_STRICT)")
}

// ApplyEnv fills every flag not given on the command line from ARENA_* variables.
func ApplyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, fmt.Errorf("binding flag --%s: %w", f.Name, err))
			return
		}
		if err := v.BindEnv(f.Name); err != nil {
			errs = append(errs, fmt.Errorf("binding env for --%s: %w", f.Name, err))
			return
		}
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		raw := v.GetString(f.Name)
		if err := fs.Set(f.Name, raw); err != nil {
			errs = append(errs, fmt.Errorf("env %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
		}
	})

	return errors.Join(errs...)
}
