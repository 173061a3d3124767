package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

type Config struct {
	RunName string

	// Players
	OpponentsDir  string
	SelfPlayer    string
	SelfSource    string
	ExtraSources  []string
	CleanCommand  string
	BuildCommand  string
	RequiredTools []string
	SkipBuild     bool

	// Game framework
	JavaPath       string
	JavaArgs       []string
	FrameworkJar   string
	Referee        string
	Engine         string
	Host           string
	Port           int
	GameConfigPath string
	LobbyPrefix    string

	// Match parameters written to the game config file
	Threads    int
	BoardSize  int
	TimeBudget int
	TurnLength int

	// Orchestration
	MatchTimeout       time.Duration
	ServerDelay        time.Duration
	SettleDelay        time.Duration
	StaggerDelay       time.Duration
	KillGrace          time.Duration
	LobbyReadyPattern  string
	LobbyReadyURL      string
	ClientReadyPattern string
	Echo               bool

	// Result extraction
	WinLossPattern string
	DrawPattern    string
	CrossCheck     bool

	// Output
	LogDir        string
	LogLevel      int
	ArtifactGlobs []string
	CompressLogs  bool
	OutputFormat  string
	ResultsDB     string
	ReportURL     string
	Strict        bool
}

// Default mirrors the layout the framework's sample tournament expects:
// players/, src_my_player/, src_random_player/, Logs/ and Othello.json in the
// working directory.
func Default() *Config {
	return &Config{
		OpponentsDir: "players",
		SelfPlayer:   filepath.Join("players", "my_player"),
		SelfSource:   "src_my_player",
		ExtraSources: []string{"src_random_player"},
		CleanCommand: "make clean",
		BuildCommand: "make",

		JavaPath: "java",
		JavaArgs: []string{
			"--add-opens", "java.base/java.util=ALL-UNNAMED",
			"--add-opens", "java.desktop/java.awt=ALL-UNNAMED",
		},
		FrameworkJar:   "IngeniousFramework.jar",
		Referee:        "OthelloReferee",
		Engine:         "za.ac.sun.cs.ingenious.games.othello.engines.OthelloMPIEngine",
		Host:           "localhost",
		Port:           61235,
		GameConfigPath: "Othello.json",
		LobbyPrefix:    "mylobby",

		Threads:    4,
		BoardSize:  8,
		TimeBudget: 4,
		TurnLength: 4000,

		MatchTimeout: 10 * time.Minute,
		ServerDelay:  2 * time.Second,
		SettleDelay:  2 * time.Second,
		StaggerDelay: 1 * time.Second,
		KillGrace:    3 * time.Second,
		Echo:         true,

		WinLossPattern: `INFO: You \(.*?\) (?P<res>.*)`,
		DrawPattern:    `INFO: It's a draw!`,

		LogDir:        "Logs",
		ArtifactGlobs: []string{"*.txt"},
		OutputFormat:  OutputText,
	}
}

// SelfName is the username the harness's own client registers with.
func (c *Config) SelfName() string {
	return filepath.Base(c.SelfPlayer)
}

func (c *Config) Validate() error {
	var errs []error

	if c.OpponentsDir == "" {
		errs = append(errs, errors.New("--opponents is required and cannot be empty"))
	}

	if c.SelfPlayer == "" {
		errs = append(errs, errors.New("--self is required and cannot be empty"))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid --port (must be between 1-65535 inclusive): %d", c.Port))
	}

	if c.FrameworkJar == "" {
		errs = append(errs, errors.New("--framework-jar is required and cannot be empty"))
	}

	if c.GameConfigPath == "" {
		errs = append(errs, errors.New("--game-config is required and cannot be empty"))
	}

	if c.Threads < 1 || c.BoardSize < 1 || c.TimeBudget < 1 || c.TurnLength < 1 {
		errs = append(errs, errors.New("--threads, --board-size, --time and --turn-length must be positive"))
	}

	if c.MatchTimeout < 0 || c.SettleDelay < 0 || c.StaggerDelay < 0 || c.ServerDelay < 0 {
		errs = append(errs, errors.New("timeouts and delays cannot be negative"))
	}

	if c.WinLossPattern == "" || c.DrawPattern == "" {
		errs = append(errs, errors.New("--win-loss-pattern and --draw-pattern cannot be empty"))
	}

	switch strings.ToLower(c.OutputFormat) {
	case OutputText, OutputJSON:
	default:
		errs = append(errs, fmt.Errorf("invalid --output %q (must be %q or %q)", c.OutputFormat, OutputText, OutputJSON))
	}

	if c.LobbyReadyPattern != "" && c.LobbyReadyURL != "" {
		errs = append(errs, errors.New("--lobby-ready-pattern and --lobby-ready-url are mutually exclusive"))
	}

	return errors.Join(errs...)
}
