package tournament

import (
	"arena-harness/applog"
	"arena-harness/matchconfig"
	"arena-harness/scrape"
	"arena-harness/topology"
	"context"
	"fmt"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Participant is a player executable. Its client joins lobbies under the base
// name of Path.
type Participant struct {
	Path     string
	Username string
}

func NewParticipant(path string) Participant {
	return Participant{Path: path, Username: filepath.Base(path)}
}

// Launcher runs the process topology of a tournament.
type Launcher interface {
	StartServer(ctx context.Context) error
	RunMatch(ctx context.Context, m topology.Match) (topology.MatchRun, error)
	Shutdown(ctx context.Context) error
}

// Driver plays two matches against every opponent, one per Leg, strictly one
// after another.
type Driver struct {
	Self         Participant
	OpponentsDir string
	// ConfigPath is the match configuration artifact rewritten before every match.
	ConfigPath  string
	Settings    matchconfig.Settings
	LobbyPrefix string

	Launcher   Launcher
	Extractor  scrape.Extractor
	CrossCheck bool

	// OnMatch observes every record right after its match.
	OnMatch func(MatchRecord)
	// Finish runs after the server is gone, e.g. to archive log artifacts.
	Finish func(ctx context.Context) error
	// Out receives the per-match console narration.
	Out io.Writer
}

// EnumerateOpponents lists the regular files of dir in name order, skipping
// the self player.
func EnumerateOpponents(dir string, self Participant) ([]Participant, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading opponents directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	selfPath := filepath.Clean(self.Path)
	var opponents []Participant
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if filepath.Clean(path) == selfPath {
			continue
		}
		if entry.Name() == self.Username {
			applog.Warn("Skipping opponent that shares the self player's username", zap.String("path", path))
			continue
		}
		opponents = append(opponents, NewParticipant(path))
	}
	return opponents, nil
}

// Run plays the whole round robin. Match failures are recorded in the results;
// an error is only returned when the tournament cannot go on.
func (d *Driver) Run(ctx context.Context) (*Results, error) {
	opponents, err := EnumerateOpponents(d.OpponentsDir, d.Self)
	if err != nil {
		return nil, err
	}

	// Port release and log archiving run even when nothing is played.
	defer d.finish(ctx)

	results := NewResults()
	if len(opponents) == 0 {
		applog.Warn("No opponents to play against", zap.String("dir", d.OpponentsDir))
		d.say("No opponents found in %s\n", d.OpponentsDir)
		return results, nil
	}

	applog.Info("Starting tournament",
		zap.String("self", d.Self.Path),
		zap.Int("opponents", len(opponents)),
		zap.Int("matches", 2*len(opponents)))

	if err = d.Launcher.StartServer(ctx); err != nil {
		return nil, fmt.Errorf("starting game server: %w", err)
	}

	index := 0
	for _, opp := range opponents {
		for _, leg := range []Leg{LegOpponentFirst, LegSelfFirst} {
			index++
			rec, err := d.play(ctx, index, opp, leg)
			if err != nil {
				return results, err
			}
			results.Add(rec)
			if d.OnMatch != nil {
				d.OnMatch(rec)
			}
		}
	}

	applog.Info("Tournament finished",
		zap.Int("matches", len(results.Records)),
		zap.Int("failures", results.Failures),
		zap.Float64("score", results.Score()))
	return results, nil
}

func (d *Driver) finish(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := d.Launcher.Shutdown(ctx); err != nil {
		applog.Warn("Failed to shut down the game server", zap.Error(err))
	}
	if d.Finish != nil {
		if err := d.Finish(ctx); err != nil {
			applog.Warn("Post-tournament step failed", zap.Error(err))
		}
	}
}

func (d *Driver) play(ctx context.Context, index int, opp Participant, leg Leg) (MatchRecord, error) {
	first, second := opp, d.Self
	title := fmt.Sprintf("Match of %s vs %s", opp.Path, d.Self.Username)
	if leg == LegSelfFirst {
		first, second = d.Self, opp
		title = fmt.Sprintf("Match of %s vs %s", d.Self.Username, opp.Path)
	}
	d.say("%s\n", title)

	rec := MatchRecord{
		Index:    index,
		Opponent: opp.Username,
		Leg:      leg,
	}

	cfg := matchconfig.New(d.Settings, first.Path, second.Path)
	if err := matchconfig.Write(d.ConfigPath, cfg); err != nil {
		return rec, fmt.Errorf("writing match config for match %d: %w", index, err)
	}

	lobby := topology.NewLobbyID(d.LobbyPrefix)
	rec.LobbyID = lobby.String()

	ctx = applog.WithLeg(applog.WithOpponent(applog.WithMatch(ctx, index), opp.Username), leg)
	log := applog.FromContext(ctx)

	run, err := d.Launcher.RunMatch(ctx, topology.Match{
		Index:      index,
		LobbyID:    lobby,
		ConfigPath: d.ConfigPath,
		SideA:      first.Username,
		SideB:      second.Username,
	})
	rec.Duration = run.Duration
	rec.TimedOut = run.TimedOut
	if err != nil {
		if ctx.Err() != nil {
			return rec, ctx.Err()
		}
		rec.Failure = err.Error()
		log.Warn("Match could not be played", zap.Error(err))
		d.say("Match failed: %v\n", err)
		return rec, nil
	}
	if run.TimedOut {
		rec.Failure = "match timed out"
		log.Warn("Match timed out", zap.Duration("duration", run.Duration))
		d.say("Match timed out\n")
		return rec, nil
	}

	self, _ := run.Client(d.Self.Username)
	outcome, err := d.Extractor.Classify(self.Result.Stdout)
	if err != nil {
		rec.Failure = fmt.Sprintf("%s: %v", d.Self.Username, err)
		log.Warn("Could not find a result in the client output",
			zap.String("client", d.Self.Username),
			zap.Int("exitCode", self.Result.ExitCode),
			zap.String("tail", tail(self.Result.Stdout, 10)),
			zap.String("stderr", tail(self.Result.Stderr, 10)))
		d.say("Error finding result!\n")
		return rec, nil
	}
	rec.Scored = true
	rec.Outcome = outcome
	d.say("Game was %s\n", describe(outcome))

	if d.CrossCheck {
		d.crossCheck(log, &rec, run, opp)
	}

	log.Info("Match scored", zap.Stringer("outcome", outcome), zap.Duration("duration", run.Duration))
	return rec, nil
}

func (d *Driver) crossCheck(log *applog.Logger, rec *MatchRecord, run topology.MatchRun, opp Participant) {
	client, _ := run.Client(opp.Username)
	theirs, err := d.Extractor.Classify(client.Result.Stdout)
	if err != nil {
		log.Warn("Opponent result missing, cannot cross-check", zap.String("client", opp.Username))
		return
	}

	consistent := scrape.Consistent(rec.Outcome, theirs)
	rec.OpponentOutcome = &theirs
	rec.Consistent = &consistent
	if !consistent {
		log.Warn("Players disagree on the match result",
			zap.Stringer("self", rec.Outcome),
			zap.Stringer("opponent", theirs))
		d.say("Warning: %s reported %s\n", opp.Username, theirs)
	}
}

func (d *Driver) say(format string, args ...any) {
	if d.Out != nil {
		_, _ = fmt.Fprintf(d.Out, format, args...)
	}
}

func describe(o scrape.Outcome) string {
	switch o {
	case scrape.Win:
		return "WON"
	case scrape.Loss:
		return "LOST"
	default:
		return "a DRAW"
	}
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
