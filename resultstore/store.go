package resultstore

import (
	"arena-harness/applog"
	"arena-harness/scrape"
	"arena-harness/tournament"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"io/fs"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrRunNotFound = errors.New("run not found")

// Run is one tournament invocation.
type Run struct {
	ID         int64
	Name       string
	Self       string
	StartedAt  time.Time
	FinishedAt time.Time
	Score      float64
	Matches    int
	Failures   int
}

// Store keeps tournament results in a SQLite file so runs can be compared.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err = s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	for _, r := range results {
		applog.Debug("Applied migration", zap.String("migration", r.Source.Path), zap.Duration("duration", r.Duration))
	}
	return nil
}

func (s *Store) BeginRun(ctx context.Context, name, self string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (name, self_player, started_at) VALUES (?, ?, ?)`,
		name, self, formatTime(startedAt))
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) SaveMatch(ctx context.Context, runID int64, rec tournament.MatchRecord) error {
	var opponentOutcome, consistent any
	if rec.OpponentOutcome != nil {
		opponentOutcome = float64(*rec.OpponentOutcome)
	}
	if rec.Consistent != nil {
		consistent = *rec.Consistent
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (run_id, idx, opponent, leg, lobby_id, scored, outcome, failure,
		                     timed_out, duration_ms, opponent_outcome, consistent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Index, rec.Opponent, int(rec.Leg), rec.LobbyID, rec.Scored, float64(rec.Outcome),
		rec.Failure, rec.TimedOut, rec.Duration.Milliseconds(), opponentOutcome, consistent)
	if err != nil {
		return fmt.Errorf("inserting match %d: %w", rec.Index, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID int64, results *tournament.Results, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, score = ?, matches = ?, failures = ? WHERE id = ?`,
		formatTime(finishedAt), results.Score(), len(results.Records), results.Failures, runID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

// Runs lists the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, self_player, started_at, COALESCE(finished_at, ''), score, matches, failures
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err = rows.Scan(&r.ID, &r.Name, &r.Self, &started, &finished, &r.Score, &r.Matches, &r.Failures); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) Matches(ctx context.Context, runID int64) ([]tournament.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, opponent, leg, lobby_id, scored, outcome, failure, timed_out, duration_ms,
		       opponent_outcome, consistent
		FROM matches WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []tournament.MatchRecord
	for rows.Next() {
		var rec tournament.MatchRecord
		var leg int
		var outcome float64
		var durationMs int64
		var opponentOutcome sql.NullFloat64
		var consistent sql.NullBool
		err = rows.Scan(&rec.Index, &rec.Opponent, &leg, &rec.LobbyID, &rec.Scored, &outcome,
			&rec.Failure, &rec.TimedOut, &durationMs, &opponentOutcome, &consistent)
		if err != nil {
			return nil, err
		}
		rec.Leg = tournament.Leg(leg)
		rec.Outcome = scrape.Outcome(outcome)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if opponentOutcome.Valid {
			o := scrape.Outcome(opponentOutcome.Float64)
			rec.OpponentOutcome = &o
		}
		if consistent.Valid {
			c := consistent.Bool
			rec.Consistent = &c
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Tallies aggregates every stored match of a run per opponent.
func (s *Store) Tallies(ctx context.Context, runID int64) ([]tournament.Tally, error) {
	records, err := s.Matches(ctx, runID)
	if err != nil {
		return nil, err
	}
	results := &tournament.Results{}
	for _, rec := range records {
		results.Add(rec)
	}
	return results.Tallies, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
