package report

import (
	"arena-harness/scrape"
	"arena-harness/tournament"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Report is the final summary of one tournament run.
type Report struct {
	Run        string              `json:"run"`
	Self       string              `json:"self"`
	Version    string              `json:"version"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt"`
	Score      float64             `json:"score"`
	Results    *tournament.Results `json:"results"`
}

func New(run, self, version string, startedAt, finishedAt time.Time, results *tournament.Results) *Report {
	if results == nil {
		results = tournament.NewResults()
	}
	return &Report{
		Run:        run,
		Self:       self,
		Version:    version,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
		Score:      results.Score(),
		Results:    results,
	}
}

func Write(w io.Writer, format string, r *Report) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatText, "":
		return WriteText(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText prints the ordered outcome sequence followed by one tally row per
// opponent.
func WriteText(w io.Writer, r *Report) error {
	res := r.Results

	if _, err := fmt.Fprintf(w, "Results: %s\n", FormatOutcomes(res.Outcomes)); err != nil {
		return err
	}
	if len(res.Tallies) == 0 {
		_, err := fmt.Fprintln(w, "No matches were played.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "OPPONENT\tWON\tLOST\tDRAWN\tFAILED\tSCORE\t")
	for _, t := range res.Tallies {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s/%d\t\n",
			t.Opponent, t.Wins, t.Losses, t.Draws, t.Failures, formatScore(t.Score()), t.Played())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "Total: %s from %d scored matches, %d failed\n",
		formatScore(r.Score), len(res.Outcomes), res.Failures)
	if err != nil {
		return err
	}

	for _, rec := range res.Records {
		if rec.Consistent != nil && !*rec.Consistent {
			_, err = fmt.Fprintf(w, "Match %d vs %s: players disagree (self %s, opponent %s)\n",
				rec.Index, rec.Opponent, rec.Outcome, *rec.OpponentOutcome)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// FormatOutcomes renders outcomes the way they are usually quoted: [1, 0.5, 0].
func FormatOutcomes(outcomes []scrape.Outcome) string {
	parts := make([]string, len(outcomes))
	for i, o := range outcomes {
		parts[i] = formatScore(float64(o))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
