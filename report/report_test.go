package report

import (
	"arena-harness/scrape"
	"arena-harness/tournament"
	"bytes"
	"context"
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sampleResults() *tournament.Results {
	res := &tournament.Results{}
	theirs := scrape.Win
	disagree := false
	res.Add(tournament.MatchRecord{Index: 1, Opponent: "random_player", Leg: tournament.LegOpponentFirst, Scored: true, Outcome: scrape.Win})
	res.Add(tournament.MatchRecord{Index: 2, Opponent: "random_player", Leg: tournament.LegSelfFirst, Scored: true, Outcome: scrape.Draw})
	res.Add(tournament.MatchRecord{Index: 3, Opponent: "greedy", Leg: tournament.LegOpponentFirst, Failure: "match timed out"})
	res.Add(tournament.MatchRecord{
		Index: 4, Opponent: "greedy", Leg: tournament.LegSelfFirst, Scored: true, Outcome: scrape.Loss,
		OpponentOutcome: &theirs, Consistent: &disagree,
	})
	return res
}

func sampleReport() *Report {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return New("brave-otter", "players/my_player", "0.1.0", started, started.Add(time.Minute), sampleResults())
}

func TestFormatOutcomes(t *testing.T) {
	assert.Equal(t, "[1, 0.5, 0]", FormatOutcomes([]scrape.Outcome{scrape.Win, scrape.Draw, scrape.Loss}))
	assert.Equal(t, "[]", FormatOutcomes(nil))
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "Results: [1, 0.5, 0]\n")
	assert.Regexp(t, `random_player\s+1\s+0\s+1\s+0\s+1.5/2`, out)
	assert.Regexp(t, `greedy\s+0\s+1\s+0\s+1\s+0/1`, out)
	assert.Contains(t, out, "Total: 1.5 from 3 scored matches, 1 failed")
	assert.Contains(t, out, "Match 4 vs greedy: players disagree (self loss, opponent win)")
}

func TestWriteTextWithoutMatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, New("r", "self", "v", time.Now(), time.Now(), nil)))
	assert.Equal(t, "Results: []\nNo matches were played.\n", buf.String())
}

func TestWriteJSONWithoutMatchesUsesEmptyLists(t *testing.T) {
	for name, results := range map[string]*tournament.Results{
		"zero value": {},
		"new":        tournament.NewResults(),
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteJSON(&buf, New("r", "self", "v", time.Now(), time.Now(), results)))

			out := buf.String()
			assert.NotContains(t, out, "null")
			assert.Contains(t, out, `"outcomes": []`)
			assert.Contains(t, out, `"matches": []`)
			assert.Contains(t, out, `"tallies": []`)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "brave-otter", decoded["run"])
	assert.Equal(t, 1.5, decoded["score"])

	results := decoded["results"].(map[string]any)
	assert.Equal(t, []any{1.0, 0.5, 0.0}, results["outcomes"])
	assert.Equal(t, 1.0, results["failures"])
	assert.Len(t, results["matches"], 4)
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(io.Discard, "yaml", sampleReport()))
}

func TestWebhookPostsReport(t *testing.T) {
	var got Report
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL+"/results", 5*time.Second)
	defer hook.Close()

	require.NoError(t, hook.Send(context.Background(), sampleReport()))
	assert.Equal(t, "brave-otter", got.Run)
	assert.Len(t, got.Results.Records, 4)
}

func TestWebhookReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, 5*time.Second)
	defer hook.Close()

	assert.ErrorContains(t, hook.Send(context.Background(), sampleReport()), "posting report failed")
}
