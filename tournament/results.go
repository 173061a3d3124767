package tournament

import (
	"arena-harness/scrape"
	"encoding/json"
	"time"
)

// Leg tells which side the self player took in one of the two matches played
// against every opponent.
type Leg int

const (
	// LegOpponentFirst has the opponent as path1 and its client started first.
	LegOpponentFirst Leg = 1
	// LegSelfFirst is the mirrored match.
	LegSelfFirst Leg = 2
)

func (l Leg) String() string {
	switch l {
	case LegOpponentFirst:
		return "opponent-first"
	case LegSelfFirst:
		return "self-first"
	default:
		return "unknown"
	}
}

type MatchRecord struct {
	Index    int            `json:"index"`
	Opponent string         `json:"opponent"`
	Leg      Leg            `json:"leg"`
	LobbyID  string         `json:"lobbyId"`
	Scored   bool           `json:"scored"`
	Outcome  scrape.Outcome `json:"outcome"`
	Failure  string         `json:"failure,omitempty"`
	TimedOut bool           `json:"timedOut,omitempty"`
	Duration time.Duration  `json:"duration"`

	// Set only when the opponent's output was scraped too.
	OpponentOutcome *scrape.Outcome `json:"opponentOutcome,omitempty"`
	Consistent      *bool           `json:"consistent,omitempty"`
}

// Tally aggregates the self player's results against one opponent.
type Tally struct {
	Opponent string `json:"opponent"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
	Failures int    `json:"failures"`

	// Mismatches counts cross-checked matches where both sides disagreed.
	Mismatches int `json:"mismatches,omitempty"`
}

func (t *Tally) Add(rec MatchRecord) {
	if !rec.Scored {
		t.Failures++
		return
	}
	switch rec.Outcome {
	case scrape.Win:
		t.Wins++
	case scrape.Loss:
		t.Losses++
	default:
		t.Draws++
	}
	if rec.Consistent != nil && !*rec.Consistent {
		t.Mismatches++
	}
}

func (t Tally) Played() int {
	return t.Wins + t.Losses + t.Draws
}

func (t Tally) Score() float64 {
	return float64(t.Wins) + float64(t.Draws)/2
}

// Results is owned by the caller of Driver.Run. Outcomes only holds scored
// matches, in the order they were played.
type Results struct {
	Outcomes []scrape.Outcome `json:"outcomes"`
	Records  []MatchRecord    `json:"matches"`
	Tallies  []Tally          `json:"tallies"`
	Failures int              `json:"failures"`
}

func NewResults() *Results {
	return &Results{
		Outcomes: []scrape.Outcome{},
		Records:  []MatchRecord{},
		Tallies:  []Tally{},
	}
}

// MarshalJSON writes empty sequences as [] rather than null.
func (r Results) MarshalJSON() ([]byte, error) {
	type plain Results
	if r.Outcomes == nil {
		r.Outcomes = []scrape.Outcome{}
	}
	if r.Records == nil {
		r.Records = []MatchRecord{}
	}
	if r.Tallies == nil {
		r.Tallies = []Tally{}
	}
	return json.Marshal(plain(r))
}

func (r *Results) Add(rec MatchRecord) {
	r.Records = append(r.Records, rec)
	if rec.Scored {
		r.Outcomes = append(r.Outcomes, rec.Outcome)
	} else {
		r.Failures++
	}

	for i := range r.Tallies {
		if r.Tallies[i].Opponent == rec.Opponent {
			r.Tallies[i].Add(rec)
			return
		}
	}
	t := Tally{Opponent: rec.Opponent}
	t.Add(rec)
	r.Tallies = append(r.Tallies, t)
}

func (r *Results) Score() float64 {
	var sum float64
	for _, o := range r.Outcomes {
		sum += float64(o)
	}
	return sum
}

// Complete reports whether every played match produced an outcome.
func (r *Results) Complete() bool {
	return r.Failures == 0
}
