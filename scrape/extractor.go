package scrape

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoResult means the output holds no recognizable result message.
var ErrNoResult = errors.New("no result found in client output")

const (
	DefaultWinLossPattern = `INFO: You \(.*?\) (?P<res>.*)`
	DefaultDrawPattern    = `INFO: It's a draw!`
)

// Extractor classifies one client's captured console output.
type Extractor interface {
	Classify(text string) (Outcome, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(text string) (Outcome, error)

func (f ExtractorFunc) Classify(text string) (Outcome, error) {
	return f(text)
}

// RegexExtractor looks for the framework's "You (...) <phrase>" announcement
// and falls back to its draw announcement.
type RegexExtractor struct {
	winLoss *regexp.Regexp
	draw    *regexp.Regexp
	group   int
}

// NewRegexExtractor compiles both patterns in multiline mode. The result phrase
// is taken from the group named "res", else the last group, else the whole match.
func NewRegexExtractor(winLossPattern, drawPattern string) (*RegexExtractor, error) {
	winLoss, err := regexp.Compile("(?m)" + winLossPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid win/loss pattern: %w", err)
	}
	draw, err := regexp.Compile("(?m)" + drawPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid draw pattern: %w", err)
	}

	group := winLoss.SubexpIndex("res")
	if group < 0 {
		group = winLoss.NumSubexp()
	}

	return &RegexExtractor{winLoss: winLoss, draw: draw, group: group}, nil
}

func Default() *RegexExtractor {
	e, err := NewRegexExtractor(DefaultWinLossPattern, DefaultDrawPattern)
	if err != nil {
		panic(err)
	}
	return e
}

// ClassifyAll returns one outcome per result announcement, in output order.
func (e *RegexExtractor) ClassifyAll(text string) ([]Outcome, error) {
	matches := e.winLoss.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		if e.draw.MatchString(text) {
			return []Outcome{Draw}, nil
		}
		return nil, ErrNoResult
	}

	outcomes := make([]Outcome, 0, len(matches))
	for _, m := range matches {
		outcomes = append(outcomes, classifyPhrase(m[e.group]))
	}
	return outcomes, nil
}

// Classify returns the last announced outcome; a client plays a single match,
// so any earlier announcement is superseded.
func (e *RegexExtractor) Classify(text string) (Outcome, error) {
	outcomes, err := e.ClassifyAll(text)
	if err != nil {
		return 0, err
	}
	return outcomes[len(outcomes)-1], nil
}

func classifyPhrase(phrase string) Outcome {
	switch {
	case strings.Contains(phrase, "won"):
		return Win
	case strings.Contains(phrase, "lost"):
		return Loss
	default:
		return Draw
	}
}
