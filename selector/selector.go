package selector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/devskill-org/bess-ems/strategy"
)

// Mode controls whether the selector picks the strategy itself or only
// ever dispatches whatever was set via SelectManual.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// DefaultSwitchThreshold is the minimum score margin the best-scoring
// strategy must hold over the current one before the selector will
// switch, to keep it from flapping between near-tied strategies.
const DefaultSwitchThreshold = 0.15

// Decision is the outcome of a Select call: which strategy is now active,
// the full score table, and whether this call actually changed it.
type Decision struct {
	Strategy string
	Scores   map[string]float64
	Switched bool
	Source   string // "manual", "learned", or "score"
}

// Selector holds the set of candidate strategies and picks among them
// each optimization cycle, with hysteresis against flapping and an
// optional learned classifier to bias the pick.
type Selector struct {
	mu              sync.Mutex
	strategies      map[string]strategy.Strategy
	switchThreshold float64
	useLearned      bool
	classifier      *Classifier
	mode            Mode
	current         string
	manualChoice    string
}

// New builds a Selector over the given strategies, defaulting to
// ModeAuto with no current strategy selected.
func New(strategies []strategy.Strategy, switchThreshold float64, useLearned bool) *Selector {
	if switchThreshold <= 0 {
		switchThreshold = DefaultSwitchThreshold
	}
	byName := make(map[string]strategy.Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return &Selector{
		strategies:      byName,
		switchThreshold: switchThreshold,
		useLearned:      useLearned,
		classifier:      NewClassifier(),
		mode:            ModeAuto,
	}
}

// Mode returns the selector's current selection mode.
func (s *Selector) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches between auto and manual selection.
func (s *Selector) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// SelectManual pins the active strategy by name, taking effect
// immediately regardless of hysteresis. The selector must be in
// ModeManual for this choice to stick across subsequent Select calls.
func (s *Selector) SelectManual(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategies[name]; !ok {
		return fmt.Errorf("selector: unknown strategy %q", name)
	}
	s.manualChoice = name
	s.current = name
	return nil
}

// Current returns the currently active strategy name, or "" if none has
// been selected yet.
func (s *Selector) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Strategy returns the strategy.Strategy implementation backing name.
func (s *Selector) Strategy(name string) (strategy.Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[name]
	return st, ok
}

// Train fits the optional learned classifier from historical
// (features, winning strategy) pairs. Returns false (and leaves the
// classifier untrained) if there aren't enough records yet.
func (s *Selector) Train(records []TrainingRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.Train(records)
}

// Select scores every candidate strategy against state/forecasts, then
// picks the active one for this cycle: the pinned choice in ModeManual,
// otherwise the learned classifier's prediction when trained and enabled,
// falling back to the best-scoring strategy. A pick only replaces the
// current strategy if it beats it by at least the switch threshold, or
// if there is no current strategy yet.
func (s *Selector) Select(state strategy.State, f strategy.Forecasts, features FeatureVector) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make(map[string]float64, len(s.strategies))
	for name, st := range s.strategies {
		scores[name] = st.Evaluate(state, f)
	}

	if s.mode == ModeManual && s.manualChoice != "" {
		switched := s.current != s.manualChoice
		s.current = s.manualChoice
		return Decision{Strategy: s.current, Scores: scores, Switched: switched, Source: "manual"}
	}

	best, bestScore := bestScoring(scores)
	source := "score"

	if s.useLearned && s.classifier.IsTrained() {
		if predicted, ok := s.classifier.Predict(features); ok {
			if _, known := scores[predicted]; known {
				best = predicted
				bestScore = scores[predicted]
				source = "learned"
			}
		}
	}

	if best == "" {
		best = "arbitrage"
	}

	if s.current == "" {
		s.current = best
		return Decision{Strategy: s.current, Scores: scores, Switched: true, Source: source}
	}

	currentScore, currentKnown := scores[s.current]
	margin := bestScore - currentScore
	if !currentKnown || (best != s.current && margin >= s.switchThreshold) {
		s.current = best
		return Decision{Strategy: s.current, Scores: scores, Switched: true, Source: source}
	}

	return Decision{Strategy: s.current, Scores: scores, Switched: false, Source: source}
}

// bestScoring picks the highest-scoring strategy, breaking ties by name
// so repeated calls over the same scores are deterministic.
func bestScoring(scores map[string]float64) (name string, score float64) {
	names := make([]string, 0, len(scores))
	for n := range scores {
		names = append(names, n)
	}
	sort.Strings(names)

	first := true
	for _, n := range names {
		sc := scores[n]
		if first || sc > score {
			name, score = n, sc
			first = false
		}
	}
	return name, score
}
