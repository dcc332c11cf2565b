// Package reputation maps reporter reputation scores to ladder tiers and
// submission weights. Tiers cover the full score range contiguously; the
// submission weight of a score interpolates between neighboring tier base
// weights so that weight grows smoothly instead of jumping at tier borders.
package reputation

import (
	"errors"
	"fmt"
)

// Legal score bounds of the reputation ladder.
const (
	MinScore = -10000
	MaxScore = 10000
)

// Tier is one band of the reputation ladder.
type Tier struct {
	Name        string
	MinScore    int
	MaxScore    int
	BaseWeight  float64
	Description string
}

// tiers covers MinScore..MaxScore contiguously, lowest band first. Negative
// tiers carry no base weight: scores below zero use the decay formula in
// weight.go and the tier only supplies a display name.
var tiers = []Tier{
	{"Infamous", -10000, -9501, 0, "The absolute enemy of WynnSource, universally recognized for unparalleled toxicity."},
	{"Nemesis", -9500, -7001, 0, "A master of disruption, carrying a dark legacy of hostility toward the community."},
	{"Corruptor", -7000, -3501, 0, "A commander of chaos, systematically polluting the WynnSource database."},
	{"Defiler", -3500, -1501, 0, "A major detriment to the community, leaving a trail of harmful contributions."},
	{"Saboteur", -1500, -601, 0, "A notorious contributor who actively diminishes the quality of WynnSource."},
	{"Vandal", -600, -201, 0, "A disruptive member known for repeatedly ignoring submission guidelines."},
	{"Outcast", -200, -51, 0, "A user whose frequent low-quality submissions have alienated the community."},
	{"Troublemaker", -50, -1, 0, "A newcomer who has stumbled by submitting unhelpful content."},
	{"Rookie", 0, 50, 0.1, "The newcomer to the WynnSource community."},
	{"Assistant", 51, 200, 0.3, "A regular contributor who has shown dedication."},
	{"Sentinel", 201, 600, 0.8, "A vigilant guardian of quality, standing watch over the integrity of our data."},
	{"Elite", 601, 1500, 1.5, "A battle-tested veteran whose submissions are considered the gold standard."},
	{"Admiral", 1501, 3500, 3.0, "A visionary leader, safely navigating the community through oceans of information."},
	{"Commander", 3501, 7000, 5.0, "A seasoned tactician whose exceptional directives steer the course of WynnSource."},
	{"Master", 7001, 9500, 7.5, "A legendary scholar whose vast wisdom forms the very foundation of the community."},
	{"Grandmaster", 9501, 10000, 9.0, "A living myth; their unparalleled legacy will echo through WynnSource forever."},
}

// ErrScoreOutOfRange is returned when a score falls outside every tier. The
// table is exhaustive over MinScore..MaxScore, so hitting this for a score
// inside the legal range is an internal invariant violation.
var ErrScoreOutOfRange = errors.New("reputation: score outside tier table")

// Tiers returns the ladder, lowest band first.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// TierForScore returns the tier whose score band contains score.
func TierForScore(score int) (Tier, error) {
	for _, tier := range tiers {
		if score >= tier.MinScore && score <= tier.MaxScore {
			return tier, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %d", ErrScoreOutOfRange, score)
}

func (t Tier) index() int {
	for i, tier := range tiers {
		if tier.Name == t.Name {
			return i
		}
	}
	return -1
}

// Next returns the tier above t, if any.
func (t Tier) Next() (Tier, bool) {
	i := t.index()
	if i < 0 || i >= len(tiers)-1 {
		return Tier{}, false
	}
	return tiers[i+1], true
}

// Previous returns the tier below t, if any.
func (t Tier) Previous() (Tier, bool) {
	i := t.index()
	if i <= 0 {
		return Tier{}, false
	}
	return tiers[i-1], true
}

// ScoreToNext returns how many points separate score from the next tier,
// or 0 when already at the top.
func (t Tier) ScoreToNext(score int) int {
	next, ok := t.Next()
	if !ok {
		return 0
	}
	return next.MinScore - score
}
