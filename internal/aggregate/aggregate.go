// Package aggregate merges simultaneous strategy predictions into one
// consensus decision. The merge is a pure function of its inputs so it
// stays reproducible and unit-testable without storage.
package aggregate

import (
	"time"

	"ensemble-engine/internal/game"
	"ensemble-engine/internal/strategy"
)

// DefaultEpsilon is the score distance under which two labels count as
// tied.
const DefaultEpsilon = 1e-9

// Input pairs one strategy's prediction with its weight snapshot taken
// at aggregation time.
type Input struct {
	Prediction strategy.Prediction
	Weight     float64
}

// Contribution records one participant's share of a consensus for
// explainability.
type Contribution struct {
	Strategy   string       `json:"strategy"`
	Label      game.Outcome `json:"label"`
	Confidence float64      `json:"confidence"`
	Weight     float64      `json:"weight"`
}

// Consensus is the merged decision for one prediction cycle. Immutable
// once produced. An abstaining consensus has the empty label and zero
// confidence.
type Consensus struct {
	Label         game.Outcome   `json:"label"`
	Confidence    float64        `json:"confidence"`
	Contributions []Contribution `json:"contributions"`
	Ts            time.Time      `json:"ts"`
}

// Abstained reports whether no label won the merge.
func (c Consensus) Abstained() bool {
	return c.Label == strategy.Abstain
}

// Merge combines the inputs by summing weight×confidence per label and
// picking the label with the highest score. Confidence is the winning
// score normalized by the sum of participating weights. Abstaining
// inputs are excluded. Ties within epsilon go to the label backed by
// the single heaviest participant; a tie that survives that too is a
// deterministic abstention.
func Merge(inputs []Input, epsilon float64) Consensus {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	c := Consensus{Ts: time.Now()}
	scores := make(map[game.Outcome]float64, 3)
	heaviest := make(map[game.Outcome]float64, 3)
	var totalWeight float64

	for _, in := range inputs {
		p := in.Prediction
		if p.Abstained() {
			continue
		}
		scores[p.Label] += in.Weight * p.Confidence
		if in.Weight > heaviest[p.Label] {
			heaviest[p.Label] = in.Weight
		}
		totalWeight += in.Weight
		c.Contributions = append(c.Contributions, Contribution{
			Strategy:   p.Strategy,
			Label:      p.Label,
			Confidence: p.Confidence,
			Weight:     in.Weight,
		})
	}
	if len(scores) == 0 || totalWeight <= 0 {
		return c
	}

	// Fixed label order keeps the scan deterministic across runs.
	var winner game.Outcome
	bestScore := -1.0
	tied := false
	for _, label := range []game.Outcome{game.Player, game.Banker, game.Tie} {
		score, ok := scores[label]
		if !ok {
			continue
		}
		switch {
		case score > bestScore+epsilon:
			winner, bestScore, tied = label, score, false
		case score > bestScore-epsilon:
			// Within epsilon: prefer the label carried by the single
			// heaviest participant.
			if heaviest[label] > heaviest[winner]+epsilon {
				winner, bestScore = label, score
				tied = false
			} else if heaviest[label] > heaviest[winner]-epsilon {
				tied = true
			}
		}
	}
	if tied {
		return c
	}

	c.Label = winner
	c.Confidence = bestScore / totalWeight
	return c
}
