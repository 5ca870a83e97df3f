// Package rating integrates a skill-rating capability into the session
// engine. The engine only depends on Model; the bundled implementation is a
// plain team Elo update over the mu parameter with gradual sigma decay and
// can be swapped for any other order-preserving model.
package rating

import (
	"math"

	"caps-bot/internal/domain"
)

// Model recomputes ratings for a finished match. Implementations must be
// pure functions of their inputs and preserve slice order. When tied is set
// both sides are treated as having finished with equal rank.
type Model interface {
	Rate(winners, losers []domain.Rating, tied bool) ([]domain.Rating, []domain.Rating)
}

const (
	// kFactor scales how far one match moves a player's mu.
	kFactor = 1.6
	// eloScale maps mu differences onto an expected-score curve. Tuned for
	// mu values around the 25-point default.
	eloScale = 10.0
	// sigmaDecay shrinks uncertainty a little every rated match.
	sigmaDecay = 0.97
	sigmaFloor = 1.0
)

// Elo is the default Model.
type Elo struct{}

func NewElo() *Elo {
	return &Elo{}
}

func (e *Elo) Rate(winners, losers []domain.Rating, tied bool) ([]domain.Rating, []domain.Rating) {
	winnerMu := teamMu(winners)
	loserMu := teamMu(losers)

	// Expected score for the winning side given the mu gap.
	expected := 1 / (1 + math.Pow(10, (loserMu-winnerMu)/eloScale))

	winnerScore := 1.0
	loserScore := 0.0
	if tied {
		winnerScore, loserScore = 0.5, 0.5
	}

	ratedWinners := apply(winners, kFactor*(winnerScore-expected))
	ratedLosers := apply(losers, kFactor*(loserScore-(1-expected)))
	return ratedWinners, ratedLosers
}

func teamMu(team []domain.Rating) float64 {
	var sum float64
	for _, r := range team {
		sum += r.Mu
	}
	if len(team) == 0 {
		return 0
	}
	return sum / float64(len(team))
}

func apply(team []domain.Rating, delta float64) []domain.Rating {
	rated := make([]domain.Rating, len(team))
	for i, r := range team {
		sigma := r.Sigma * sigmaDecay
		if sigma < sigmaFloor {
			sigma = sigmaFloor
		}
		rated[i] = domain.Rating{
			MemberID: r.MemberID,
			Mu:       r.Mu + delta,
			Sigma:    sigma,
		}
	}
	return rated
}

// Ordinal is the conservative skill estimate used for leaderboards and
// career summaries.
func Ordinal(mu, sigma float64) float64 {
	return mu - 3*sigma
}
